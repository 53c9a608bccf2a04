package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "prodctl",
	Short: "prodctl is a command line tool for the prodflow production tracker",
	Long: `prodctl is the command-line interface for prodflow, which tracks production
batches as they move through the rooms of a plant.

Common workflows:

  Create a batch in the entry room:
    prodctl batch create --item <item-id> --target 500 --unit kg

  Record progress from a station:
    prodctl batch progress <batch-id> 50

  Release a batch waiting at a gate:
    prodctl batch outcome <batch-id> release

  Move a finished batch:
    prodctl batch move <batch-id|batch-number> --to <room-id>

  Import item descriptions from a workbook:
    prodctl items import items.xlsx

Configuration:
  Set the API endpoint via flag, environment variable or a config file:
    PRODFLOW_URL    API endpoint (default: http://localhost:6161)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".prodctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".prodctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "PRODFLOW_VARNAME"
	viper.SetEnvPrefix("PRODFLOW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds a client from the resolved configuration.
func newClient() *Client {
	return NewClient(viper.GetString("url"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.prodctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "prodflow controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
