package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and purge room completion history",
}

var historyListCmd = &cobra.Command{
	Use:   "list [room_id]",
	Short: "List batches completed in a room",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := newClient().ListHistory(args[0], limit)
		if err != nil {
			printError(cmd, err)
			return
		}
		if len(recs) == 0 {
			cmd.Println("No history for this room")
			return
		}
		cmd.Printf("%-16s %-10s %-10s %-20s %s\n", "NUMBER", "QUANTITY", "OUTCOME", "FINISHED", "DURATION")
		for _, r := range recs {
			d := time.Duration(r.Duration.IntPart()) * time.Second
			cmd.Printf("%-16s %-10s %-10s %-20s %s\n",
				r.BatchNumber, formatQuantity(r.Quantity, r.Unit), colorizeOutcome(r.Outcome),
				r.FinishedAt.Format("2006-01-02 15:04"), formatDuration(d))
		}
	},
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete history records",
	Long: `Delete history records finished before a cutoff. Without --before every
record is deleted, which requires --all.

Example:
  prodctl history purge --before 2024-01-01T00:00:00Z
  prodctl history purge --all`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		before, _ := cmd.Flags().GetString("before")
		all, _ := cmd.Flags().GetBool("all")

		if before == "" && !all {
			cmd.Println("Error: pass --before or --all")
			return
		}
		if before != "" {
			if _, err := time.Parse(time.RFC3339, before); err != nil {
				cmd.Println("Error: --before must be an RFC3339 timestamp")
				return
			}
		}
		res, err := newClient().PurgeHistory(before)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Deleted %d history records\n", res.Deleted)
	},
}

func formatQuantity(q int, unit string) string {
	return strconv.Itoa(q) + " " + unit
}

func init() {
	historyListCmd.Flags().Int("limit", 100, "Maximum number of records")
	historyPurgeCmd.Flags().String("before", "", "Delete records finished before this RFC3339 time")
	historyPurgeCmd.Flags().Bool("all", false, "Delete every record")

	historyCmd.AddCommand(historyListCmd, historyPurgeCmd)
	rootCmd.AddCommand(historyCmd)
}
