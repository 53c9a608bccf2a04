package cmd

import (
	"prodflow/pkg/api"

	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List and create rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms and their successors",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rooms, err := newClient().ListRooms()
		if err != nil {
			printError(cmd, err)
			return
		}
		codes := make(map[string]string, len(rooms))
		for _, r := range rooms {
			codes[r.ID] = r.Code
		}
		cmd.Printf("%-8s %-20s %-16s %-8s %s\n", "CODE", "NAME", "KIND", "NEXT", "ID")
		for _, r := range rooms {
			next := "-"
			if r.NextRoomID != nil {
				next = codes[*r.NextRoomID]
			}
			cmd.Printf("%-8s %-20s %-16s %-8s %s\n", r.Code, r.Name, r.Kind, next, r.ID)
		}
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room",
	Long: `Create a room. The successor must already exist.

Example:
  prodctl rooms create --code LBL --name Labelling --kind labelling
  prodctl rooms create --code FIL --name Filling --kind filling --next <room-id>`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		code, _ := flags.GetString("code")
		name, _ := flags.GetString("name")
		kind, _ := flags.GetString("kind")
		next, _ := flags.GetString("next")

		if code == "" || name == "" || kind == "" {
			cmd.Println("Error: --code, --name and --kind are required")
			return
		}
		req := api.CreateRoomRequest{Code: code, Name: name, Kind: kind}
		if next != "" {
			req.NextRoomID = &next
		}
		room, err := newClient().CreateRoom(req)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Room created!\nID: %s\nCode: %s\n", room.ID, room.Code)
	},
}

var operatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "List and create operators",
}

var operatorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operators",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ops, err := newClient().ListOperators()
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("%-24s %-16s %s\n", "NAME", "CATEGORY", "ID")
		for _, op := range ops {
			cmd.Printf("%-24s %-16s %s\n", op.Name, op.Category, op.ID)
		}
	},
}

var operatorsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an operator",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		op, err := newClient().CreateOperator(api.CreateOperatorRequest{Name: args[0], Category: category})
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Operator created!\nID: %s\nName: %s\n", op.ID, op.Name)
	},
}

func init() {
	flags := roomsCreateCmd.Flags()
	flags.String("code", "", "Short room code (required)")
	flags.String("name", "", "Room name (required)")
	flags.String("kind", "", "Process kind, e.g. weighing, filling, labelling (required)")
	flags.String("next", "", "ID of the room batches move to next")

	operatorsCreateCmd.Flags().String("category", "", "Category matched against room kinds for default operator selection")

	roomsCmd.AddCommand(roomsListCmd, roomsCreateCmd)
	operatorsCmd.AddCommand(operatorsListCmd, operatorsCreateCmd)
	rootCmd.AddCommand(roomsCmd, operatorsCmd)
}
