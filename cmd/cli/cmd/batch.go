package cmd

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"prodflow/pkg/api"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Create, inspect and advance production batches",
}

var batchCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a batch",
	Long: `Create a batch. Without --room it starts in the configured entry room and
without --number a number is generated.

Example:
  prodctl batch create --item <item-id> --target 500 --unit kg
  prodctl batch create --item <item-id> --target 1200 --unit pcs --room <room-id> --estimate 100 --packaging-unit karton
  prodctl batch create --item <item-id> --target 50 --unit liter --scheduled 2024-03-01T06:00:00Z`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		number, _ := flags.GetString("number")
		item, _ := flags.GetString("item")
		target, _ := flags.GetInt("target")
		unit, _ := flags.GetString("unit")
		room, _ := flags.GetString("room")
		operator, _ := flags.GetString("operator")
		estimate, _ := flags.GetInt("estimate")
		packagingUnit, _ := flags.GetString("packaging-unit")
		scheduled, _ := flags.GetString("scheduled")

		if item == "" {
			cmd.Println("Error: --item is required")
			return
		}
		if target <= 0 {
			cmd.Println("Error: --target must be positive")
			return
		}

		req := api.CreateBatchRequest{
			BatchNumber:    number,
			ItemID:         item,
			TargetQuantity: target,
			Unit:           unit,
		}
		if room != "" {
			req.RoomID = &room
		}
		if operator != "" {
			req.OperatorID = &operator
		}
		if flags.Changed("estimate") {
			req.EstimatedPackaging = &estimate
		}
		if packagingUnit != "" {
			req.PackagingUnit = &packagingUnit
		}
		if scheduled != "" {
			at, err := time.Parse(time.RFC3339, scheduled)
			if err != nil {
				cmd.Println("Error: --scheduled must be an RFC3339 timestamp")
				return
			}
			req.ScheduledAt = &at
		}

		b, err := newClient().CreateBatch(req)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Batch created!\nID: %s\nNumber: %s\nRoom: %s\n", b.ID, b.BatchNumber, b.RoomID)
	},
}

var batchShowCmd = &cobra.Command{
	Use:   "show [batch_id]",
	Short: "Show a batch record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b, err := newClient().GetBatch(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		printBatch(cmd, *b)
	},
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch records",
	Long: `List batch records, newest first.

Example:
  prodctl batch list --room <room-id> --status waiting,in_progress
  prodctl batch list --number 240301-4F2A9C`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		room, _ := flags.GetString("room")
		statuses, _ := flags.GetStringSlice("status")
		number, _ := flags.GetString("number")
		limit, _ := flags.GetInt("limit")

		q := url.Values{}
		if room != "" {
			q.Set("room_id", room)
		}
		if len(statuses) > 0 {
			q.Set("status", strings.Join(statuses, ","))
		}
		if number != "" {
			q.Set("batch_number", number)
		}
		q.Set("limit", strconv.Itoa(limit))

		batches, err := newClient().ListBatches(q)
		if err != nil {
			printError(cmd, err)
			return
		}
		if len(batches) == 0 {
			cmd.Println("No batches found")
			return
		}
		cmd.Printf("%-16s %-36s %-38s %s\n", "NUMBER", "ID", "STATUS", "PROGRESS")
		for _, b := range batches {
			cmd.Printf("%-16s %-36s %-38s %d/%d %s\n", b.BatchNumber, b.ID, colorizeStatus(b.Status), b.Progress, b.TargetQuantity, b.Unit)
		}
	},
}

var batchProgressCmd = &cobra.Command{
	Use:   "progress [batch_id] [quantity]",
	Short: "Record produced quantity in the batch's current room",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			cmd.Println("Error: quantity must be a whole number")
			return
		}
		token, _ := cmd.Flags().GetString("token")

		res, err := newClient().AddProgress(args[0], api.ProgressRequest{Quantity: qty, ClientToken: token})
		if err != nil {
			printError(cmd, err)
			return
		}
		if res.Duplicate {
			cmd.Printf("• Already recorded (token %s), progress %d/%d\n", token, res.Progress, res.Batch.TargetQuantity)
			return
		}
		cmd.Printf("✓ Progress %d/%d %s\n", res.Progress, res.Batch.TargetQuantity, res.Batch.Unit)
		if res.Finished {
			cmd.Printf("Status: %s\n", colorizeStatus(res.Batch.Status))
		}
		if res.Next != nil {
			cmd.Printf("Next room record: %s (%s)\n", res.Next.ID, res.Next.RoomID)
		}
		if res.Warning != "" {
			cmd.Printf("%sWarning:%s %s\n", colorYellow, colorReset, res.Warning)
		}
		printShadow(cmd, res.Shadow)
	},
}

var batchPackageCmd = &cobra.Command{
	Use:   "package [batch_id] [count]",
	Short: "Record packaged units",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			cmd.Println("Error: count must be a whole number")
			return
		}
		token, _ := cmd.Flags().GetString("token")
		unit, _ := cmd.Flags().GetString("unit")

		req := api.PackagingRequest{Quantity: qty, ClientToken: token}
		if unit != "" {
			req.PackagingUnit = &unit
		}
		res, err := newClient().AddPackaging(args[0], req)
		if err != nil {
			printError(cmd, err)
			return
		}
		if res.Duplicate {
			cmd.Printf("• Already recorded (token %s), total %d\n", res.ClientToken, res.Total)
			return
		}
		cmd.Printf("✓ Packaged total %d\n", res.Total)
		if res.RemainingAfter != nil {
			cmd.Printf("Remaining: %d\n", *res.RemainingAfter)
		}
		if res.Overrun {
			cmd.Printf("%sWarning:%s count is above the estimate\n", colorYellow, colorReset)
		}
	},
}

var batchFinalizeCmd = &cobra.Command{
	Use:   "finalize [batch_id]",
	Short: "Close packaging for a batch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b, err := newClient().FinalizePackaging(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Packaging finalized\nStatus: %s\n", colorizeStatus(b.Status))
	},
}

var batchOutcomeCmd = &cobra.Command{
	Use:   "outcome [batch_id] [release|reject]",
	Short: "Record the verification decision for a gated batch",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		res, err := newClient().SetOutcome(args[0], args[1])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Outcome %s\nStatus: %s\n", colorizeOutcome(res.Batch.Outcome), colorizeStatus(res.Status))
		if res.Next != nil {
			cmd.Printf("Next room record: %s (%s)\n", res.Next.ID, res.Next.RoomID)
		}
		if res.Warning != "" {
			cmd.Printf("%sWarning:%s %s\n", colorYellow, colorReset, res.Warning)
		}
	},
}

// markCmd builds one of the status mark subcommands.
func markCmd(use, mark, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [batch_id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := newClient().Mark(args[0], mark)
			if err != nil {
				printError(cmd, err)
				return
			}
			cmd.Printf("✓ Status: %s\n", colorizeStatus(res.Batch.Status))
			printShadow(cmd, res.Shadow)
		},
	}
}

var batchMoveCmd = &cobra.Command{
	Use:   "move [batch_id|batch_number ...]",
	Short: "Move batches to another room",
	Long: `Move one or more batches to another room. A single reference may be a
batch number, which resolves to its most recent record; several references
must be batch ids.

Example:
  prodctl batch move 240301-4F2A9C --to <room-id>
  prodctl batch move <id1> <id2> --to <room-id> --mode spawn`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		to, _ := flags.GetString("to")
		mode, _ := flags.GetString("mode")
		operator, _ := flags.GetString("operator")
		force, _ := flags.GetBool("force")

		if to == "" {
			cmd.Println("Error: --to is required")
			return
		}
		var op *string
		if operator != "" {
			op = &operator
		}
		client := newClient()

		if len(args) == 1 {
			res, err := client.MoveBatch(args[0], api.MoveRequest{TargetRoomID: to, OperatorID: op, Mode: mode, Force: force})
			if err != nil {
				printError(cmd, err)
				return
			}
			if res.Warning != "" {
				cmd.Printf("%sWarning:%s %s, nothing changed\n", colorYellow, colorReset, res.Warning)
				return
			}
			cmd.Printf("✓ Moved %s (%s)\nRecord: %s\nRoom: %s\n", res.Batch.BatchNumber, res.Mode, res.Batch.ID, res.Batch.RoomID)
			return
		}

		res, err := client.MoveBatches(api.BulkMoveRequest{BatchIDs: args, TargetRoomID: to, OperatorID: op, Mode: mode, Force: force})
		if err != nil {
			printError(cmd, err)
			return
		}
		for _, item := range res.Results {
			switch {
			case item.Error != nil:
				cmd.Printf("%s✗%s %s: %s\n", colorRed, colorReset, item.BatchID, item.Error.Error)
			case item.Warning != "":
				cmd.Printf("%s•%s %s: %s\n", colorYellow, colorReset, item.BatchID, item.Warning)
			default:
				cmd.Printf("%s✓%s %s\n", colorGreen, colorReset, item.BatchID)
			}
		}
	},
}

func printShadow(cmd *cobra.Command, sh *api.ShadowResponse) {
	if sh == nil {
		return
	}
	switch {
	case sh.Error != "":
		cmd.Printf("%sWarning:%s shadow record not created: %s\n", colorYellow, colorReset, sh.Error)
	case sh.Created:
		cmd.Printf("Shadow record: %s\n", sh.BatchID)
	}
}

func init() {
	flags := batchCreateCmd.Flags()
	flags.String("number", "", "Batch number (generated when empty)")
	flags.String("item", "", "Item ID (required)")
	flags.Int("target", 0, "Target quantity (required)")
	flags.String("unit", "kg", "Unit: kg, pcs, liter or pack")
	flags.String("room", "", "Initial room ID (default: entry room)")
	flags.String("operator", "", "Operator ID (default: matched by room kind)")
	flags.Int("estimate", 0, "Estimated packaging count")
	flags.String("packaging-unit", "", "Packaging unit: pcs or karton")
	flags.String("scheduled", "", "Scheduled start (RFC3339)")

	listFlags := batchListCmd.Flags()
	listFlags.String("room", "", "Filter by room ID")
	listFlags.StringSlice("status", nil, "Filter by status (repeatable or comma separated)")
	listFlags.String("number", "", "Filter by batch number")
	listFlags.Int("limit", 50, "Maximum number of records")

	batchProgressCmd.Flags().String("token", "", "Idempotency token; a repeated token is applied once")
	batchPackageCmd.Flags().String("token", "", "Idempotency token; a repeated token is applied once")
	batchPackageCmd.Flags().String("unit", "", "Packaging unit: pcs or karton")

	moveFlags := batchMoveCmd.Flags()
	moveFlags.String("to", "", "Target room ID (required)")
	moveFlags.String("mode", "redirect", "redirect moves the record, spawn leaves it and creates a new one")
	moveFlags.String("operator", "", "Operator ID for the target room")
	moveFlags.Bool("force", false, "Move a batch that has not finished its current room")

	batchCmd.AddCommand(
		batchCreateCmd,
		batchShowCmd,
		batchListCmd,
		batchProgressCmd,
		batchPackageCmd,
		batchFinalizeCmd,
		batchOutcomeCmd,
		markCmd("start", "start", "Mark a waiting batch as in progress"),
		markCmd("finish", "finish", "Mark a batch as finished in its current room"),
		markCmd("ready", "ready", "Mark a batch as ready to move"),
		batchMoveCmd,
	)
	rootCmd.AddCommand(batchCmd)
}
