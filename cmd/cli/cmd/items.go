package cmd

import (
	"fmt"
	"strings"

	"prodflow/pkg/api"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"
)

// importChunk bounds a single /items/import request.
const importChunk = 500

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List and import item descriptions",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List item descriptions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		items, err := newClient().ListItems(limit)
		if err != nil {
			printError(cmd, err)
			return
		}
		for _, it := range items {
			barcode := "-"
			if it.Barcode != nil {
				barcode = *it.Barcode
			}
			cmd.Printf("%s  %-16s %s\n", it.ID, barcode, it.Description)
		}
	},
}

var itemsImportCmd = &cobra.Command{
	Use:   "import [file.xlsx]",
	Short: "Import item descriptions from an Excel workbook",
	Long: `Import item descriptions from an Excel workbook.

The first row is a header. The "Item Description" column is required and a
"Barcode" column is used when present. Descriptions already known to the
controller are skipped.

Example:
  prodctl items import master_item.xlsx
  prodctl items import master_item.xlsx --sheet Items --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sheet, _ := cmd.Flags().GetString("sheet")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		items, err := readItemWorkbook(args[0], sheet)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if len(items) == 0 {
			cmd.Println("No item descriptions found in workbook")
			return
		}
		if dryRun {
			cmd.Printf("Found %d item descriptions (dry run, nothing imported)\n", len(items))
			return
		}

		client := newClient()
		var inserted, skipped int
		for start := 0; start < len(items); start += importChunk {
			end := min(start+importChunk, len(items))
			res, err := client.ImportItems(api.ImportItemsRequest{Items: items[start:end]})
			if err != nil {
				printError(cmd, err)
				return
			}
			inserted += res.Inserted
			skipped += res.Skipped
		}
		if inserted == 0 {
			cmd.Println("No new item descriptions to import")
			return
		}
		cmd.Printf("✓ Imported %d item descriptions (%d already present)\n", inserted, skipped)
	},
}

// readItemWorkbook reads unique item descriptions from sheet, or from the first
// sheet when sheet is empty.
func readItemWorkbook(path, sheet string) ([]api.CreateItemRequest, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	descCol, barcodeCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "item description", "description":
			descCol = i
		case "barcode":
			barcodeCol = i
		}
	}
	if descCol < 0 {
		return nil, fmt.Errorf("column %q not found in sheet %q", "Item Description", sheet)
	}

	seen := map[string]bool{}
	var items []api.CreateItemRequest
	for _, row := range rows[1:] {
		if descCol >= len(row) {
			continue
		}
		desc := strings.TrimSpace(row[descCol])
		if desc == "" || seen[desc] {
			continue
		}
		seen[desc] = true

		it := api.CreateItemRequest{Description: desc}
		if barcodeCol >= 0 && barcodeCol < len(row) {
			if bc := strings.TrimSpace(row[barcodeCol]); bc != "" {
				it.Barcode = &bc
			}
		}
		items = append(items, it)
	}
	return items, nil
}

func init() {
	itemsListCmd.Flags().Int("limit", 100, "Maximum number of items to list")

	itemsImportCmd.Flags().String("sheet", "", "Sheet to read (default: the active sheet)")
	itemsImportCmd.Flags().Bool("dry-run", false, "Parse the workbook without importing")

	itemsCmd.AddCommand(itemsListCmd, itemsImportCmd)
	rootCmd.AddCommand(itemsCmd)
}
