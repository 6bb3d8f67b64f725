package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	prevRows    int
	prevFilters filterFlags
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the first rows of the filtered dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if prevRows <= 0 {
			return fmt.Errorf("--rows must be positive, got %d", prevRows)
		}
		v, err := loadView(cmd, &prevFilters)
		if err != nil {
			return err
		}
		header, rows := v.Head(prevRows)
		out := cmd.OutOrStdout()
		t := newTable(out, header)
		t.AppendBulk(rows)
		t.Render()
		fmt.Fprintf(out, "%d rows shown; %d of %d match the filters\n", len(rows), v.Len(), v.Dataset().Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().IntVarP(&prevRows, "rows", "n", 10, "number of rows to show")
	prevFilters.register(previewCmd)
}
