package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/custlens/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set custlens configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "data_path: %s\n", cfg.DataPath)
		if cfg.Delimiter != "" {
			fmt.Fprintf(out, "delimiter: %q\n", cfg.Delimiter)
		}
		if cfg.Sheet != "" {
			fmt.Fprintf(out, "sheet: %s\n", cfg.Sheet)
		}
		fmt.Fprintf(out, "date_columns: %s\n", strings.Join(cfg.DateColumns, ", "))
		if cfg.DerivedYearColumn != "" {
			fmt.Fprintf(out, "derived_year: %s from %s\n", cfg.DerivedYearColumn, cfg.DerivedYearSource)
		}
		c := cfg.Columns
		fmt.Fprintf(out, "columns.loyalty: %s\n", c.Loyalty)
		fmt.Fprintf(out, "columns.province: %s\n", c.Province)
		fmt.Fprintf(out, "columns.income: %s\n", c.Income)
		fmt.Fprintf(out, "columns.clv: %s\n", c.CLV)
		fmt.Fprintf(out, "columns.gender: %s\n", c.Gender)
		fmt.Fprintf(out, "columns.education: %s\n", c.Education)
		fmt.Fprintf(out, "columns.year: %s\n", c.Year)
		fmt.Fprintf(out, "exclude_categorical: %s\n", strings.Join(cfg.ExcludeCategorical, ", "))
		fmt.Fprintf(out, "chart: %gx%g in, %s, %d bins\n", cfg.ChartWidth, cfg.ChartHeight, cfg.ChartFormat, cfg.HistBins)
		if len(cfg.Panels) > 0 {
			fmt.Fprintf(out, "panels: %d configured\n", len(cfg.Panels))
		}
		fmt.Fprintf(out, "server_addr: %s\n", cfg.ServerAddr)
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long:  "Set a config value and save to disk. List values (date_columns, exclude_categorical) are comma-separated.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if err := cfg.Set(key, val); err != nil {
			return fmt.Errorf("%w (keys: %s)", err, strings.Join(cfgpkg.Keys(), ", "))
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		okf(cmd.OutOrStdout(), "Saved %s", key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
