package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/custlens/internal/analysis"
	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/fsutil"
)

var (
	descMarkdown   bool
	descOutputPath string
	descOutliers   bool
	descOutlierThr float64
	descTopValues  int
	descFilters    filterFlags
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show KPIs and descriptive statistics of every column",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadView(cmd, &descFilters)
		if err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		opt.Outliers = descOutliers
		if descOutlierThr > 0 {
			opt.OutlierThreshold = descOutlierThr
		}
		if descTopValues > 0 {
			opt.TopValues = descTopValues
		}
		rep := analysis.Describe(v, opt)
		out := cmd.OutOrStdout()

		if descOutputPath != "" {
			if err := fsutil.SafeWriteFile(descOutputPath, []byte(rep.Markdown())); err != nil {
				return err
			}
			okf(out, "Wrote summary to %s", descOutputPath)
			return nil
		}
		if descMarkdown {
			fmt.Fprintln(out, rep.Markdown())
			return nil
		}
		k, err := analysis.ComputeKPIs(v, kpiColumns(v.Dataset()))
		if err != nil {
			return err
		}
		renderKPIs(out, k)
		fmt.Fprintln(out)
		renderDescribe(out, rep)
		for _, w := range rep.Warnings {
			warnf(out, "%s", w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().BoolVar(&descMarkdown, "markdown", false, "print the Markdown summary instead of tables")
	describeCmd.Flags().StringVarP(&descOutputPath, "output", "o", "", "write the Markdown summary to a file")
	describeCmd.Flags().BoolVar(&descOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	describeCmd.Flags().Float64Var(&descOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	describeCmd.Flags().IntVar(&descTopValues, "top", 8, "most frequent values listed per categorical column")
	descFilters.register(describeCmd)
}

// kpiColumns maps the configured columns that exist in ds.
func kpiColumns(ds *dataset.Dataset) analysis.KPIColumns {
	var kc analysis.KPIColumns
	if ds.Has(cfg.Columns.Province) {
		kc.Province = cfg.Columns.Province
	}
	if ds.Has(cfg.Columns.Income) {
		kc.Income = cfg.Columns.Income
	}
	if ds.Has(cfg.Columns.CLV) {
		kc.CLV = cfg.Columns.CLV
	}
	return kc
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	return t
}

func renderKPIs(w io.Writer, k analysis.KPIs) {
	t := newTable(w, []string{"KPI", "Value"})
	t.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, l := range k.Lines() {
		t.Append([]string{l[0], l[1]})
	}
	t.Render()
}

func renderDescribe(w io.Writer, rep *analysis.Report) {
	if rep.Rows < rep.Total {
		fmt.Fprintf(w, "%d of %d rows\n", rep.Rows, rep.Total)
	} else {
		fmt.Fprintf(w, "%d rows\n", rep.Rows)
	}
	t := newTable(w, analysis.DescribeHeader)
	t.AppendBulk(rep.Table())
	t.Render()
}
