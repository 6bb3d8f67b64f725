package cmd

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/custlens/internal/dashboard"
	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/filter"
	"github.com/KaramelBytes/custlens/internal/fsutil"
	"github.com/KaramelBytes/custlens/internal/router"
)

var (
	dashOutDir   string
	dashExplore  []string
	dashFeatures []string
	dashQuiet    bool
	dashFilters  filterFlags
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the full dashboard into a directory of charts with an index.md",
	Long: `Render the KPIs, the describe table, the preset overview panels, the univariate
grid and the explore/feature-set selections into an output directory. Each panel is
rendered independently: a panel that cannot be drawn is listed in index.md with its
message and the rest are still written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg.DataPath == "" {
			_, err := loadDataset()
			return err
		}
		cache := dataset.NewCache(cfg.Loader(), logger)
		m := dashboard.NewManager(cache, cfg.DataPath, newRouter(), cfg.DashboardOptions(), logger)
		s, err := m.Open()
		if err != nil {
			return err
		}
		for _, u := range dashboardUpdates(cmd) {
			if err := s.Apply(u); err != nil {
				return err
			}
		}
		if err := fsutil.EnsureDir(dashOutDir); err != nil {
			return err
		}

		var b strings.Builder
		fmt.Fprintf(&b, "# Customer loyalty dashboard\n\nDataset: %s\n\n", s.Dataset().Name)
		k, err := s.KPIs()
		if err != nil {
			return err
		}
		b.WriteString("## Key metrics\n\n| KPI | Value |\n|---|---:|\n")
		for _, l := range k.Lines() {
			fmt.Fprintf(&b, "| %s | %s |\n", l[0], l[1])
		}
		rep, err := s.Describe()
		if err != nil {
			return err
		}
		if err := fsutil.SafeWriteFile(filepath.Join(dashOutDir, "describe.md"), []byte(rep.Markdown())); err != nil {
			return err
		}
		b.WriteString("\nDescriptive statistics: [describe.md](describe.md)\n")

		var ids []string
		for _, id := range s.PanelIDs() {
			if (id == dashboard.ExplorePanel && !cmd.Flags().Changed("explore")) ||
				(id == dashboard.FeaturesPanel && !cmd.Flags().Changed("features")) {
				continue
			}
			ids = append(ids, id)
		}
		failed := 0
		for i, id := range ids {
			if !dashQuiet {
				fmt.Fprintf(out, "[%d/%d] Rendering %s...\n", i+1, len(ids), id)
			}
			res, err := s.Panel(id)
			if err != nil {
				return err
			}
			if res.Err != nil && !router.IsRecoverable(res.Err) {
				return fmt.Errorf("panel %s: %w", id, res.Err)
			}
			fmt.Fprintf(&b, "\n## %s\n\n", res.Panel.Title)
			if res.Err != nil {
				failed++
				fmt.Fprintf(&b, "> %s\n", res.Message)
				continue
			}
			name := fsutil.Slug(id) + "." + res.Outcome.Image.Format
			if err := fsutil.SafeWriteFile(filepath.Join(dashOutDir, name), res.Outcome.Image.Data); err != nil {
				return err
			}
			fmt.Fprintf(&b, "Recipe: `%s` on %s\n\n![%s](%s)\n", res.Outcome.Rule.Recipe, strings.Join(res.Panel.Variables, ", "), res.Panel.Title, name)
			if summary := modelSummary(res.Outcome); summary != "" {
				fmt.Fprintf(&b, "\n```\n%s\n```\n", strings.TrimRight(summary, "\n"))
			}
		}
		index := filepath.Join(dashOutDir, "index.md")
		if err := fsutil.SafeWriteFile(index, []byte(b.String())); err != nil {
			return err
		}
		if failed > 0 {
			warnf(out, "%d of %d panels had nothing to render; see index.md", failed, len(ids))
		}
		okf(out, "Wrote dashboard to %s", index)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().StringVarP(&dashOutDir, "out", "o", "dashboard", "output directory")
	dashboardCmd.Flags().StringSliceVar(&dashExplore, "explore", nil, "variables of the explore panel (pairwise)")
	dashboardCmd.Flags().StringSliceVar(&dashFeatures, "features", nil, "variables of the feature-set panel (joint)")
	dashboardCmd.Flags().BoolVar(&dashQuiet, "quiet", false, "suppress progress output")
	dashFilters.register(dashboardCmd)
}

// dashboardUpdates turns the command flags into widget updates.
func dashboardUpdates(cmd *cobra.Command) []dashboard.Update {
	var ups []dashboard.Update
	for _, s := range []struct {
		flag, widget string
		vals         []string
	}{
		{"loyalty", dashboard.WidgetLoyalty, dashFilters.loyalty},
		{"province", dashboard.WidgetProvince, dashFilters.province},
		{"gender", dashboard.WidgetGender, dashFilters.gender},
		{"education", dashboard.WidgetEducation, dashFilters.education},
		{"explore", dashboard.WidgetExplore, dashExplore},
		{"features", dashboard.WidgetFeatures, dashFeatures},
	} {
		if cmd.Flags().Changed(s.flag) {
			ups = append(ups, dashboard.Update{Widget: s.widget, Values: s.vals})
		}
	}
	minSet, maxSet := cmd.Flags().Changed("income-min"), cmd.Flags().Changed("income-max")
	if minSet || maxSet {
		r := filter.Range{Min: dashFilters.incomeMin, Max: dashFilters.incomeMax}
		if !minSet {
			r.Min = math.Inf(-1)
		}
		if !maxSet {
			r.Max = math.Inf(1)
		}
		ups = append(ups, dashboard.Update{Widget: dashboard.WidgetIncome, Range: &r})
	}
	return ups
}

func modelSummary(o *router.Outcome) string {
	switch {
	case o.Anova != nil:
		return o.Anova.String()
	case o.Manova != nil:
		return o.Manova.String()
	case o.Corr != nil:
		return o.Corr.Markdown()
	}
	return ""
}
