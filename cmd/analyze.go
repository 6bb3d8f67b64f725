package cmd

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/custlens/internal/analysis"
	"github.com/KaramelBytes/custlens/internal/fsutil"
	"github.com/KaramelBytes/custlens/internal/router"
)

var (
	anaMode       string
	anaOutputPath string
	anaJSON       bool
	anaFilters    filterFlags
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <column>...",
	Short: "Route a selection of columns to its chart and statistical test",
	Long: `Classify the selected columns, pick the matching recipe and render it.

Pairwise mode (default) analyzes the columns as picked one at a time: two numeric
columns give a scatter with trend line. Joint mode treats them as a feature set: any
group of numeric columns gives a correlation heat map.`,
	Example: `  custlens analyze Income
  custlens analyze Income "Customer Lifetime Value" LoyaltyStatus -o income-clv.png
  custlens analyze Income "Customer Lifetime Value" EnrollmentYear --mode joint
  custlens analyze "Customer Lifetime Value" Education LoyaltyStatus --loyalty Gold,Star`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := router.ParseMode(anaMode)
		if err != nil {
			return err
		}
		v, err := loadView(cmd, &anaFilters)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		res, err := newRouter().Route(v, router.Selection{Variables: args, Mode: mode})
		if err != nil {
			if router.IsRecoverable(err) {
				warnf(out, "%v", err)
				return nil
			}
			return err
		}
		path := anaOutputPath
		if path == "" {
			path = outcomeFileName(res)
		}
		if err := fsutil.SafeWriteFile(path, res.Image.Data); err != nil {
			return err
		}
		if anaJSON {
			b, err := fsutil.PrettyJSON(newOutcomeJSON(res, path))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		printOutcome(out, res)
		okf(out, "Wrote %s chart to %s", res.Rule.Recipe, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&anaMode, "mode", "pairwise", "selection mode: pairwise | joint")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "chart output path (default derived from the columns)")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "print the outcome as JSON instead of text")
	anaFilters.register(analyzeCmd)
}

func outcomeFileName(res *router.Outcome) string {
	parts := make([]string, len(res.Variables))
	for i, v := range res.Variables {
		parts[i] = fsutil.Slug(v.Name)
	}
	return strings.Join(parts, "__") + "." + res.Image.Format
}

// printOutcome writes the text part of an outcome: recipe, variables and any model output.
func printOutcome(w io.Writer, res *router.Outcome) {
	names := make([]string, len(res.Variables))
	for i, v := range res.Variables {
		names[i] = fmt.Sprintf("%s [%s]", v.Name, v.Kind)
	}
	fmt.Fprintf(w, "Recipe: %s (%s)\n", res.Rule.Recipe, res.Rule.Description)
	fmt.Fprintf(w, "Shape: %s, mode %s\n", res.Shape, res.Mode)
	fmt.Fprintf(w, "Variables: %s\n", strings.Join(names, ", "))
	if res.Formula != "" {
		fmt.Fprintf(w, "Formula: %s\n", res.Formula)
	}
	if res.Anova != nil {
		fmt.Fprintf(w, "\n%s\n", res.Anova.String())
	}
	if res.Manova != nil {
		fmt.Fprintf(w, "\n%s\n", res.Manova.String())
	}
	if res.Corr != nil {
		fmt.Fprintf(w, "\n%s\n", res.Corr.Markdown())
	}
	if len(res.Groups) > 0 {
		fmt.Fprintln(w, "\nGroups:")
	}
	for _, g := range res.Groups {
		name := g.Name
		if g.Hue != "" {
			name += " / " + g.Hue
		}
		fn := analysis.Summarize(g.Values)
		fmt.Fprintf(w, "  %s: n=%d median=%.4g IQR=[%.4g, %.4g] outliers=%d\n", name, fn.N, fn.Median, fn.Q1, fn.Q3, len(fn.Outliers))
	}
}

// outcomeJSON is the --json form of an outcome. Undefined statistics become null.
type outcomeJSON struct {
	Recipe      router.RecipeID `json:"recipe"`
	Description string          `json:"description"`
	Shape       string          `json:"shape"`
	Mode        string          `json:"mode"`
	Variables   []variableJSON  `json:"variables"`
	Formula     string          `json:"formula,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Groups      []groupJSON     `json:"groups,omitempty"`
	Chart       string          `json:"chart"`
}

type variableJSON struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type groupJSON struct {
	Name     string   `json:"name"`
	Hue      string   `json:"hue,omitempty"`
	N        int      `json:"n"`
	Median   *float64 `json:"median"`
	Q1       *float64 `json:"q1"`
	Q3       *float64 `json:"q3"`
	Outliers int      `json:"outliers"`
}

func newOutcomeJSON(res *router.Outcome, chartPath string) outcomeJSON {
	o := outcomeJSON{
		Recipe:      res.Rule.Recipe,
		Description: res.Rule.Description,
		Shape:       res.Shape.String(),
		Mode:        res.Mode.String(),
		Formula:     res.Formula,
		Chart:       chartPath,
	}
	for _, v := range res.Variables {
		o.Variables = append(o.Variables, variableJSON{Name: v.Name, Kind: v.Kind.String()})
	}
	switch {
	case res.Anova != nil:
		o.Summary = res.Anova.String()
	case res.Manova != nil:
		o.Summary = res.Manova.String()
	case res.Corr != nil:
		o.Summary = res.Corr.Markdown()
	}
	for _, g := range res.Groups {
		fn := analysis.Summarize(g.Values)
		o.Groups = append(o.Groups, groupJSON{
			Name: g.Name, Hue: g.Hue, N: fn.N,
			Median: finite(fn.Median), Q1: finite(fn.Q1), Q3: finite(fn.Q3),
			Outliers: len(fn.Outliers),
		})
	}
	return o
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
