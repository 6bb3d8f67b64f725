package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/custlens/internal/router"
)

var (
	recPlain      bool
	recMaxNumeric int
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Print the recipe dispatch table and the shapes it leaves uncovered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		t := router.DefaultTable()
		if recPlain {
			fmt.Fprint(out, t.Format())
			return nil
		}
		tw := newTable(out, []string{"#", "Numeric", "Categorical", "Modes", "Recipe", "Description"})
		for i, r := range t.Rules {
			tw.Append([]string{strconv.Itoa(i + 1), r.Numeric.String(), r.Categorical.String(), r.Modes.String(), string(r.Recipe), r.Description})
		}
		tw.Render()
		fmt.Fprintf(out, "More than %d categorical variables: %s\n\n", t.MaxCategorical, router.MsgNoRecipe)

		for _, m := range []router.Mode{router.Pairwise, router.Joint} {
			shapes := t.Unsupported(m, recMaxNumeric)
			keys := make([]string, len(shapes))
			for i, s := range shapes {
				keys[i] = s.String()
			}
			fmt.Fprintf(out, "Unsupported in %s mode: %s\n", m, strings.Join(keys, " "))
		}
		findings := t.Audit()
		if len(findings) == 0 {
			okf(out, "Every rule is reachable")
			return nil
		}
		for _, f := range findings {
			warnf(out, "rule %d (%s, %s): %s", f.Index+1, f.Recipe, f.Mode, f.Reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recipesCmd)
	recipesCmd.Flags().BoolVar(&recPlain, "plain", false, "print one rule per line without a table")
	recipesCmd.Flags().IntVar(&recMaxNumeric, "max-numeric", 3, "largest numeric count probed for unsupported shapes")
}
