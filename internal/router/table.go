package router

import (
	"fmt"
	"strconv"
	"strings"
)

// RecipeID names an analysis recipe.
type RecipeID string

const (
	HistBox       RecipeID = "hist_box"
	CountHist     RecipeID = "count_hist"
	ScatterTrend  RecipeID = "scatter_trend"
	PairedCount   RecipeID = "paired_count"
	SplitBox      RecipeID = "split_box"
	CorrHeatmap   RecipeID = "corr_heatmap"
	StackedBar    RecipeID = "stacked_bar"
	ScatterManova RecipeID = "scatter_manova"
	TwoWayAnova   RecipeID = "two_way_anova"
)

// Mode is the kind of panel a selection comes from. Modes are bit flags so a rule can
// apply to several.
type Mode uint8

const (
	// Pairwise panels pick variables one at a time; two numeric variables are a scatter.
	Pairwise Mode = 1 << iota
	// Joint panels pick a feature set; any group of numeric variables is a correlation.
	Joint

	AnyMode = Pairwise | Joint
)

// Has reports whether m includes every flag of o.
func (m Mode) Has(o Mode) bool { return m&o == o }

func (m Mode) String() string {
	var parts []string
	if m.Has(Pairwise) {
		parts = append(parts, "pairwise")
	}
	if m.Has(Joint) {
		parts = append(parts, "joint")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText accepts the comma-separated form String produces.
func (m *Mode) UnmarshalText(b []byte) error {
	var out Mode
	for _, part := range strings.Split(string(b), ",") {
		if strings.TrimSpace(part) == "none" {
			continue
		}
		p, err := ParseMode(part)
		if err != nil {
			return err
		}
		out |= p
	}
	*m = out
	return nil
}

// ParseMode parses "pairwise" or "joint".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pairwise":
		return Pairwise, nil
	case "joint":
		return Joint, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want pairwise or joint)", s)
}

// Bound is an inclusive count range; Max < 0 means unbounded.
type Bound struct {
	Min, Max int
}

// Exactly matches only n.
func Exactly(n int) Bound { return Bound{Min: n, Max: n} }

// AtLeast matches n or more.
func AtLeast(n int) Bound { return Bound{Min: n, Max: -1} }

func (b Bound) Contains(n int) bool { return n >= b.Min && (b.Max < 0 || n <= b.Max) }

func op(b Bound) string {
	if b.Max < 0 {
		return b.String()
	}
	return "=" + b.String()
}

func (b Bound) String() string {
	if b.Max < 0 {
		return ">=" + strconv.Itoa(b.Min)
	}
	if b.Min == b.Max {
		return strconv.Itoa(b.Min)
	}
	return fmt.Sprintf("%d..%d", b.Min, b.Max)
}

// Shape is the coarse key of a selection: how many numeric and categorical variables it has.
type Shape struct {
	Numeric     int `json:"numeric"`
	Categorical int `json:"categorical"`
}

func (s Shape) String() string { return fmt.Sprintf("(%d,%d)", s.Numeric, s.Categorical) }

// Rule associates a shape with a recipe.
type Rule struct {
	Recipe      RecipeID `json:"recipe"`
	Description string   `json:"description"`
	Numeric     Bound    `json:"numeric"`
	Categorical Bound    `json:"categorical"`
	Modes       Mode     `json:"modes"`
}

// Matches reports whether the rule applies to shape s in mode m.
func (r Rule) Matches(s Shape, m Mode) bool {
	return r.Modes.Has(m) && r.Numeric.Contains(s.Numeric) && r.Categorical.Contains(s.Categorical)
}

// Table is an ordered list of rules; the first matching rule wins. Selections with more
// than MaxCategorical categorical variables never match.
type Table struct {
	Rules          []Rule
	MaxCategorical int
}

// DefaultTable returns the recipe table used by the dashboard.
func DefaultTable() Table {
	return Table{
		MaxCategorical: 2,
		Rules: []Rule{
			{HistBox, "Histogram + box plot with outliers", Exactly(1), Exactly(0), AnyMode},
			{CountHist, "Count histogram", Exactly(0), Exactly(1), AnyMode},
			{ScatterTrend, "Scatter plot with linear trend line", Exactly(2), Exactly(0), Pairwise},
			{PairedCount, "Paired count-plot grid, each variable as hue for the other", Exactly(0), Exactly(2), Pairwise},
			{SplitBox, "Horizontal box plot of the numeric variable split by category", Exactly(1), Exactly(1), AnyMode},
			{CorrHeatmap, "Correlation heat map over all selected numeric variables", AtLeast(2), Exactly(0), AnyMode},
			{StackedBar, "Stacked bar chart of joint frequency (first two categorical variables)", Exactly(0), AtLeast(2), Joint},
			{ScatterManova, "Scatter plot colored by category + MANOVA (Wilks' lambda)", Exactly(2), Exactly(1), AnyMode},
			{TwoWayAnova, "Two-way ANOVA with interaction + grouped box plot", Exactly(1), Exactly(2), AnyMode},
		},
	}
}

// Lookup returns the first rule matching shape s in mode m.
func (t Table) Lookup(s Shape, m Mode) (Rule, bool) {
	if s.Categorical > t.MaxCategorical {
		return Rule{}, false
	}
	for _, r := range t.Rules {
		if r.Matches(s, m) {
			return r, true
		}
	}
	return Rule{}, false
}

// Finding is a problem Audit found with one rule.
type Finding struct {
	Index  int      `json:"index"`
	Recipe RecipeID `json:"recipe"`
	Mode   Mode     `json:"mode"`
	Reason string   `json:"reason"`
}

func (f Finding) String() string {
	return fmt.Sprintf("rule %d (%s) in %s mode: %s", f.Index+1, f.Recipe, f.Mode, f.Reason)
}

// probeLimit is one past the largest count any rule mentions. Counts at or beyond it
// behave identically for every bound in the table.
func (t Table) probeLimit() int {
	limit := t.MaxCategorical + 1
	for _, r := range t.Rules {
		for _, b := range []Bound{r.Numeric, r.Categorical} {
			limit = max(limit, b.Min+1, b.Max+1)
		}
	}
	return limit
}

// Audit reports, per mode, rules that can never fire: either no reachable shape matches
// them, or every shape they match is claimed by an earlier rule.
func (t Table) Audit() []Finding {
	var out []Finding
	limit := t.probeLimit()
	for _, m := range []Mode{Pairwise, Joint} {
		for i, r := range t.Rules {
			if !r.Modes.Has(m) {
				continue
			}
			matched, owned := 0, 0
			for n := 0; n <= limit; n++ {
				for c := 0; c <= t.MaxCategorical; c++ {
					s := Shape{n, c}
					if !r.Matches(s, m) {
						continue
					}
					matched++
					if t.firstIndex(s, m) == i {
						owned++
					}
				}
			}
			switch {
			case matched == 0:
				out = append(out, Finding{Index: i, Recipe: r.Recipe, Mode: m, Reason: "matches no supported shape"})
			case owned == 0:
				out = append(out, Finding{Index: i, Recipe: r.Recipe, Mode: m, Reason: "shadowed by earlier rules"})
			}
		}
	}
	return out
}

func (t Table) firstIndex(s Shape, m Mode) int {
	for i, r := range t.Rules {
		if r.Matches(s, m) {
			return i
		}
	}
	return -1
}

// Unsupported lists the non-empty shapes with at most maxNumeric numeric variables that no
// rule accepts in mode m.
func (t Table) Unsupported(m Mode, maxNumeric int) []Shape {
	var out []Shape
	for n := 0; n <= maxNumeric; n++ {
		for c := 0; c <= t.MaxCategorical+1; c++ {
			s := Shape{n, c}
			if n+c == 0 {
				continue
			}
			if _, ok := t.Lookup(s, m); !ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// Format lists the rules one per line, for printing and golden tests.
func (t Table) Format() string {
	var b strings.Builder
	for i, r := range t.Rules {
		fmt.Fprintf(&b, "%d | n%s | c%s | %s | %s | %s\n", i+1, op(r.Numeric), op(r.Categorical), r.Modes, r.Recipe, r.Description)
	}
	fmt.Fprintf(&b, "* | c>%d | rejected: %s\n", t.MaxCategorical, MsgNoRecipe)
	return b.String()
}
