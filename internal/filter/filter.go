package filter

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/custlens/internal/dataset"
)

// Predicate decides whether a single dataset row is kept.
type Predicate interface {
	// Column is the column the predicate reads.
	Column() string
	// Kind is the column kind the predicate requires.
	Kind() dataset.Kind
	// Match reports whether row passes. Null cells never pass.
	Match(c *dataset.Column, row int) bool
	String() string
}

// InSet keeps rows whose categorical value is one of Values. An empty set keeps nothing,
// the way an emptied multi-select does.
type InSet struct {
	Col    string
	Values []string
}

func (p InSet) Column() string { return p.Col }
func (p InSet) Kind() dataset.Kind { return dataset.Categorical }
func (p InSet) String() string { return fmt.Sprintf("%s in [%s]", p.Col, strings.Join(p.Values, ", ")) }

func (p InSet) Match(c *dataset.Column, row int) bool {
	v, ok := c.Text(row)
	if !ok {
		return false
	}
	for _, want := range p.Values {
		if v == want {
			return true
		}
	}
	return false
}

// InRange keeps rows whose numeric value lies in [Min, Max].
type InRange struct {
	Col      string
	Min, Max float64
}

func (p InRange) Column() string { return p.Col }
func (p InRange) Kind() dataset.Kind { return dataset.Numeric }
func (p InRange) String() string { return fmt.Sprintf("%s in [%g, %g]", p.Col, p.Min, p.Max) }

func (p InRange) Match(c *dataset.Column, row int) bool {
	v, ok := c.Float(row)
	if !ok {
		return false
	}
	return v >= p.Min && v <= p.Max
}

// Range is an inclusive numeric interval, the value of a range slider.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Selection is a set of predicates combined with logical AND.
type Selection struct {
	preds []Predicate
}

// And returns a selection with p appended. The receiver is left unchanged.
func (s Selection) And(p ...Predicate) Selection {
	out := make([]Predicate, 0, len(s.preds)+len(p))
	out = append(out, s.preds...)
	out = append(out, p...)
	return Selection{preds: out}
}

// Predicates returns the predicates of the selection.
func (s Selection) Predicates() []Predicate {
	out := make([]Predicate, len(s.preds))
	copy(out, s.preds)
	return out
}

// Apply evaluates the selection over every row of ds and returns the surviving rows as a view.
// An empty selection keeps every row.
func (s Selection) Apply(ds *dataset.Dataset) (*dataset.View, error) {
	cols := make([]*dataset.Column, len(s.preds))
	for i, p := range s.preds {
		c, err := ds.Column(p.Column())
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", p, err)
		}
		if c.Kind != p.Kind() {
			return nil, fmt.Errorf("filter %s: column is %s, want %s", p, c.Kind, p.Kind())
		}
		cols[i] = c
	}
	rows := make([]int, 0, ds.Len())
	for r := 0; r < ds.Len(); r++ {
		keep := true
		for i, p := range s.preds {
			if !p.Match(cols[i], r) {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, r)
		}
	}
	return dataset.NewView(ds, rows)
}

// Options lists the non-null levels of a categorical column, the default of a multi-select.
func Options(ds *dataset.Dataset, col string) ([]string, error) {
	return dataset.All(ds).Levels(col)
}

// Bounds returns the min and max of a numeric column, the default of a range slider.
// Bounds are widened to whole numbers like the integer slider they feed.
func Bounds(ds *dataset.Dataset, col string) (Range, error) {
	vals, err := dataset.All(ds).Floats(col)
	if err != nil {
		return Range{}, err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return Range{}, fmt.Errorf("column %q has no values", col)
	}
	return Range{Min: math.Floor(lo), Max: math.Ceil(hi)}, nil
}

// Spec is a serializable form of the filter widgets: categorical selections by column
// and numeric ranges by column.
type Spec struct {
	Sets   map[string][]string `json:"sets,omitempty" yaml:"sets,omitempty"`
	Ranges map[string]Range    `json:"ranges,omitempty" yaml:"ranges,omitempty"`
}

// Selection converts sp into predicates, ordered by column name so that two equal
// specs produce identical selections.
func (sp Spec) Selection() Selection {
	var sel Selection
	setCols := make([]string, 0, len(sp.Sets))
	for c := range sp.Sets {
		setCols = append(setCols, c)
	}
	sort.Strings(setCols)
	for _, c := range setCols {
		sel = sel.And(InSet{Col: c, Values: sp.Sets[c]})
	}
	rangeCols := make([]string, 0, len(sp.Ranges))
	for c := range sp.Ranges {
		rangeCols = append(rangeCols, c)
	}
	sort.Strings(rangeCols)
	for _, c := range rangeCols {
		r := sp.Ranges[c]
		sel = sel.And(InRange{Col: c, Min: r.Min, Max: r.Max})
	}
	return sel
}
