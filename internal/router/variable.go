package router

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/KaramelBytes/custlens/internal/dataset"
)

// Variable is a selected column tagged with its kind.
type Variable struct {
	Name string       `json:"name"`
	Kind dataset.Kind `json:"kind"`
}

// Classify tags each selected name with the kind of its column. Unknown columns,
// repeated names and date columns are rejected.
func Classify(ds *dataset.Dataset, names []string) ([]Variable, error) {
	out := make([]Variable, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, &SelectionError{Code: ErrCodeDuplicate, Msg: fmt.Sprintf("variable %q selected twice", n)}
		}
		seen[n] = true
		c, err := ds.Column(n)
		if err != nil {
			return nil, &SelectionError{Code: ErrCodeUnknownColumn, Msg: "unknown variable", Err: err}
		}
		if c.Kind != dataset.Numeric && c.Kind != dataset.Categorical {
			return nil, &SelectionError{Code: ErrCodeUnsupportedKind, Msg: fmt.Sprintf("variable %q is a %s column; choose a numeric or categorical one", n, c.Kind)}
		}
		out = append(out, Variable{Name: n, Kind: c.Kind})
	}
	return out, nil
}

// ShapeOf counts the numeric and categorical variables.
func ShapeOf(vars []Variable) Shape {
	var s Shape
	for _, v := range vars {
		if v.Kind == dataset.Numeric {
			s.Numeric++
		} else {
			s.Categorical++
		}
	}
	return s
}

// split returns the names of numeric and categorical variables, each in selection order.
func split(vars []Variable) (nums, cats []string) {
	for _, v := range vars {
		if v.Kind == dataset.Numeric {
			nums = append(nums, v.Name)
		} else {
			cats = append(cats, v.Name)
		}
	}
	return nums, cats
}

// Sanitize reduces a column name to a model identifier by dropping every character that
// is not a letter, digit or underscore. "Customer Lifetime Value" becomes
// "CustomerLifetimeValue"; an identifier that would start with a digit gets a leading
// underscore ("2nd Income" becomes "_2ndIncome").
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			if b.Len() == 0 && unicode.IsDigit(r) {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckIdentifiers sanitizes every variable name and returns the name to identifier
// mapping, or a *CollisionError if two names share an identifier or a name has none.
func CheckIdentifiers(vars []Variable) (map[string]string, error) {
	ids := make(map[string]string, len(vars))
	owners := make(map[string][]string, len(vars))
	var order []string
	for _, v := range vars {
		id := Sanitize(v.Name)
		if id == "" {
			return nil, &CollisionError{Names: []string{v.Name}}
		}
		if _, ok := owners[id]; !ok {
			order = append(order, id)
		}
		owners[id] = append(owners[id], v.Name)
		ids[v.Name] = id
	}
	for _, id := range order {
		if len(owners[id]) > 1 {
			return nil, &CollisionError{Identifier: id, Names: owners[id]}
		}
	}
	return ids, nil
}
