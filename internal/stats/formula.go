package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrTooFewObservations is returned when complete rows cannot support the model.
	ErrTooFewObservations = errors.New("too few complete observations")
	// ErrSingular is returned when a model matrix has no usable inverse.
	ErrSingular = errors.New("singular matrix")
	// ErrTooFewLevels is returned when a factor has fewer than two observed levels.
	ErrTooFewLevels = errors.New("factor needs at least two levels")
)

// Formula describes a linear model over sanitized identifiers.
type Formula struct {
	Responses   []string
	Factors     []string
	Interaction bool
}

// String renders the formula in the usual notation, e.g.
// "Income ~ C(Education) + C(Loyalty) + C(Education):C(Loyalty)".
func (f Formula) String() string {
	terms := make([]string, 0, len(f.Factors)+1)
	for _, x := range f.Factors {
		terms = append(terms, "C("+x+")")
	}
	if f.Interaction && len(f.Factors) > 1 {
		terms = append(terms, strings.Join(terms, ":"))
	}
	return strings.Join(f.Responses, " + ") + " ~ " + strings.Join(terms, " + ")
}

// Frame holds model columns keyed by identifier. Numeric nulls are NaN, factor nulls are "".
type Frame struct {
	Numeric map[string][]float64
	Factors map[string][]string
}

// complete returns the rows of the frame, restricted to the formula's columns, where every
// value is present.
func (fr Frame) complete(f Formula) (ys [][]float64, xs [][]string, err error) {
	n := -1
	check := func(name string, l int) error {
		if n >= 0 && l != n {
			return fmt.Errorf("column %q has %d rows, want %d", name, l, n)
		}
		n = l
		return nil
	}
	resp := make([][]float64, len(f.Responses))
	for i, r := range f.Responses {
		col, ok := fr.Numeric[r]
		if !ok {
			return nil, nil, fmt.Errorf("response %q not in frame", r)
		}
		if err := check(r, len(col)); err != nil {
			return nil, nil, err
		}
		resp[i] = col
	}
	facs := make([][]string, len(f.Factors))
	for i, x := range f.Factors {
		col, ok := fr.Factors[x]
		if !ok {
			return nil, nil, fmt.Errorf("factor %q not in frame", x)
		}
		if err := check(x, len(col)); err != nil {
			return nil, nil, err
		}
		facs[i] = col
	}
	for row := 0; row < n; row++ {
		y := make([]float64, len(resp))
		x := make([]string, len(facs))
		ok := true
		for i, col := range resp {
			if math.IsNaN(col[row]) || math.IsInf(col[row], 0) {
				ok = false
				break
			}
			y[i] = col[row]
		}
		for i, col := range facs {
			if !ok || col[row] == "" {
				ok = false
				break
			}
			x[i] = col[row]
		}
		if ok {
			ys = append(ys, y)
			xs = append(xs, x)
		}
	}
	return ys, xs, nil
}

// levels returns the sorted distinct values of column j.
func levels(xs [][]string, j int) []string {
	seen := map[string]bool{}
	var out []string
	for _, x := range xs {
		if !seen[x[j]] {
			seen[x[j]] = true
			out = append(out, x[j])
		}
	}
	sort.Strings(out)
	return out
}
