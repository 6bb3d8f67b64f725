package stats

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// AnovaRow is one line of an ANOVA table. The residual row has NaN F and P.
type AnovaRow struct {
	Term  string  `json:"term"`
	SumSq float64 `json:"sum_sq"`
	DF    float64 `json:"df"`
	F     float64 `json:"F"`
	P     float64 `json:"p"`
}

// AnovaTable is a Type II analysis of variance.
type AnovaTable struct {
	Formula string     `json:"formula"`
	N       int        `json:"n"`
	Rows    []AnovaRow `json:"rows"`
}

// Fitter fits the linear models the router asks for.
type Fitter struct{}

// TwoWayANOVA fits Response ~ A + B (+ A:B) and returns Type II sums of squares: each main
// effect adjusted for the other, the interaction adjusted for both.
func (Fitter) TwoWayANOVA(f Formula, fr Frame) (*AnovaTable, error) {
	if len(f.Responses) != 1 || len(f.Factors) != 2 {
		return nil, fmt.Errorf("two-way anova needs one response and two factors, got %d and %d", len(f.Responses), len(f.Factors))
	}
	ys, xs, err := fr.complete(f)
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(ys))
	for i, r := range ys {
		y[i] = r[0]
	}
	la, lb := levels(xs, 0), levels(xs, 1)
	if len(la) < 2 {
		return nil, fmt.Errorf("%s: %w", f.Factors[0], ErrTooFewLevels)
	}
	if len(lb) < 2 {
		return nil, fmt.Errorf("%s: %w", f.Factors[1], ErrTooFewLevels)
	}
	a := dummies("C("+f.Factors[0]+")", 0, la)
	b := dummies("C("+f.Factors[1]+")", 1, lb)

	onlyA, err := leastSquares(design(xs, a), y)
	if err != nil {
		return nil, err
	}
	onlyB, err := leastSquares(design(xs, b), y)
	if err != nil {
		return nil, err
	}
	main, err := leastSquares(design(xs, a, b), y)
	if err != nil {
		return nil, err
	}
	full := main
	var ab term
	if f.Interaction {
		ab = interact(a.name+":"+b.name, a, b)
		if full, err = leastSquares(design(xs, a, b, ab), y); err != nil {
			return nil, err
		}
	}
	dfRes := float64(len(y) - full.rank)
	if dfRes <= 0 {
		return nil, fmt.Errorf("%d rows for %d parameters: %w", len(y), full.rank, ErrTooFewObservations)
	}
	mse := full.rss / dfRes

	tbl := &AnovaTable{Formula: f.String(), N: len(y)}
	tbl.Rows = append(tbl.Rows,
		effect(a.name, onlyB.rss-main.rss, main.rank-onlyB.rank, mse, dfRes),
		effect(b.name, onlyA.rss-main.rss, main.rank-onlyA.rank, mse, dfRes),
	)
	if f.Interaction {
		tbl.Rows = append(tbl.Rows, effect(ab.name, main.rss-full.rss, full.rank-main.rank, mse, dfRes))
	}
	tbl.Rows = append(tbl.Rows, AnovaRow{Term: "Residual", SumSq: full.rss, DF: dfRes, F: math.NaN(), P: math.NaN()})
	return tbl, nil
}

func effect(name string, ss float64, df int, mse, dfRes float64) AnovaRow {
	if ss < 0 {
		ss = 0
	}
	row := AnovaRow{Term: name, SumSq: ss, DF: float64(df), F: math.NaN(), P: math.NaN()}
	if df <= 0 || mse <= 0 {
		return row
	}
	row.F = (ss / float64(df)) / mse
	row.P = fSurvival(row.F, float64(df), dfRes)
	return row
}

func fSurvival(f, d1, d2 float64) float64 {
	if math.IsNaN(f) || d1 <= 0 || d2 <= 0 {
		return math.NaN()
	}
	return 1 - distuv.F{D1: d1, D2: d2}.CDF(f)
}

// Row returns the row for term, if present.
func (t *AnovaTable) Row(term string) (AnovaRow, bool) {
	for _, r := range t.Rows {
		if r.Term == term {
			return r, true
		}
	}
	return AnovaRow{}, false
}

func (t *AnovaTable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Two-way ANOVA (Type II)\n%s\nN = %d\n\n", t.Formula, t.N)
	width := len("Residual")
	for _, r := range t.Rows {
		width = max(width, len(r.Term))
	}
	fmt.Fprintf(&b, "%-*s %14s %6s %10s %10s\n", width, "", "sum_sq", "df", "F", "PR(>F)")
	for _, r := range t.Rows {
		fmt.Fprintf(&b, "%-*s %14.4f %6.0f %10s %10s\n", width, r.Term, r.SumSq, r.DF, cell(r.F, "%.4f"), cell(r.P, "%.4g"))
	}
	return b.String()
}

func cell(v float64, format string) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf(format, v)
}
