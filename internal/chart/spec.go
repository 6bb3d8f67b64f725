// Package chart describes the charts the analysis recipes produce and renders them with
// gonum/plot.
package chart

import "sort"

// Spec is a renderable chart description.
type Spec interface {
	Kind() string
}

// Group is a named sample of values. Hue is set when the group is one cell of a
// two-factor layout.
type Group struct {
	Name   string    `json:"name"`
	Hue    string    `json:"hue,omitempty"`
	Values []float64 `json:"values"`
}

// XYGroup is a named set of points.
type XYGroup struct {
	Name string    `json:"name"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
}

// Crosstab holds joint frequencies of two categorical variables.
type Crosstab struct {
	RowVar string      `json:"row_var"`
	ColVar string      `json:"col_var"`
	Rows   []string    `json:"rows"`
	Cols   []string    `json:"cols"`
	Counts [][]float64 `json:"counts"` // Counts[row][col]
}

// CountCrosstab tabulates paired values, skipping pairs where either side is null ("").
// Levels are sorted.
func CountCrosstab(rowVar, colVar string, a, b []string) Crosstab {
	var rows, cols []string
	ri, ci := map[string]int{}, map[string]int{}
	for i := range a {
		if a[i] == "" || b[i] == "" {
			continue
		}
		if _, ok := ri[a[i]]; !ok {
			ri[a[i]] = 0
			rows = append(rows, a[i])
		}
		if _, ok := ci[b[i]]; !ok {
			ci[b[i]] = 0
			cols = append(cols, b[i])
		}
	}
	sort.Strings(rows)
	sort.Strings(cols)
	for i, r := range rows {
		ri[r] = i
	}
	for i, c := range cols {
		ci[c] = i
	}
	counts := make([][]float64, len(rows))
	for i := range counts {
		counts[i] = make([]float64, len(cols))
	}
	for i := range a {
		if a[i] == "" || b[i] == "" {
			continue
		}
		counts[ri[a[i]]][ci[b[i]]]++
	}
	return Crosstab{RowVar: rowVar, ColVar: colVar, Rows: rows, Cols: cols, Counts: counts}
}

// Transpose swaps the roles of the two variables.
func (c Crosstab) Transpose() Crosstab {
	counts := make([][]float64, len(c.Cols))
	for j := range c.Cols {
		counts[j] = make([]float64, len(c.Rows))
		for i := range c.Rows {
			counts[j][i] = c.Counts[i][j]
		}
	}
	return Crosstab{RowVar: c.ColVar, ColVar: c.RowVar, Rows: c.Cols, Cols: c.Rows, Counts: counts}
}

// HistBox is a histogram stacked over a horizontal box plot of one numeric variable.
type HistBox struct {
	Title    string    `json:"title"`
	Variable string    `json:"variable"`
	Values   []float64 `json:"values"`
}

// CountHist is a bar of counts per level of one categorical variable.
type CountHist struct {
	Title    string    `json:"title"`
	Variable string    `json:"variable"`
	Levels   []string  `json:"levels"`
	Counts   []float64 `json:"counts"`
}

// ScatterTrend is a scatter of two numeric variables with the least-squares line
// Y = Intercept + Slope*X.
type ScatterTrend struct {
	Title     string    `json:"title"`
	X, Y      string    `json:"-"`
	XS        []float64 `json:"x"`
	YS        []float64 `json:"y"`
	Intercept float64   `json:"intercept"`
	Slope     float64   `json:"slope"`
}

// PairedCount is a pair of count plots, each variable on the axis with the other as hue.
type PairedCount struct {
	Title string   `json:"title"`
	Table Crosstab `json:"table"`
}

// SplitBox is a horizontal box plot of a numeric variable split by a category.
type SplitBox struct {
	Title    string  `json:"title"`
	Value    string  `json:"value"`
	Category string  `json:"category"`
	Groups   []Group `json:"groups"`
}

// Heatmap is a correlation matrix.
type Heatmap struct {
	Title   string      `json:"title"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// StackedBar stacks the column-variable counts on each row-variable level.
type StackedBar struct {
	Title string   `json:"title"`
	Table Crosstab `json:"table"`
}

// GroupedScatter is a scatter of two numeric variables colored by a category.
type GroupedScatter struct {
	Title    string    `json:"title"`
	X, Y     string    `json:"-"`
	Category string    `json:"category"`
	Groups   []XYGroup `json:"groups"`
}

// GroupedBox is a box plot of a numeric variable by one factor with a second factor as hue.
type GroupedBox struct {
	Title  string   `json:"title"`
	Value  string   `json:"value"`
	Outer  string   `json:"outer"`
	Inner  string   `json:"inner"`
	Levels []string `json:"levels"`
	Hues   []string `json:"hues"`
	Groups []Group  `json:"groups"`
}

func (HistBox) Kind() string        { return "hist_box" }
func (CountHist) Kind() string      { return "count_hist" }
func (ScatterTrend) Kind() string   { return "scatter_trend" }
func (PairedCount) Kind() string    { return "paired_count" }
func (SplitBox) Kind() string       { return "split_box" }
func (Heatmap) Kind() string        { return "heatmap" }
func (StackedBar) Kind() string     { return "stacked_bar" }
func (GroupedScatter) Kind() string { return "grouped_scatter" }
func (GroupedBox) Kind() string     { return "grouped_box" }
