package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// View is a filtered projection over a Dataset: an ascending list of row indices.
// It owns no data; every value is read through the underlying dataset.
type View struct {
	ds   *Dataset
	rows []int
}

// All returns a view over every row of d.
func All(d *Dataset) *View {
	rows := make([]int, d.Len())
	for i := range rows {
		rows[i] = i
	}
	return &View{ds: d, rows: rows}
}

// NewView builds a view from row indices. Indices must be strictly ascending and in range,
// which keeps every view a duplicate-free subset of its dataset.
func NewView(d *Dataset, rows []int) (*View, error) {
	for i, r := range rows {
		if r < 0 || r >= d.Len() {
			return nil, fmt.Errorf("row %d out of range [0,%d)", r, d.Len())
		}
		if i > 0 && r <= rows[i-1] {
			return nil, fmt.Errorf("rows not strictly ascending at position %d", i)
		}
	}
	cp := make([]int, len(rows))
	copy(cp, rows)
	return &View{ds: d, rows: cp}, nil
}

// Dataset returns the underlying dataset.
func (v *View) Dataset() *Dataset { return v.ds }

// Len returns the number of rows in the view.
func (v *View) Len() int { return len(v.rows) }

// Rows returns a copy of the row indices.
func (v *View) Rows() []int {
	out := make([]int, len(v.rows))
	copy(out, v.rows)
	return out
}

// Floats returns the values of a numeric column for the rows of the view; nulls are NaN.
func (v *View) Floats(name string) ([]float64, error) {
	c, err := v.column(name, Numeric)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v.rows))
	for i, r := range v.rows {
		x, ok := c.Float(r)
		if !ok {
			x = math.NaN()
		}
		out[i] = x
	}
	return out, nil
}

// Strings returns the values of a categorical column for the rows of the view; nulls are "".
func (v *View) Strings(name string) ([]string, error) {
	c, err := v.column(name, Categorical)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(v.rows))
	for i, r := range v.rows {
		out[i], _ = c.Text(r)
	}
	return out, nil
}

// Times returns the values of a datetime column for the rows of the view; nulls are zero times.
func (v *View) Times(name string) ([]time.Time, error) {
	c, err := v.column(name, Datetime)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(v.rows))
	for i, r := range v.rows {
		out[i], _ = c.Time(r)
	}
	return out, nil
}

// Levels returns the sorted distinct non-null values of a categorical column in the view.
func (v *View) Levels(name string) ([]string, error) {
	vals, err := v.Strings(name)
	if err != nil {
		return nil, err
	}
	return Distinct(vals), nil
}

// Head returns the header and up to n display records, for raw previews.
func (v *View) Head(n int) ([]string, [][]string) {
	header := v.ds.Names()
	if n <= 0 || n > len(v.rows) {
		n = len(v.rows)
	}
	out := make([][]string, 0, n)
	for _, r := range v.rows[:n] {
		rec := make([]string, len(v.ds.cols))
		for j, c := range v.ds.cols {
			rec[j] = c.Display(r)
		}
		out = append(out, rec)
	}
	return header, out
}

func (v *View) column(name string, want Kind) (*Column, error) {
	c, err := v.ds.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != want {
		return nil, fmt.Errorf("column %q is %s, want %s", name, c.Kind, want)
	}
	return c, nil
}

// Distinct returns the sorted distinct non-empty strings of vals.
func Distinct(vals []string) []string {
	seen := make(map[string]struct{}, len(vals))
	out := make([]string, 0)
	for _, s := range vals {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
