package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the classification of a column, derived from the type of its stored values.
type Kind int

const (
	Categorical Kind = iota
	Numeric
	Datetime
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Datetime:
		return "datetime"
	default:
		return "categorical"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

var (
	// ErrEmpty is returned when a source has no header row.
	ErrEmpty = errors.New("dataset has no header")
	// ErrUnknownColumn is returned when a column name is not part of the dataset.
	ErrUnknownColumn = errors.New("unknown column")
)

// Column is a typed, immutable column. Exactly one of the value slices is populated,
// matching Kind; null marks missing cells.
type Column struct {
	Name string
	Kind Kind

	nums  []float64
	strs  []string
	times []time.Time
	null  []bool
}

// NumericColumn builds a numeric column; NaN values are stored as null.
func NumericColumn(name string, vals ...float64) *Column {
	c := &Column{Name: name, Kind: Numeric, nums: make([]float64, len(vals)), null: make([]bool, len(vals))}
	for i, v := range vals {
		if math.IsNaN(v) {
			c.null[i] = true
			c.nums[i] = math.NaN()
			continue
		}
		c.nums[i] = v
	}
	return c
}

// CategoricalColumn builds a categorical column; empty strings are stored as null.
func CategoricalColumn(name string, vals ...string) *Column {
	c := &Column{Name: name, Kind: Categorical, strs: make([]string, len(vals)), null: make([]bool, len(vals))}
	for i, v := range vals {
		c.strs[i] = v
		c.null[i] = v == ""
	}
	return c
}

// DatetimeColumn builds a datetime column; zero times are stored as null.
func DatetimeColumn(name string, vals ...time.Time) *Column {
	c := &Column{Name: name, Kind: Datetime, times: make([]time.Time, len(vals)), null: make([]bool, len(vals))}
	for i, v := range vals {
		c.times[i] = v
		c.null[i] = v.IsZero()
	}
	return c
}

// Len returns the number of cells in the column.
func (c *Column) Len() int { return len(c.null) }

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool { return c.null[i] }

// Float returns the numeric value at row i.
func (c *Column) Float(i int) (float64, bool) {
	if c.Kind != Numeric || c.null[i] {
		return math.NaN(), false
	}
	return c.nums[i], true
}

// Text returns the categorical value at row i.
func (c *Column) Text(i int) (string, bool) {
	if c.Kind != Categorical || c.null[i] {
		return "", false
	}
	return c.strs[i], true
}

// Time returns the datetime value at row i.
func (c *Column) Time(i int) (time.Time, bool) {
	if c.Kind != Datetime || c.null[i] {
		return time.Time{}, false
	}
	return c.times[i], true
}

// Display formats row i for tables and previews. Nulls render as empty strings.
func (c *Column) Display(i int) string {
	if c.null[i] {
		return ""
	}
	switch c.Kind {
	case Numeric:
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64)
	case Datetime:
		t := c.times[i]
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	default:
		return c.strs[i]
	}
}

// Dataset is an ordered, immutable collection of rows stored column-wise.
type Dataset struct {
	Name   string
	Source string

	cols  []*Column
	index map[string]int
	rows  int
}

// New assembles a dataset from columns of equal length and unique names.
func New(name string, cols ...*Column) (*Dataset, error) {
	d := &Dataset{Name: name, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if _, dup := d.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			d.rows = c.Len()
		} else if c.Len() != d.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), d.rows)
		}
		d.index[c.Name] = i
		d.cols = append(d.cols, c)
	}
	return d, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.rows }

// Columns returns the columns in source order.
func (d *Dataset) Columns() []*Column {
	out := make([]*Column, len(d.cols))
	copy(out, d.cols)
	return out
}

// Names returns column names in source order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.cols))
	for i, c := range d.cols {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by exact name.
func (d *Dataset) Column(name string) (*Column, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return d.cols[i], nil
}

// Has reports whether the dataset has a column with the given name.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// NamesOfKind returns the names of all columns of kind k, in source order.
func (d *Dataset) NamesOfKind(k Kind) []string {
	var out []string
	for _, c := range d.cols {
		if c.Kind == k {
			out = append(out, c.Name)
		}
	}
	return out
}

// DeriveNumeric returns a new dataset with one appended numeric column computed per row.
// Existing columns are shared with d and never modified.
func (d *Dataset) DeriveNumeric(name string, fn func(row int) (float64, bool)) (*Dataset, error) {
	if d.Has(name) {
		return nil, fmt.Errorf("derive %q: column already exists", name)
	}
	vals := make([]float64, d.rows)
	for i := range vals {
		v, ok := fn(i)
		if !ok {
			v = math.NaN()
		}
		vals[i] = v
	}
	cols := append(d.Columns(), NumericColumn(name, vals...))
	out, err := New(d.Name, cols...)
	if err != nil {
		return nil, err
	}
	out.Source = d.Source
	return out, nil
}

// WithYear appends a numeric column holding the calendar year of a datetime column.
// Rows whose source date is null get a null year.
func (d *Dataset) WithYear(name, source string) (*Dataset, error) {
	src, err := d.Column(source)
	if err != nil {
		return nil, err
	}
	if src.Kind != Datetime {
		return nil, fmt.Errorf("derive %q: source %q is %s, want datetime", name, source, src.Kind)
	}
	return d.DeriveNumeric(name, func(row int) (float64, bool) {
		t, ok := src.Time(row)
		if !ok {
			return 0, false
		}
		return float64(t.Year()), true
	})
}
