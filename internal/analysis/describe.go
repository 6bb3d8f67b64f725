package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/custlens/internal/dataset"
)

// Options controls descriptive statistics.
type Options struct {
	// TopValues is how many categorical levels to keep per column.
	TopValues int
	// Outlier detection via robust Z-score (MAD); counts |z| > OutlierThreshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for describing the customer data.
func DefaultOptions() Options {
	return Options{TopValues: 8, Outliers: true, OutlierThreshold: 3.5}
}

// Report is the describe(include=all) summary of a filtered view.
type Report struct {
	Name     string          `json:"name"`
	Rows     int             `json:"rows"`
	Total    int             `json:"total"`
	Cols     []ColumnSummary `json:"columns"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ColumnSummary captures per-column statistics. Fields that do not apply to the
// column kind are left zero (or NaN for numeric fields).
type ColumnSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Count   int    `json:"count"`
	Missing int    `json:"missing"`
	// Categorical
	Unique    int             `json:"unique,omitempty"`
	Top       string          `json:"top,omitempty"`
	Freq      int             `json:"freq,omitempty"`
	TopValues []CategoryCount `json:"top_values,omitempty"`
	// Numeric
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	// Outliers (robust Z via MAD)
	OutliersCount    int     `json:"outliers,omitempty"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`
	// Datetime
	First time.Time `json:"first,omitempty"`
	Last  time.Time `json:"last,omitempty"`
}

// CategoryCount is a categorical level with its frequency.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Describe summarizes every column of the view.
func Describe(v *dataset.View, opt Options) *Report {
	ds := v.Dataset()
	rep := &Report{Name: ds.Name, Rows: v.Len(), Total: ds.Len()}
	if v.Len() == 0 {
		rep.Warnings = append(rep.Warnings, "no rows match the current filters")
	}
	for _, c := range ds.Columns() {
		var s ColumnSummary
		switch c.Kind {
		case dataset.Numeric:
			vals, _ := v.Floats(c.Name)
			s = describeNumeric(c.Name, vals, opt)
		case dataset.Datetime:
			vals, _ := v.Times(c.Name)
			s = describeTimes(c.Name, vals)
		default:
			vals, _ := v.Strings(c.Name)
			s = describeCategorical(c.Name, vals, opt)
		}
		rep.Cols = append(rep.Cols, s)
	}
	return rep
}

func describeNumeric(name string, vals []float64, opt Options) ColumnSummary {
	finite := Finite(vals)
	nan := math.NaN()
	s := ColumnSummary{
		Name: name, Kind: dataset.Numeric.String(),
		Count: len(finite), Missing: len(vals) - len(finite),
		Mean: nan, Std: nan, Min: nan, Q1: nan, Median: nan, Q3: nan, Max: nan,
	}
	if len(finite) == 0 {
		return s
	}
	s.Mean = stat.Mean(finite, nil)
	if len(finite) > 1 {
		s.Std = stat.StdDev(finite, nil)
	}
	f := Summarize(finite)
	s.Min, s.Q1, s.Median, s.Q3, s.Max = f.Min, f.Q1, f.Median, f.Q3, f.Max
	if opt.Outliers && len(finite) >= 8 {
		thr := opt.OutlierThreshold
		if thr <= 0 {
			thr = 3.5
		}
		s.OutliersCount, s.OutliersMaxAbsZ = robustOutliers(finite, thr)
		s.OutlierThreshold = thr
	}
	return s
}

func describeCategorical(name string, vals []string, opt Options) ColumnSummary {
	s := ColumnSummary{Name: name, Kind: dataset.Categorical.String()}
	counts := map[string]int{}
	for _, v := range vals {
		if v == "" {
			s.Missing++
			continue
		}
		s.Count++
		counts[v]++
	}
	tops := make([]CategoryCount, 0, len(counts))
	for k, n := range counts {
		tops = append(tops, CategoryCount{Value: k, Count: n})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	s.Unique = len(tops)
	if len(tops) > 0 {
		s.Top, s.Freq = tops[0].Value, tops[0].Count
	}
	limit := opt.TopValues
	if limit <= 0 {
		limit = 8
	}
	if len(tops) > limit {
		tops = tops[:limit]
	}
	s.TopValues = tops
	return s
}

func describeTimes(name string, vals []time.Time) ColumnSummary {
	s := ColumnSummary{Name: name, Kind: dataset.Datetime.String()}
	for _, t := range vals {
		if t.IsZero() {
			s.Missing++
			continue
		}
		s.Count++
		if s.First.IsZero() || t.Before(s.First) {
			s.First = t
		}
		if s.Last.IsZero() || t.After(s.Last) {
			s.Last = t
		}
	}
	return s
}

// DescribeHeader is the column order of Table.
var DescribeHeader = []string{"column", "kind", "count", "unique", "top", "freq", "mean", "std", "min", "25%", "50%", "75%", "max"}

// Table renders the report as describe(include=all) rows; cells that do not apply are "—".
func (r *Report) Table() [][]string {
	out := make([][]string, 0, len(r.Cols))
	for _, c := range r.Cols {
		row := []string{c.Name, c.Kind, fmt.Sprintf("%d", c.Count)}
		switch c.Kind {
		case "numeric":
			row = append(row, "—", "—", "—",
				num(c.Mean), num(c.Std), num(c.Min), num(c.Q1), num(c.Median), num(c.Q3), num(c.Max))
		case "datetime":
			row = append(row, "—", "—", "—", "—", "—", day(c.First), "—", "—", "—", day(c.Last))
		default:
			top, freq := "—", "—"
			if c.Top != "" {
				top, freq = c.Top, fmt.Sprintf("%d", c.Freq)
			}
			row = append(row, fmt.Sprintf("%d", c.Unique), top, freq, "—", "—", "—", "—", "—", "—", "—")
		}
		out = append(out, row)
	}
	return out
}

func num(f float64) string {
	if math.IsNaN(f) {
		return "—"
	}
	return fmt.Sprintf("%.4g", f)
}

func day(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2006-01-02")
}

// Markdown renders a compact report suitable for standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.Rows < r.Total {
		b.WriteString(fmt.Sprintf("Rows: %d (filtered from %d)\n", r.Rows, r.Total))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.Count + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.Count, missPct))
		switch c.Kind {
		case "numeric":
			if c.Count > 0 {
				b.WriteString(fmt.Sprintf(" — min %.4g, median %.4g, max %.4g, mean %.4g", c.Min, c.Median, c.Max, c.Mean))
				if !math.IsNaN(c.Std) {
					b.WriteString(fmt.Sprintf(", std %.4g", c.Std))
				}
			}
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
			}
		case "datetime":
			if c.Count > 0 {
				b.WriteString(fmt.Sprintf(" — from %s to %s", day(c.First), day(c.Last)))
			}
		default:
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
