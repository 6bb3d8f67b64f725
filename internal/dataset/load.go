package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Options controls how a source file is parsed into a Dataset.
type Options struct {
	// Delimiter for CSV. If 0, chosen from the file extension.
	Delimiter rune
	// DateColumns are always parsed as datetime; unparsable cells become null.
	DateColumns []string
	// DateLayouts are tried in order. Defaults to DefaultDateLayouts.
	DateLayouts []string
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune // optional; if 0, strip common separators (',' '.' space) that differ from the decimal
	// XLSX sheet selection; SheetIndex is 1-based and used when Sheet is empty.
	Sheet      string
	SheetIndex int
}

// DefaultDateLayouts are month-first, matching the usual export format of the customer files.
var DefaultDateLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "1/2/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// DefaultOptions returns the options used for the customer database.
func DefaultOptions() Options {
	return Options{
		DateColumns:      []string{"EnrollmentDateOpening", "CancellationDate"},
		DateLayouts:      DefaultDateLayouts,
		DecimalSeparator: '.',
		SheetIndex:       1,
	}
}

// Load reads a CSV/TSV or XLSX file into a Dataset. Any error is fatal for the caller:
// there is no fallback dataset.
func Load(path string, opt Options) (*Dataset, error) {
	var (
		records [][]string
		err     error
	)
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		records, err = readXLSX(path, opt.Sheet, opt.SheetIndex)
	} else {
		records, err = readCSV(path, opt.Delimiter)
	}
	if err != nil {
		return nil, err
	}
	d, err := FromRecords(filepath.Base(path), records, opt)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	d.Source = path
	return d, nil
}

// FromRecords builds a Dataset from a header row followed by data rows.
func FromRecords(name string, records [][]string, opt Options) (*Dataset, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrEmpty
	}
	layouts := opt.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	forcedDate := make(map[string]bool, len(opt.DateColumns))
	for _, c := range opt.DateColumns {
		forcedDate[strings.TrimSpace(c)] = true
	}

	header := records[0]
	body := records[1:]
	cols := make([]*Column, 0, len(header))
	for j, h := range header {
		colName := strings.TrimSpace(h)
		if colName == "" {
			colName = fmt.Sprintf("column_%d", j+1)
		}
		raw := make([]string, len(body))
		for i, rec := range body {
			if j < len(rec) {
				raw[i] = strings.TrimSpace(rec[j])
			}
		}
		cols = append(cols, buildColumn(colName, raw, forcedDate[colName], layouts, opt))
	}
	return New(name, cols...)
}

// buildColumn infers the column kind by predominant parsed type and converts cells.
func buildColumn(name string, raw []string, forceDate bool, layouts []string, opt Options) *Column {
	var numCnt, dtCnt, txtCnt int
	if !forceDate {
		for _, v := range raw {
			if v == "" {
				continue
			}
			if _, ok := parseNumeric(v, opt); ok {
				numCnt++
				continue
			}
			if _, ok := parseTime(v, layouts); ok {
				dtCnt++
				continue
			}
			txtCnt++
		}
	}
	switch {
	case forceDate || (dtCnt > 0 && dtCnt >= txtCnt && dtCnt > numCnt):
		vals := make([]time.Time, len(raw))
		for i, v := range raw {
			if t, ok := parseTime(v, layouts); ok {
				vals[i] = t
			}
		}
		return DatetimeColumn(name, vals...)
	case numCnt > 0 && numCnt >= dtCnt && numCnt >= txtCnt:
		vals := make([]float64, len(raw))
		for i, v := range raw {
			x, ok := parseNumeric(v, opt)
			if !ok {
				x = math.NaN()
			}
			vals[i] = x
		}
		return NumericColumn(name, vals...)
	default:
		return CategoricalColumn(name, raw...)
	}
}

func readCSV(path string, delim rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	var out [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func sniffDelimiter(path string) rune {
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".tsv") {
		return '\t'
	}
	return ','
}

func parseTime(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), "\u00A0", " ")
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "$"))
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		if cpos >= 0 && dpos >= 0 {
			if cpos > dpos {
				dec = ','
				thou = '.'
			} else {
				dec = '.'
				thou = ','
			}
		} else if cpos >= 0 {
			dec = ','
		} else {
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
