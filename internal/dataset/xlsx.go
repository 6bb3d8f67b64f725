package dataset

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Workbook parts, decoded only as far as loading needs.
type (
	xlWorkbook struct {
		Sheets []xlSheetRef `xml:"sheets>sheet"`
	}
	xlSheetRef struct {
		Name string `xml:"name,attr"`
		ID   int    `xml:"sheetId,attr"`
		Rel  string `xml:"id,attr"`
	}
	xlRelationships struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	xlStrings struct {
		Items []xlText `xml:"si"`
	}
	// xlText is a plain or rich string; rich text is split into runs.
	xlText struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	}
	xlWorksheet struct {
		Rows []struct {
			Cells []xlCell `xml:"c"`
		} `xml:"sheetData>row"`
	}
	xlCell struct {
		Ref    string  `xml:"r,attr"`
		Type   string  `xml:"t,attr"`
		V      string  `xml:"v"`
		Inline *xlText `xml:"is"`
	}
)

func (t xlText) String() string {
	if len(t.Runs) == 0 {
		return t.T
	}
	var b strings.Builder
	b.WriteString(t.T)
	for _, r := range t.Runs {
		b.WriteString(r.T)
	}
	return b.String()
}

// readXLSX returns the rows of one worksheet as dense string records. The sheet is picked
// by name (case-insensitive) or, when sheetName is empty, by its 1-based sheetId.
func readXLSX(file, sheetName string, sheetIndex int) ([][]string, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()
	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	var wb xlWorkbook
	if err := decodePart(parts, "xl/workbook.xml", &wb); err != nil {
		return nil, err
	}
	var rels xlRelationships
	if err := decodePart(parts, "xl/_rels/workbook.xml.rels", &rels); err != nil {
		return nil, err
	}
	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		targets[r.ID] = partName(r.Target)
	}

	sheet, err := pickSheet(wb.Sheets, targets, sheetName, sheetIndex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
	}
	if parts[sheet] == nil {
		return nil, fmt.Errorf("%s: worksheet %s missing", filepath.Base(file), sheet)
	}

	var sst xlStrings
	if err := decodePart(parts, "xl/sharedStrings.xml", &sst); err != nil {
		return nil, err
	}
	shared := make([]string, len(sst.Items))
	for i, it := range sst.Items {
		shared[i] = it.String()
	}

	var ws xlWorksheet
	if err := decodePart(parts, sheet, &ws); err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(ws.Rows))
	for _, row := range ws.Rows {
		var rec []string
		for _, c := range row.Cells {
			col := columnIndex(c.Ref)
			if col < 0 {
				col = len(rec)
			}
			for len(rec) <= col {
				rec = append(rec, "")
			}
			rec[col] = cellText(c, shared)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func pickSheet(sheets []xlSheetRef, targets map[string]string, name string, id int) (string, error) {
	if name != "" {
		names := make([]string, len(sheets))
		for i, s := range sheets {
			if strings.EqualFold(s.Name, name) && targets[s.Rel] != "" {
				return targets[s.Rel], nil
			}
			names[i] = s.Name
		}
		return "", fmt.Errorf("sheet %q not found; available sheets: %s", name, strings.Join(names, ", "))
	}
	if id <= 0 {
		id = 1
	}
	for _, s := range sheets {
		if s.ID == id && targets[s.Rel] != "" {
			return targets[s.Rel], nil
		}
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", id), nil
}

// decodePart unmarshals a zip entry into v. A missing entry leaves v untouched.
func decodePart(parts map[string]*zip.File, name string, v any) error {
	f, ok := parts[name]
	if !ok {
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("xlsx %s: %w", name, err)
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("xlsx %s: %w", name, err)
	}
	return nil
}

// partName resolves a workbook relationship target to its zip entry name.
func partName(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("xl", target)
}

func cellText(c xlCell, shared []string) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.V))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	case "inlineStr":
		if c.Inline != nil {
			return c.Inline.String()
		}
	}
	return c.V
}

// columnIndex turns the letters of a cell reference ("AB12") into a 0-based column, or -1
// when the reference has none.
func columnIndex(ref string) int {
	n := 0
	for _, r := range ref {
		switch {
		case r >= 'A' && r <= 'Z':
			n = n*26 + int(r-'A'+1)
		case r >= 'a' && r <= 'z':
			n = n*26 + int(r-'a'+1)
		default:
			return n - 1
		}
	}
	return n - 1
}
