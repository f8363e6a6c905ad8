package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// DefaultSheet is the worksheet name of DataTable exports.
const DefaultSheet = "DataTable"

// ReadXLSX reads a DataTable worksheet. When the first cell of the first row
// reads "code", that row holds station codes and the second row holds labels.
// Cells are read raw so that date serials never pass through a display format.
// Data rows whose time cell is empty are skipped and only counted.
func ReadXLSX(path, sheet string) (*Extract, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("input sheet %q not found (have %v): %w", sheet, f.GetSheetList(), domain.ErrStructural)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	rows = trimEmptyRows(rows)

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	var codes []*int
	if len(rows) > 0 && len(rows[0]) > 0 && domain.Normalize(rows[0][0]) == "code" {
		codes = parseCodeRow(rows[0])
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, checkShape(0, 0)
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	if err := checkShape(len(rows), len(header)); err != nil {
		return nil, err
	}

	data := make([][]any, 0, len(rows)-1)
	blank := 0
	for _, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			blank++
			continue
		}
		cells := make([]any, len(header))
		for j := range cells {
			if j < len(row) {
				cells[j] = row[j]
			} else {
				cells[j] = ""
			}
		}
		cells[0] = rawTime(row, date1904)
		data = append(data, cells)
	}
	ext := melt(KindXLSX, header, data, codes)
	ext.Stats.HasCodeRow = codes != nil
	ext.Stats.BlankTimeRows = blank
	return ext, nil
}

// rawTime converts a numeric first cell from a date serial; anything else is
// left as text for the cleaner.
func rawTime(row []string, date1904 bool) any {
	if len(row) == 0 {
		return ""
	}
	s := strings.TrimSpace(row[0])
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(serial) || serial <= 0 {
		return s
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return s
	}
	// Round off float noise in the fractional day.
	return t.Round(time.Second)
}

func parseCodeRow(row []string) []*int {
	codes := make([]*int, len(row))
	for j := 1; j < len(row); j++ {
		codes[j] = parseCode(row[j])
	}
	return codes
}

// parseCode reads an integer station code, tolerating "101.0".
func parseCode(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

func trimEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
