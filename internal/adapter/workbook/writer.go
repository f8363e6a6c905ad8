package workbook

import (
	"fmt"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// WriteStats describe the region a matrix occupied.
type WriteStats struct {
	WrittenRows           int `json:"written_rows"`
	WrittenStationColumns int `json:"written_station_columns"`
	FirstOutputRow        int `json:"first_output_row"`
	LastOutputRow         int `json:"last_output_row"`
}

// WriteMatrix rewrites the header row with the matrix codes, clears the old
// data region across every used column, then writes one row per timestamp.
// Nil cells are left empty.
func WriteMatrix(g Grid, layout Layout, m *domain.Matrix) (WriteStats, error) {
	rows, cols := g.Extent()
	width := max(cols, len(m.Codes)+1)

	if err := g.Set(layout.HeaderRow, 1, TimestampHeader); err != nil {
		return WriteStats{}, err
	}
	for i, code := range m.Codes {
		if err := g.Set(layout.HeaderRow, firstCodeCol+i, code); err != nil {
			return WriteStats{}, err
		}
	}
	for c := firstCodeCol + len(m.Codes); c <= width; c++ {
		if err := g.Clear(layout.HeaderRow, c); err != nil {
			return WriteStats{}, err
		}
	}

	for r := layout.FirstDataRow; r <= rows; r++ {
		for c := 1; c <= width; c++ {
			if err := g.Clear(r, c); err != nil {
				return WriteStats{}, fmt.Errorf("clear data region: %w", err)
			}
		}
	}

	for i, ts := range m.Times {
		r := layout.FirstDataRow + i
		if err := g.Set(r, 1, ts.Format(domain.TimestampLayout)); err != nil {
			return WriteStats{}, err
		}
		for j := range m.Codes {
			v := m.Cell(i, j)
			if v == nil {
				continue
			}
			if err := g.Set(r, firstCodeCol+j, *v); err != nil {
				return WriteStats{}, err
			}
		}
	}

	stats := WriteStats{
		WrittenRows:           len(m.Times),
		WrittenStationColumns: len(m.Codes),
	}
	if len(m.Times) > 0 {
		stats.FirstOutputRow = layout.FirstDataRow
		stats.LastOutputRow = layout.FirstDataRow + len(m.Times) - 1
	}
	return stats, nil
}

// Export writes m into a copy of the template saved at outPath.
func Export(templatePath, outPath string, layout Layout, m *domain.Matrix) (WriteStats, error) {
	wb, err := Open(templatePath)
	if err != nil {
		return WriteStats{}, err
	}
	defer wb.Close()

	g, err := wb.Sheet(layout.DataSheet)
	if err != nil {
		return WriteStats{}, err
	}
	stats, err := WriteMatrix(g, layout, m)
	if err != nil {
		return WriteStats{}, err
	}
	if err := wb.SaveAs(outPath); err != nil {
		return WriteStats{}, err
	}
	return stats, nil
}

// Series is the content of a previously written data sheet.
type Series struct {
	Codes []int
	Rows  []SeriesRow
}

// SeriesRow holds the non-empty values of one timestamp, keyed by station code.
type SeriesRow struct {
	Time   string
	Values map[int]float64
}

// ReadSeries reads back a data sheet written by WriteMatrix. Rows with an
// empty timestamp and cells that are empty or non-numeric are skipped.
func ReadSeries(g Grid, layout Layout) Series {
	rows, cols := g.Extent()
	var s Series
	colCode := make(map[int]int)
	for c := firstCodeCol; c <= cols; c++ {
		if code, ok := ParseCode(g.Get(layout.HeaderRow, c)); ok {
			colCode[c] = code
			s.Codes = append(s.Codes, code)
		}
	}
	for r := layout.FirstDataRow; r <= rows; r++ {
		ts := g.Get(r, 1)
		if ts == "" {
			continue
		}
		row := SeriesRow{Time: ts, Values: make(map[int]float64)}
		for c, code := range colCode {
			if v := domain.ParseValue(g.Get(r, c)); v != nil {
				row.Values[code] = *v
			}
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}
