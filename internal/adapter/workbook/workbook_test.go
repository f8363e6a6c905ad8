package workbook_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Yelmkhayar/hydro-sentinel/internal/adapter/workbook"
	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// memGrid is an in-memory Grid.
type memGrid struct {
	cells      map[[2]int]any
	rows, cols int
}

func newMemGrid() *memGrid {
	return &memGrid{cells: make(map[[2]int]any)}
}

func (g *memGrid) Get(row, col int) string {
	v, ok := g.cells[[2]int{row, col}]
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func (g *memGrid) Set(row, col int, v any) error {
	g.cells[[2]int{row, col}] = v
	g.rows = max(g.rows, row)
	g.cols = max(g.cols, col)
	return nil
}

func (g *memGrid) Clear(row, col int) error {
	delete(g.cells, [2]int{row, col})
	return nil
}

func (g *memGrid) Extent() (int, int) { return g.rows, g.cols }

func ptr(v float64) *float64 { return &v }

func hour(h int) time.Time { return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC) }

func TestWriteMatrix_ClearsStaleRegion(t *testing.T) {
	layout := workbook.DefaultLayout()
	g := newMemGrid()
	// Previous run: four station columns and five data rows.
	_ = g.Set(1, 1, "Title kept")
	_ = g.Set(layout.HeaderRow, 1, "timestamp")
	for c := 2; c <= 5; c++ {
		_ = g.Set(layout.HeaderRow, c, 900+c)
		for r := layout.FirstDataRow; r < layout.FirstDataRow+5; r++ {
			_ = g.Set(r, c, 1.0)
			_ = g.Set(r, 1, "old")
		}
	}

	m := &domain.Matrix{
		Codes: []int{10, 20},
		Times: []time.Time{hour(0), hour(1)},
		Cells: [][]*float64{{ptr(1.5), nil}, {nil, ptr(2)}},
		Fill:  domain.NoFill,
	}
	stats, err := workbook.WriteMatrix(g, layout, m)
	require.NoError(t, err)

	assert.Equal(t, workbook.WriteStats{WrittenRows: 2, WrittenStationColumns: 2, FirstOutputRow: 4, LastOutputRow: 5}, stats)
	assert.Equal(t, "Title kept", g.Get(1, 1))
	assert.Equal(t, "10", g.Get(3, 2))
	assert.Equal(t, "20", g.Get(3, 3))
	assert.Empty(t, g.Get(3, 4), "stale header codes are cleared")
	assert.Equal(t, "2024-01-01T00:00:00", g.Get(4, 1))
	assert.Equal(t, "1.5", g.Get(4, 2))
	assert.Empty(t, g.Get(4, 3), "nil stays empty")
	assert.Equal(t, "2", g.Get(5, 3))
	for r := 6; r <= 8; r++ {
		for c := 1; c <= 5; c++ {
			assert.Empty(t, g.Get(r, c), "row %d col %d", r, c)
		}
	}
	assert.Empty(t, g.Get(4, 5))
}

func TestWriteMatrix_FillPolicy(t *testing.T) {
	layout := workbook.DefaultLayout()
	g := newMemGrid()
	m := &domain.Matrix{
		Codes: []int{1},
		Times: []time.Time{hour(0)},
		Cells: [][]*float64{{nil}},
		Fill:  domain.FillWith(0),
	}
	_, err := workbook.WriteMatrix(g, layout, m)
	require.NoError(t, err)
	assert.Equal(t, "0", g.Get(4, 2))
}

func TestReadStationsAndHeaderCodes(t *testing.T) {
	layout := workbook.DefaultLayout()
	st := newMemGrid()
	_ = st.Set(1, 1, "code")
	_ = st.Set(1, 2, "name")
	_ = st.Set(2, 1, "101")
	_ = st.Set(2, 2, " Zrarda ")
	_ = st.Set(3, 1, "n/a")
	_ = st.Set(3, 2, "Broken")
	_ = st.Set(4, 1, "102.0")
	_ = st.Set(4, 2, "Fes")
	_ = st.Set(4, 4, "PR_FES")

	assert.Equal(t, []domain.Station{
		{Code: 101, Name: "Zrarda"},
		{Code: 102, Name: "Fes", VarName: "PR_FES"},
	}, workbook.ReadStations(st, layout))

	data := newMemGrid()
	_ = data.Set(3, 1, "timestamp")
	_ = data.Set(3, 2, "300")
	_ = data.Set(3, 3, "note")
	_ = data.Set(3, 4, "100")
	assert.Equal(t, []int{300, 100}, workbook.HeaderCodes(data, layout))
}

func TestParseCode(t *testing.T) {
	n, ok := workbook.ParseCode("42")
	assert.True(t, ok)
	assert.Equal(t, 42, n)
	n, ok = workbook.ParseCode("42.0")
	assert.True(t, ok)
	assert.Equal(t, 42, n)
	_, ok = workbook.ParseCode("42.5")
	assert.False(t, ok)
	_, ok = workbook.ParseCode("")
	assert.False(t, ok)
}

// newTemplate writes a template workbook with a station sheet and an empty
// data sheet whose header row holds headerCodes.
func newTemplate(t *testing.T, stations []domain.Station, headerCodes []int) string {
	t.Helper()
	layout := workbook.DefaultLayout()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", layout.DataSheet))
	_, err := f.NewSheet(layout.StationSheet)
	require.NoError(t, err)

	require.NoError(t, f.SetCellValue(layout.StationSheet, "A1", "code"))
	require.NoError(t, f.SetCellValue(layout.StationSheet, "B1", "station"))
	for i, st := range stations {
		row := layout.StationStartRow + i
		require.NoError(t, f.SetCellValue(layout.StationSheet, cell(t, 1, row), st.Code))
		require.NoError(t, f.SetCellValue(layout.StationSheet, cell(t, 2, row), st.Name))
	}
	require.NoError(t, f.SetCellValue(layout.DataSheet, "A1", "Débits observés"))
	require.NoError(t, f.SetCellValue(layout.DataSheet, cell(t, 1, layout.HeaderRow), "timestamp"))
	for i, code := range headerCodes {
		require.NoError(t, f.SetCellValue(layout.DataSheet, cell(t, 2+i, layout.HeaderRow), code))
	}
	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func cell(t *testing.T, col, row int) string {
	t.Helper()
	name, err := excelize.CoordinatesToCellName(col, row)
	require.NoError(t, err)
	return name
}

func TestReadTemplate(t *testing.T) {
	path := newTemplate(t, []domain.Station{{Code: 101, Name: "Zrarda"}, {Code: 102, Name: "Ain Sebou"}}, []int{102, 500})

	tpl, err := workbook.ReadTemplate(path, workbook.DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, []domain.Station{{Code: 101, Name: "Zrarda"}, {Code: 102, Name: "Ain Sebou"}}, tpl.Stations)
	assert.Equal(t, []int{102, 500}, tpl.DataCodes)
}

func TestReadTemplate_MissingSheet(t *testing.T) {
	path := newTemplate(t, nil, nil)
	layout := workbook.DefaultLayout()
	layout.StationSheet = "Liste"

	_, err := workbook.ReadTemplate(path, layout)
	require.ErrorIs(t, err, domain.ErrTemplate)
}

func TestExportAndReadSeries(t *testing.T) {
	layout := workbook.DefaultLayout()
	tplPath := newTemplate(t, []domain.Station{{Code: 1, Name: "A"}}, []int{1})
	out := filepath.Join(t.TempDir(), "out.xlsx")

	m := &domain.Matrix{
		Codes: []int{1, 2},
		Times: []time.Time{hour(0), hour(1)},
		Cells: [][]*float64{{ptr(1.25), nil}, {ptr(3), ptr(4)}},
		Fill:  domain.NoFill,
	}
	stats, err := workbook.Export(tplPath, out, layout, m)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.WrittenRows)

	_, err = os.Stat(out)
	require.NoError(t, err)
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(out), ".hydroprep-*"))
	assert.Empty(t, leftovers)

	wb, err := workbook.Open(out)
	require.NoError(t, err)
	defer wb.Close()
	g, err := wb.Sheet(layout.DataSheet)
	require.NoError(t, err)

	assert.Equal(t, "Débits observés", g.Get(1, 1), "template content outside the data region is kept")
	series := workbook.ReadSeries(g, layout)
	assert.Equal(t, []int{1, 2}, series.Codes)
	require.Len(t, series.Rows, 2)
	assert.Equal(t, "2024-01-01T00:00:00", series.Rows[0].Time)
	assert.Equal(t, map[int]float64{1: 1.25}, series.Rows[0].Values)
	assert.Equal(t, map[int]float64{1: 3, 2: 4}, series.Rows[1].Values)
}

func TestExportAndReadSeries_StyledTemplateKeepsStoredValues(t *testing.T) {
	layout := workbook.DefaultLayout()
	tplPath := newTemplate(t, []domain.Station{{Code: 1, Name: "A"}, {Code: 2, Name: "B"}}, []int{1, 2})

	f, err := excelize.OpenFile(tplPath)
	require.NoError(t, err)
	twoDecimals, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	require.NoError(t, err)
	thousands, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(layout.DataSheet, cell(t, 2, layout.FirstDataRow), cell(t, 2, layout.FirstDataRow+6), twoDecimals))
	require.NoError(t, f.SetCellStyle(layout.DataSheet, cell(t, 3, layout.FirstDataRow), cell(t, 3, layout.FirstDataRow+6), thousands))
	require.NoError(t, f.SaveAs(tplPath))
	require.NoError(t, f.Close())

	m := &domain.Matrix{
		Codes: []int{1, 2},
		Times: []time.Time{hour(0)},
		Cells: [][]*float64{{ptr(1.23456), ptr(12345.6)}},
		Fill:  domain.NoFill,
	}
	out := filepath.Join(t.TempDir(), "out.xlsx")
	_, err = workbook.Export(tplPath, out, layout, m)
	require.NoError(t, err)

	wb, err := workbook.Open(out)
	require.NoError(t, err)
	defer wb.Close()
	g, err := wb.Sheet(layout.DataSheet)
	require.NoError(t, err)

	series := workbook.ReadSeries(g, layout)
	require.Len(t, series.Rows, 1)
	assert.Equal(t, map[int]float64{1: 1.23456, 2: 12345.6}, series.Rows[0].Values)
}
