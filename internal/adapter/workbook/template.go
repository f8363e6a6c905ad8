package workbook

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
)

// Layout locates the parts of a template workbook. Rows and columns are 1-based.
type Layout struct {
	DataSheet       string
	StationSheet    string
	HeaderRow       int
	FirstDataRow    int
	StationStartRow int
}

// DefaultLayout matches the agency's multi-station templates.
func DefaultLayout() Layout {
	return Layout{
		DataSheet:       "Données",
		StationSheet:    "Stations",
		HeaderRow:       3,
		FirstDataRow:    4,
		StationStartRow: 2,
	}
}

// TimestampHeader labels column 1 of the data header row.
const TimestampHeader = "timestamp"

const (
	stationCodeCol    = 1
	stationNameCol    = 2
	stationVarNameCol = 4
	firstCodeCol      = 2
)

// Template is what a run needs to know about its output template.
type Template struct {
	Path     string
	Layout   Layout
	Stations []domain.Station
	// DataCodes are the station codes already in the data header row, in column order.
	DataCodes []int
}

// ReadTemplate loads the station list and the current data header of a template.
func ReadTemplate(path string, layout Layout) (*Template, error) {
	wb, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	stations, err := wb.Sheet(layout.StationSheet)
	if err != nil {
		return nil, err
	}
	data, err := wb.Sheet(layout.DataSheet)
	if err != nil {
		return nil, err
	}
	return &Template{
		Path:      path,
		Layout:    layout,
		Stations:  ReadStations(stations, layout),
		DataCodes: HeaderCodes(data, layout),
	}, nil
}

// ReadStations lists station rows in sheet order, skipping rows without an
// integer code or a name.
func ReadStations(g Grid, layout Layout) []domain.Station {
	rows, _ := g.Extent()
	var out []domain.Station
	for r := layout.StationStartRow; r <= rows; r++ {
		code, ok := ParseCode(g.Get(r, stationCodeCol))
		name := strings.TrimSpace(g.Get(r, stationNameCol))
		if !ok || name == "" {
			continue
		}
		out = append(out, domain.Station{
			Code:    code,
			Name:    name,
			VarName: strings.TrimSpace(g.Get(r, stationVarNameCol)),
		})
	}
	return out
}

// HeaderCodes reads the integer codes of the data header row from column 2 on.
// Non-code cells are skipped.
func HeaderCodes(g Grid, layout Layout) []int {
	_, cols := g.Extent()
	var codes []int
	for c := firstCodeCol; c <= cols; c++ {
		if code, ok := ParseCode(g.Get(layout.HeaderRow, c)); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

// ParseCode reads an integer station code, tolerating "101.0".
func ParseCode(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func (t *Template) String() string {
	return fmt.Sprintf("%s (%d stations, %d header codes)", t.Path, len(t.Stations), len(t.DataCodes))
}
