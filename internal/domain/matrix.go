package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FillPolicy decides what an absent cell becomes when the matrix is written.
type FillPolicy struct {
	set   bool
	value float64
}

// NoFill leaves absent cells empty.
var NoFill = FillPolicy{}

// FillWith substitutes a literal for absent cells.
func FillWith(v float64) FillPolicy {
	return FillPolicy{set: true, value: v}
}

// ParseFill accepts "", "nan", "none" and "null" for NoFill, or a number
// (decimal comma allowed).
func ParseFill(s string) (FillPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "none", "null":
		return NoFill, nil
	}
	v := ParseValue(s)
	if v == nil {
		return NoFill, fmt.Errorf("invalid fill value %q", s)
	}
	return FillWith(*v), nil
}

// Substitutes reports whether the policy replaces absent cells.
func (f FillPolicy) Substitutes() bool {
	return f.set
}

// Value returns the substitute, valid only when Substitutes is true.
func (f FillPolicy) Value() float64 {
	return f.value
}

func (f FillPolicy) String() string {
	if !f.set {
		return "none"
	}
	return strconv.FormatFloat(f.value, 'f', -1, 64)
}

// Matrix is the time × station grid. Cells[row][col] is nil when no value was
// observed; the fill policy is applied only through Cell.
type Matrix struct {
	Codes []int
	Times []time.Time
	Cells [][]*float64
	Fill  FillPolicy
}

// Cell returns the value to write at (row, col) after the fill policy.
func (m *Matrix) Cell(row, col int) *float64 {
	if v := m.Cells[row][col]; v != nil {
		return v
	}
	if m.Fill.Substitutes() {
		return floatPtr(m.Fill.Value())
	}
	return nil
}

// MatrixStats summarizes the matrix. Value statistics cover observed values
// only, never substitutes.
type MatrixStats struct {
	Rows                int      `json:"rows"`
	StationColumns      int      `json:"station_columns"`
	PreFillMissingCells int      `json:"pre_fill_missing_cells"`
	FillMissingValue    string   `json:"fill_missing_value"`
	AbsentStations      []int    `json:"absent_stations"`
	OutOfTargetRecords  int      `json:"out_of_target_records"`
	Values              Summary  `json:"values"`
	ZeroPct             *float64 `json:"zero_pct,omitempty"`
	NonZeroPct          *float64 `json:"non_zero_pct,omitempty"`
}

// TargetCodes returns the sorted union of code sets.
func TargetCodes(sets ...[]int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, set := range sets {
		for _, c := range set {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

// BuildMatrix pivots records onto the target codes. Later records overwrite
// earlier ones at the same cell. Records for codes outside targetCodes are
// counted and dropped. Codes with no record become all-nil columns.
func BuildMatrix(records []CleanRecord, targetCodes []int, fill FillPolicy) (*Matrix, MatrixStats) {
	col := make(map[int]int, len(targetCodes))
	for i, c := range targetCodes {
		col[c] = i
	}

	var stats MatrixStats
	timeSet := make(map[int64]struct{})
	for _, r := range records {
		if _, ok := col[r.StationCode]; !ok {
			continue
		}
		timeSet[r.Time.UnixNano()] = struct{}{}
	}
	keys := make([]int64, 0, len(timeSet))
	for k := range timeSet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	row := make(map[int64]int, len(keys))
	times := make([]time.Time, len(keys))
	for i, k := range keys {
		row[k] = i
		times[i] = time.Unix(0, k).UTC()
	}

	cells := make([][]*float64, len(times))
	for i := range cells {
		cells[i] = make([]*float64, len(targetCodes))
	}
	present := make(map[int]bool, len(targetCodes))
	for _, r := range records {
		c, ok := col[r.StationCode]
		if !ok {
			stats.OutOfTargetRecords++
			continue
		}
		present[r.StationCode] = true
		cells[row[r.Time.UnixNano()]][c] = r.Value
	}

	m := &Matrix{Codes: targetCodes, Times: times, Cells: cells, Fill: fill}

	var observed []float64
	for _, cellRow := range cells {
		for _, v := range cellRow {
			if v == nil {
				stats.PreFillMissingCells++
				continue
			}
			observed = append(observed, *v)
		}
	}
	for _, c := range targetCodes {
		if !present[c] {
			stats.AbsentStations = append(stats.AbsentStations, c)
		}
	}
	stats.Rows = len(times)
	stats.StationColumns = len(targetCodes)
	stats.FillMissingValue = fill.String()
	stats.Values = Summarize(observed)
	return m, stats
}

// WithZeroShare adds the share of observed values equal to zero, as used for
// precipitation.
func (s *MatrixStats) WithZeroShare(m *Matrix) {
	var zero, total int
	for _, cellRow := range m.Cells {
		for _, v := range cellRow {
			if v == nil {
				continue
			}
			total++
			if *v == 0 {
				zero++
			}
		}
	}
	if total == 0 {
		return
	}
	z := math.Round(float64(zero)/float64(total)*10000) / 100
	s.ZeroPct = floatPtr(z)
	s.NonZeroPct = floatPtr(math.Round((100-z)*100) / 100)
}
