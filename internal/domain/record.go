package domain

import (
	"errors"
	"time"
)

var (
	// ErrStructural marks input that cannot be read as a table at all.
	ErrStructural = errors.New("structural input error")
	// ErrNoRecords marks a run where nothing survived mapping and cleaning.
	ErrNoRecords = errors.New("no valid records")
	// ErrTemplate marks a template workbook missing a required sheet or header.
	ErrTemplate = errors.New("template error")
)

// Station is one row of the template's station sheet.
type Station struct {
	Code int
	Name string
	// VarName is the optional variable-name column used by precipitation templates.
	VarName string
}

// SourceRecord is one melted (time, column, value) triple as read from an input file.
// TimeRaw is a string, a time.Time or an Excel serial number; ValueRaw is a
// string or a float64.
type SourceRecord struct {
	TimeRaw  any
	Label    string
	ValueRaw any
	// CodeHint is set when the source itself declares the station code.
	CodeHint *int
}

// MappingMethod records how a column label was tied to a station.
type MappingMethod string

const (
	MethodExact    MappingMethod = "exact"
	MethodFuzzy    MappingMethod = "fuzzy"
	MethodCode     MappingMethod = "code"
	MethodUnmapped MappingMethod = "unmapped"
)

// ColumnMapping is the audit entry for one distinct source label.
type ColumnMapping struct {
	Label        string        `json:"label"`
	StationCode  *int          `json:"station_code"`
	StationName  string        `json:"station_name,omitempty"`
	Method       MappingMethod `json:"method"`
	MatchedAlias string        `json:"matched_alias,omitempty"`
	Score        float64       `json:"score,omitempty"`
}

// Mapped reports whether the label resolved to a station.
func (m ColumnMapping) Mapped() bool {
	return m.StationCode != nil
}

// ResolvedRecord is a source record whose label has been mapped to a station.
type ResolvedRecord struct {
	TimeRaw     any
	StationCode int
	ValueRaw    any
}

// CleanRecord is a validated observation. A nil Value is a missing measurement.
type CleanRecord struct {
	Time        time.Time
	StationCode int
	Value       *float64
}

func floatPtr(v float64) *float64 {
	return &v
}
