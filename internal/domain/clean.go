package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are tried in order. Day-first forms come before any month-first
// reading could happen; Go's non-padded "2" and "1" also accept two digits.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006 15:04:05",
	"2-1-2006 15:04",
	"2-1-2006",
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// excelEpoch is day zero of the 1900 date system as Excel counts it.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// CleanStats counts what the cleaner dropped or flagged.
type CleanStats struct {
	RowsIn               int `json:"rows_in"`
	RowsAfterCleaning    int `json:"rows_after_cleaning"`
	InvalidTimeRows      int `json:"invalid_time_rows"`
	InvalidValueRows     int `json:"invalid_value_rows"`
	NegativeValueRows    int `json:"negative_value_rows"`
	DuplicateRowsRemoved int `json:"duplicate_rows_removed"`
}

// ParseTime reads a raw timestamp. Strings without a zone are UTC.
func ParseTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case float64:
		return fromExcelSerial(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func fromExcelSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 {
		return time.Time{}, false
	}
	days := math.Floor(serial)
	frac := serial - days
	t := excelEpoch.AddDate(0, 0, int(days))
	// Round to the second to absorb float noise in the fractional day.
	t = t.Add(time.Duration(math.Round(frac*86400)) * time.Second)
	return t, true
}

// ParseValue reads a raw measurement, accepting a decimal comma. It returns
// nil for anything that is not a finite number.
func ParseValue(raw any) *float64 {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return floatPtr(v)
	case int:
		return floatPtr(float64(v))
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return floatPtr(f)
	default:
		return nil
	}
}

type recordKey struct {
	t    int64
	code int
}

// Clean validates resolved records. Invalid timestamps are dropped, unreadable
// values become nil, and for each (time, station) only the last record in input
// order survives. The result is sorted by time, then station code.
func Clean(records []ResolvedRecord) ([]CleanRecord, CleanStats, error) {
	stats := CleanStats{RowsIn: len(records)}

	parsed := make([]CleanRecord, 0, len(records))
	for _, r := range records {
		t, ok := ParseTime(r.TimeRaw)
		if !ok {
			stats.InvalidTimeRows++
			continue
		}
		v := ParseValue(r.ValueRaw)
		if v == nil {
			stats.InvalidValueRows++
		} else if *v < 0 {
			stats.NegativeValueRows++
		}
		parsed = append(parsed, CleanRecord{Time: t, StationCode: r.StationCode, Value: v})
	}

	last := make(map[recordKey]int, len(parsed))
	for i, r := range parsed {
		last[recordKey{t: r.Time.UnixNano(), code: r.StationCode}] = i
	}
	out := make([]CleanRecord, 0, len(last))
	for i, r := range parsed {
		if last[recordKey{t: r.Time.UnixNano(), code: r.StationCode}] == i {
			out = append(out, r)
		}
	}
	stats.DuplicateRowsRemoved = len(parsed) - len(out)

	SortRecords(out)
	stats.RowsAfterCleaning = len(out)
	if len(out) == 0 {
		return nil, stats, fmt.Errorf("clean %d rows: %w", stats.RowsIn, ErrNoRecords)
	}
	return out, stats, nil
}

// SortRecords orders records by time, then station code, keeping input order for ties.
func SortRecords(records []CleanRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Time.Equal(records[j].Time) {
			return records[i].Time.Before(records[j].Time)
		}
		return records[i].StationCode < records[j].StationCode
	})
}
