package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Aggregation reduces the values that fall in one resampling bucket.
type Aggregation string

const (
	AggMean   Aggregation = "mean"
	AggLast   Aggregation = "last"
	AggSum    Aggregation = "sum"
	AggMin    Aggregation = "min"
	AggMax    Aggregation = "max"
	AggMedian Aggregation = "median"
)

// ParseAggregation validates an aggregation name.
func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(strings.ToLower(strings.TrimSpace(s))); a {
	case AggMean, AggLast, AggSum, AggMin, AggMax, AggMedian:
		return a, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// Rule is a fixed resampling width. The zero Rule disables resampling.
type Rule struct {
	Raw   string
	Width time.Duration
}

// Enabled reports whether the rule buckets anything.
func (r Rule) Enabled() bool {
	return r.Width > 0
}

func (r Rule) String() string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.Width.String()
}

var ruleRe = regexp.MustCompile(`^(\d*)\s*([A-Za-z]+)$`)

var ruleUnits = map[string]time.Duration{
	"s": time.Second, "S": time.Second, "sec": time.Second,
	"min": time.Minute, "T": time.Minute, "m": time.Minute,
	"h": time.Hour, "H": time.Hour,
	"d": 24 * time.Hour, "D": 24 * time.Hour,
}

// ParseRule reads rules such as "1h", "30min", "15T" or "1D", falling back to
// Go durations like "90m". An empty string, "none" or "off" yields the
// disabled Rule.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none", "off":
		return Rule{}, nil
	}
	if m := ruleRe.FindStringSubmatch(s); m != nil {
		if unit, ok := ruleUnits[m[2]]; ok {
			n := 1
			if m[1] != "" {
				var err error
				if n, err = strconv.Atoi(m[1]); err != nil || n <= 0 {
					return Rule{}, fmt.Errorf("invalid resample rule %q", s)
				}
			}
			return Rule{Raw: s, Width: time.Duration(n) * unit}, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return Rule{}, fmt.Errorf("invalid resample rule %q", s)
	}
	return Rule{Raw: s, Width: d}, nil
}

// ResampleStats describes the cadence before and after resampling.
type ResampleStats struct {
	Rule              string   `json:"rule,omitempty"`
	Aggregation       string   `json:"aggregation,omitempty"`
	RowsBefore        int      `json:"rows_before"`
	RowsAfter         int      `json:"rows_after"`
	NativeStepMinutes *float64 `json:"native_step_minutes"`
}

type bucketKey struct {
	code int
	t    int64
}

// Resample groups records per station into rule-wide buckets and aggregates
// the non-nil values of each bucket. Only buckets holding at least one record
// are emitted; a bucket whose values are all nil yields a nil value.
// Buckets are anchored at UTC midnight of the earliest record's day, so
// widths that do not divide a day still start on that midnight.
// Input must be sorted as Clean returns it.
func Resample(records []CleanRecord, rule Rule, agg Aggregation) ([]CleanRecord, ResampleStats) {
	stats := ResampleStats{
		Rule:              rule.String(),
		Aggregation:       string(agg),
		RowsBefore:        len(records),
		NativeStepMinutes: NativeStepMinutes(records),
	}
	if !rule.Enabled() {
		stats.Rule = ""
		stats.Aggregation = ""
		stats.RowsAfter = len(records)
		return records, stats
	}

	origin := bucketOrigin(records)
	groups := make(map[bucketKey][]float64)
	order := make([]bucketKey, 0)
	for _, r := range records {
		start := origin.Add(r.Time.Sub(origin) / rule.Width * rule.Width)
		k := bucketKey{code: r.StationCode, t: start.UnixNano()}
		vals, seen := groups[k]
		if !seen {
			order = append(order, k)
			vals = make([]float64, 0, 4)
		}
		if r.Value != nil {
			vals = append(vals, *r.Value)
		}
		groups[k] = vals
	}

	out := make([]CleanRecord, 0, len(order))
	for _, k := range order {
		out = append(out, CleanRecord{
			Time:        time.Unix(0, k.t).UTC(),
			StationCode: k.code,
			Value:       aggregate(groups[k], agg),
		})
	}
	SortRecords(out)
	stats.RowsAfter = len(out)
	return out, stats
}

func bucketOrigin(records []CleanRecord) time.Time {
	var first time.Time
	for i, r := range records {
		if i == 0 || r.Time.Before(first) {
			first = r.Time
		}
	}
	first = first.UTC()
	return time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
}

// aggregate expects values in time order.
func aggregate(vals []float64, agg Aggregation) *float64 {
	if len(vals) == 0 {
		return nil
	}
	switch agg {
	case AggLast:
		return floatPtr(vals[len(vals)-1])
	case AggSum:
		var s float64
		for _, v := range vals {
			s += v
		}
		return floatPtr(s)
	case AggMin:
		m := vals[0]
		for _, v := range vals[1:] {
			m = min(m, v)
		}
		return floatPtr(m)
	case AggMax:
		m := vals[0]
		for _, v := range vals[1:] {
			m = max(m, v)
		}
		return floatPtr(m)
	case AggMedian:
		return floatPtr(median(vals))
	default:
		var s float64
		for _, v := range vals {
			s += v
		}
		return floatPtr(s / float64(len(vals)))
	}
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// NativeStepMinutes is the median of consecutive per-station timestamp deltas,
// pooled over all stations. It is nil when no station has two timestamps.
func NativeStepMinutes(records []CleanRecord) *float64 {
	byStation := make(map[int][]time.Time)
	for _, r := range records {
		byStation[r.StationCode] = append(byStation[r.StationCode], r.Time)
	}
	var deltas []float64
	for _, ts := range byStation {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
		for i := 1; i < len(ts); i++ {
			if d := ts[i].Sub(ts[i-1]); d > 0 {
				deltas = append(deltas, d.Minutes())
			}
		}
	}
	if len(deltas) == 0 {
		return nil
	}
	return floatPtr(median(deltas))
}
