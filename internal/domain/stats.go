package domain

import (
	"math"
	"sort"
)

// Summary holds descriptive statistics of a set of values. Fields are nil when
// the set is empty.
type Summary struct {
	Count int      `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
	P95   *float64 `json:"p95"`
	P99   *float64 `json:"p99"`
}

// Summarize computes min, max, mean and the 95th and 99th percentiles.
func Summarize(values []float64) Summary {
	s := Summary{Count: len(values)}
	if len(values) == 0 {
		return s
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s.Min = floatPtr(sorted[0])
	s.Max = floatPtr(sorted[len(sorted)-1])
	s.Mean = floatPtr(sum / float64(len(sorted)))
	s.P95 = floatPtr(Quantile(sorted, 0.95))
	s.P99 = floatPtr(Quantile(sorted, 0.99))
	return s
}

// Quantile interpolates linearly between closest ranks of sorted values.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
