package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is how matrix timestamps are rendered in workbooks and reports.
const TimestampLayout = "2006-01-02T15:04:05"

// Gap is a step between consecutive timestamps that differs from the expected cadence.
type Gap struct {
	From  time.Time
	To    time.Time
	Delta time.Duration
}

func (g Gap) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Delta string `json:"delta"`
	}{g.From.Format(TimestampLayout), g.To.Format(TimestampLayout), g.Delta.String()})
}

func (g Gap) String() string {
	return fmt.Sprintf("gap=%s between %s and %s", g.Delta, g.From.Format(TimestampLayout), g.To.Format(TimestampLayout))
}

// DetectGaps compares consecutive sorted unique timestamps with the expected step.
func DetectGaps(times []time.Time, expected time.Duration) []Gap {
	var gaps []Gap
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1])
		if d != expected {
			gaps = append(gaps, Gap{From: times[i-1], To: times[i], Delta: d})
		}
	}
	return gaps
}
