package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze run identifiers via SetClock.
var clock = clockwork.NewRealClock()

// RunIDLayout formats the UTC run identifier embedded in output file names.
const RunIDLayout = "20060102T150405Z"

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time in UTC.
func Now() time.Time {
	return clock.Now().UTC()
}

// NewRunID returns the run identifier for a run starting now.
func NewRunID() string {
	return Now().Format(RunIDLayout)
}
