// Package sweep defines the raw measurement value type that enters the
// characterization pipeline: one voltage/current trace (optionally timed)
// acquired from a two-terminal device. Everything downstream, from feature
// extraction to campaign branching, consumes this type.
package sweep

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// MinSamples is the shortest sweep loop analysis is defined for. Below
// this, forward/reverse branches cannot be separated.
const MinSamples = 4

// RawSweep is a single acquired I–V trace. Voltage and Current are always
// present and equal length; Time is nil for DC sweeps. Values are never
// mutated after acquisition.
type RawSweep struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	TestName   string    `json:"test_name"`
	Voltage    []float64 `json:"voltage"`
	Current    []float64 `json:"current"`
	Time       []float64 `json:"time,omitempty"`
	AC         bool      `json:"ac,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// InsufficientDataError reports a sweep with too few samples for loop
// analysis.
type InsufficientDataError struct {
	Samples int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("sweep has %d samples, need at least %d", e.Samples, MinSamples)
}

// NewID returns a fresh sweep identifier.
func NewID() string {
	return uuid.New().String()
}

// Validate checks the structural contract: equal-length arrays, at least
// MinSamples points, and finite values throughout.
func (s *RawSweep) Validate() error {
	n := len(s.Voltage)
	if n < MinSamples {
		return &InsufficientDataError{Samples: n}
	}
	if len(s.Current) != n {
		return fmt.Errorf("voltage/current length mismatch: %d vs %d", n, len(s.Current))
	}
	if s.Time != nil && len(s.Time) != n {
		return fmt.Errorf("time length mismatch: %d vs %d", n, len(s.Time))
	}
	for i := 0; i < n; i++ {
		if !isFinite(s.Voltage[i]) {
			return fmt.Errorf("non-finite voltage at sample %d", i)
		}
		if !isFinite(s.Current[i]) {
			return fmt.Errorf("non-finite current at sample %d", i)
		}
		if s.Time != nil && !isFinite(s.Time[i]) {
			return fmt.Errorf("non-finite time at sample %d", i)
		}
	}
	return nil
}

// Samples returns the number of points in the trace.
func (s *RawSweep) Samples() int {
	return len(s.Voltage)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
