// Package bench abstracts the measurement instrument that acquires I–V
// sweeps. The campaign orchestrator only ever talks to the Bench
// interface; the simulated implementation in this package stands in for
// real hardware during tests, dry runs and the simulate command.
package bench

import (
	"context"
	"errors"

	"memlab/internal/sweep"
)

// Bench runs one named test against one device and returns the acquired
// trace. Implementations must honor ctx cancellation while the
// instrument is idle; an acquisition already in flight runs to
// completion.
type Bench interface {
	RunTest(ctx context.Context, deviceID, testName string) (sweep.RawSweep, error)
}

// ErrUnknownDevice is returned when a test is requested for a device the
// bench has no connection to.
var ErrUnknownDevice = errors.New("bench: unknown device")
