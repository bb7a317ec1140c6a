package registry

import (
	"errors"
	"fmt"
)

// ErrUnknownDevice is returned for operations on a device that was never
// registered.
var ErrUnknownDevice = errors.New("unknown device")

// IllegalStageTransitionError reports an attempt to move a device along
// an edge the workflow state machine does not have. It signals a
// programming or configuration error: the affected device halts, the
// campaign continues.
type IllegalStageTransitionError struct {
	DeviceID string
	From     Stage
	To       Stage
}

func (e *IllegalStageTransitionError) Error() string {
	return fmt.Sprintf("illegal stage transition for device %s: %s -> %s", e.DeviceID, e.From, e.To)
}
