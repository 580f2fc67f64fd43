package pipe

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned if pipe method cannot be executed at this moment.
	ErrInvalidState = errors.New("invalid state")
)

// ProtocolError reports an illegal queue or store operation: push while
// full, pop while empty, or a read of a never-filled cell. It indicates a
// sequencing defect, not bad input data, so the run is aborted rather than
// retried.
type ProtocolError struct {
	Phase    string // phase occupied when the violation happened
	Resource string // queue or store identifier
	Op       string // offending operation
	Err      error  // underlying sentinel from queue or store
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in phase %v: %v on %v: %v", e.Phase, e.Op, e.Resource, e.Err)
}

// Unwrap exposes the underlying queue/store sentinel.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StallError reports a liveness failure: the watchdog step bound fired, or
// an upstream stage went idle, before the occupied phase could complete.
type StallError struct {
	Phase string // phase last occupied
	Steps int    // steps executed this activation
}

func (e *StallError) Error() string {
	return fmt.Sprintf("pipeline stalled in phase %v after %d steps", e.Phase, e.Steps)
}

// ConfigError reports a configuration rejected before the pipeline starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v: %v", e.Field, e.Reason)
}
