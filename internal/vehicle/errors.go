package vehicle

import (
	"errors"
	"fmt"
)

// ErrTransport is matched by every error returned from a Vehicle.
var ErrTransport = errors.New("vehicle transport error")

// TransportError describes a failed vehicle command or telemetry read.
type TransportError struct {
	Op  string // command that failed, e.g. "takeoff" or "height"
	Err error
}

// NewTransportError wraps err as a failure of op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransport.Error(), e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
