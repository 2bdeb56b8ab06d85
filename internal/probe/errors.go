package probe

import "errors"

// Sentinel errors surfaced by both executors, per §4.4/§4.5.
var (
	ErrTimeout             = errors.New("probe: timeout")
	ErrTransport           = errors.New("probe: transport failure")
	ErrCancelled           = errors.New("probe: cancelled")
	ErrConnect             = errors.New("probe: connect failure")
	ErrExecute             = errors.New("probe: execute failure")
	ErrResultShapeMismatch = errors.New("probe: result shape mismatch")
	ErrCircuitOpen         = errors.New("probe: circuit open")
)
