package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for roll control, analysis and tuning.
var (
	// ErrInvalidState indicates a plant state with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrInvalidConfig indicates a controller, tuner or loop configuration
	// outside its valid range.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrZeroSetpoint indicates percentage error was requested against a
	// zero roll setpoint.
	ErrZeroSetpoint = errors.New("dynamo: setpoint roll must be non-zero")

	// ErrEmptyTrace indicates an analysis over a trace with no samples.
	ErrEmptyTrace = errors.New("dynamo: flight trace is empty")

	// ErrTraceOrder indicates sample times that do not strictly increase.
	ErrTraceOrder = errors.New("dynamo: flight trace time is not increasing")

	// ErrInvalidMetrics indicates metrics the tuner cannot scale.
	ErrInvalidMetrics = errors.New("dynamo: metrics cannot be used for tuning")

	// ErrDivergence indicates the gain vector ran away or became non-finite.
	ErrDivergence = errors.New("dynamo: gains diverged")
)

// IterationError wraps an error with the tuning iteration and stage that
// produced it.
type IterationError struct {
	Iteration int
	Stage     string
	Wrapped   error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration %d %s: %v", e.Iteration, e.Stage, e.Wrapped)
}

func (e *IterationError) Unwrap() error {
	return e.Wrapped
}
