// Package analysis extracts transient-response metrics from a completed
// flight trace.
//
// [Analyzer.Analyze] converts the recorded roll angle into percentage error
// against the setpoint and derives:
//
//   - overshoot: the largest percentage error reached
//   - oscillation count: sign changes of the error
//   - steady-state error: mean error once roll rate has settled
//   - time-to-error-level table: first time each whole-percent level was hit
//   - maneuver-average velocity
//
// [DominantFrequency] reports the strongest roll-rate oscillation of a trace.
//
// # Example
//
//	a := analysis.Analyzer{StartTime: 1.5}
//	m, err := a.Analyze(trace, math.Pi)
//	if errors.Is(err, dynamo.ErrZeroSetpoint) {
//	    // setpoint must be non-zero
//	}
package analysis
