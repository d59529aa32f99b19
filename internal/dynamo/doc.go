// Package dynamo provides the shared types of the roll tuning pipeline.
//
// The package defines the values that flow between components:
//
//   - [Sample]: one simulated timestep (time, roll rate, velocity, canards)
//   - [FlightTrace]: the ordered samples of one run
//   - [GainVector]: PID gains, the only state kept across iterations
//   - [ErrorMetrics]: transient-response metrics derived from a trace
//   - [System], [Integrator]: plant dynamics and their numerical stepper
//
// # Example
//
//	trace := dynamo.NewFlightTrace(1024)
//	trace.Append(dynamo.Sample{Time: 1.5, RollRate: 0.2})
//	active := trace.Since(1.5)
//
// # Thread Safety
//
// Traces are owned by the run that produced them and are not safe for
// concurrent mutation.
package dynamo
