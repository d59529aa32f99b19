package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
)

const (
	// steadyRollRate is the roll rate (rad/s) below which the vehicle is
	// treated as settled after its last oscillation.
	steadyRollRate = 0.25

	// steadyStateDenominatorOffset is subtracted from the number of samples
	// after the final oscillation when averaging steady-state error. The
	// accumulation window holds len-finalIdx samples, so this divides by one
	// fewer. Kept for parity with the historical tuner until the domain owner
	// confirms the intended window.
	steadyStateDenominatorOffset = 1
)

// Analyzer computes ErrorMetrics from a trace recorded after StartTime.
type Analyzer struct {
	StartTime float64
	// ManeuverLevel is the percentage error whose first crossing ends the
	// maneuver for the average-velocity estimate.
	ManeuverLevel int
}

// ErrorPercent returns the roll error of each sample as a percentage of the
// setpoint.
func ErrorPercent(trace *dynamo.FlightTrace, setpoint float64) ([]float64, error) {
	if setpoint == 0 {
		return nil, dynamo.ErrZeroSetpoint
	}
	if math.IsNaN(setpoint) || math.IsInf(setpoint, 0) {
		return nil, fmt.Errorf("%w: setpoint %f", dynamo.ErrInvalidConfig, setpoint)
	}
	out := make([]float64, trace.Len())
	for i := range out {
		out[i] = (trace.At(i).Roll - setpoint) / setpoint * 100
	}
	return out, nil
}

// Analyze derives the transient-response metrics of one run.
func (a Analyzer) Analyze(trace *dynamo.FlightTrace, setpoint float64) (dynamo.ErrorMetrics, error) {
	var m dynamo.ErrorMetrics

	active := trace.Since(a.StartTime)
	pct, err := ErrorPercent(active, setpoint)
	if err != nil {
		return m, err
	}
	if active.Len() == 0 {
		return m, dynamo.ErrEmptyTrace
	}
	if err := active.Validate(); err != nil {
		return m, err
	}

	n := active.Len()
	times := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = active.At(i).Time
	}

	m.TimeToErrorLevel = levelTable(times, pct, a.StartTime)
	m.OvershootPercent = overshoot(pct)
	m.OscillationCount, m.FinalOscillationIndex = oscillations(pct)
	m.SteadyStateErrorPercent = steadyStateError(active, pct, m.FinalOscillationIndex)
	m.ManeuverAverageVelocity = a.maneuverVelocity(active, &m.TimeToErrorLevel)
	m.Duration = active.Duration()

	return m, nil
}

func overshoot(pct []float64) float64 {
	peak := math.Inf(-1)
	for _, p := range pct {
		if p > peak {
			peak = p
		}
	}
	return peak
}

// oscillations counts sign changes of the error. The sign starts out
// non-positive, so a trace that begins above the setpoint counts one crossing
// at its first sample.
func oscillations(pct []float64) (count, final int) {
	positive := false
	for i, p := range pct {
		if p > 0 && !positive {
			count++
			positive = true
			final = i
		} else if p < 0 && positive {
			count++
			positive = false
			final = i
		}
	}
	return count, final
}

func steadyStateError(trace *dynamo.FlightTrace, pct []float64, final int) float64 {
	n := len(pct)
	if n == final+1 {
		return pct[n-1]
	}

	sum := 0.0
	settled := false
	for i := final; i < n; i++ {
		if math.Abs(trace.At(i).RollRate) < steadyRollRate {
			settled = true
		}
		if settled {
			sum += pct[i]
		}
	}
	return sum / float64(n-final-steadyStateDenominatorOffset)
}

func (a Analyzer) maneuverVelocity(trace *dynamo.FlightTrace, table *dynamo.LevelTable) float64 {
	end := 0
	if at, ok := table.At(a.ManeuverLevel); ok {
		for i := 0; i < trace.Len(); i++ {
			if trace.At(i).Time-a.StartTime >= at {
				end = i
				break
			}
		}
	}
	return (trace.At(0).Velocity + trace.At(end).Velocity) / 2
}
