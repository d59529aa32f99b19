package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// Sample is one simulated timestep as seen by the roll controller.
// Angles are in radians, rates in rad/s, velocity in m/s.
type Sample struct {
	Time     float64
	RollRate float64
	Velocity float64
	Canard1  float64
	Canard2  float64
	// Roll is the roll angle the controller estimated at this step.
	Roll float64
}

// FlightTrace is an append-only, time-ordered sequence of samples owned by
// a single run.
type FlightTrace struct {
	samples []Sample
}

func NewFlightTrace(capacity int) *FlightTrace {
	return &FlightTrace{samples: make([]Sample, 0, capacity)}
}

func (f *FlightTrace) Append(s Sample) {
	f.samples = append(f.samples, s)
}

func (f *FlightTrace) Len() int {
	if f == nil {
		return 0
	}
	return len(f.samples)
}

func (f *FlightTrace) At(i int) Sample {
	return f.samples[i]
}

// Samples returns a copy of the recorded samples.
func (f *FlightTrace) Samples() []Sample {
	if f == nil {
		return nil
	}
	out := make([]Sample, len(f.samples))
	copy(out, f.samples)
	return out
}

// Since returns a new trace holding only samples with Time >= start.
func (f *FlightTrace) Since(start float64) *FlightTrace {
	out := NewFlightTrace(f.Len())
	if f == nil {
		return out
	}
	for _, s := range f.samples {
		if s.Time >= start {
			out.samples = append(out.samples, s)
		}
	}
	return out
}

// Duration is the time spanned from the first to the last sample.
func (f *FlightTrace) Duration() float64 {
	if f.Len() < 2 {
		return 0
	}
	return f.samples[len(f.samples)-1].Time - f.samples[0].Time
}

// Validate checks that sample times are strictly increasing.
func (f *FlightTrace) Validate() error {
	for i := 1; i < f.Len(); i++ {
		if f.samples[i].Time <= f.samples[i-1].Time {
			return fmt.Errorf("%w: sample %d at t=%.6f follows t=%.6f",
				ErrTraceOrder, i, f.samples[i].Time, f.samples[i-1].Time)
		}
	}
	return nil
}

// GainVector holds the PID coefficients tuned across iterations.
type GainVector struct {
	Kp float64 `yaml:"kp" json:"kp"`
	Ki float64 `yaml:"ki" json:"ki"`
	Kd float64 `yaml:"kd" json:"kd"`
}

func (g GainVector) Add(d GainVector) GainVector {
	return GainVector{Kp: g.Kp + d.Kp, Ki: g.Ki + d.Ki, Kd: g.Kd + d.Kd}
}

func (g GainVector) IsFinite() bool {
	return State{g.Kp, g.Ki, g.Kd}.IsValid()
}

func (g GainVector) String() string {
	return fmt.Sprintf("Kp=%.6g Ki=%.6g Kd=%.6g", g.Kp, g.Ki, g.Kd)
}

// Metric accumulates a scalar over the samples of one run.
type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}

func (e SimError) Unwrap() error {
	return ErrInvalidState
}
