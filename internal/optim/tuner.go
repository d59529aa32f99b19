package optim

import (
	"fmt"
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
)

const (
	DefaultMaxOvershootPercent = 5.0
	DefaultMaxSettlingTime20   = 1.5
	DefaultMaxSettlingTime5    = 2.0
	DefaultAlphaKp             = 2e-4
	DefaultAlphaKd             = -2e-4
	DefaultAlphaKi             = -2e-8
)

// DefaultMaxSteadyStateError is 0.25 degrees expressed in radians.
var DefaultMaxSteadyStateError = 0.25 * math.Pi / 180

// Settling levels and their weights in the proportional update.
const (
	settleLevel20  = -20
	settleLevel5   = -5
	settleWeight20 = 0.3
	settleWeight5  = 0.7
)

// Constants are the fixed references and learning rates of the tuner.
type Constants struct {
	MaxOvershootPercent float64 `yaml:"max_overshoot_percent" json:"max_overshoot_percent"`
	MaxSteadyStateError float64 `yaml:"max_steady_state_error" json:"max_steady_state_error"`
	MaxSettlingTime20   float64 `yaml:"max_settling_time_20" json:"max_settling_time_20"`
	MaxSettlingTime5    float64 `yaml:"max_settling_time_5" json:"max_settling_time_5"`
	AlphaKp             float64 `yaml:"alpha_kp" json:"alpha_kp"`
	AlphaKd             float64 `yaml:"alpha_kd" json:"alpha_kd"`
	AlphaKi             float64 `yaml:"alpha_ki" json:"alpha_ki"`
	// MaxStep clips the magnitude of every gain delta when positive.
	// Zero leaves the update unbounded.
	MaxStep float64 `yaml:"max_step" json:"max_step"`
}

func DefaultConstants() Constants {
	return Constants{
		MaxOvershootPercent: DefaultMaxOvershootPercent,
		MaxSteadyStateError: DefaultMaxSteadyStateError,
		MaxSettlingTime20:   DefaultMaxSettlingTime20,
		MaxSettlingTime5:    DefaultMaxSettlingTime5,
		AlphaKp:             DefaultAlphaKp,
		AlphaKd:             DefaultAlphaKd,
		AlphaKi:             DefaultAlphaKi,
	}
}

func (c Constants) Validate() error {
	refs := []struct {
		name string
		v    float64
	}{
		{"max overshoot", c.MaxOvershootPercent},
		{"max steady-state error", c.MaxSteadyStateError},
		{"max settling time @20%", c.MaxSettlingTime20},
		{"max settling time @5%", c.MaxSettlingTime5},
	}
	for _, r := range refs {
		if !(r.v > 0) || math.IsInf(r.v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %f", dynamo.ErrInvalidConfig, r.name, r.v)
		}
	}
	if !(c.AlphaKp > 0) {
		return fmt.Errorf("%w: alpha Kp must be positive, got %g", dynamo.ErrInvalidConfig, c.AlphaKp)
	}
	if !(c.AlphaKd < 0) {
		return fmt.Errorf("%w: alpha Kd must be negative, got %g", dynamo.ErrInvalidConfig, c.AlphaKd)
	}
	if !(c.AlphaKi < 0) {
		return fmt.Errorf("%w: alpha Ki must be negative, got %g", dynamo.ErrInvalidConfig, c.AlphaKi)
	}
	if c.MaxStep < 0 || math.IsNaN(c.MaxStep) {
		return fmt.Errorf("%w: max step must be non-negative, got %g", dynamo.ErrInvalidConfig, c.MaxStep)
	}
	return nil
}

// GainTuner turns the transient metrics of one run into additive PID gain
// updates. Each gain responds to one metric: Kp to settling time, Kd to
// overshoot and Ki to steady-state error.
type GainTuner struct {
	c Constants
}

func NewGainTuner(c Constants) (*GainTuner, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &GainTuner{c: c}, nil
}

func (g *GainTuner) Constants() Constants { return g.c }

// Delta computes the gain change for one set of metrics.
func (g *GainTuner) Delta(m dynamo.ErrorMetrics) (dynamo.GainVector, error) {
	v := m.ManeuverAverageVelocity
	if !(v > 0) || math.IsInf(v, 0) {
		return dynamo.GainVector{}, fmt.Errorf("%w: maneuver velocity %f", dynamo.ErrInvalidMetrics, v)
	}

	scaled20 := g.settlingTime(m, settleLevel20) / (g.c.MaxSettlingTime20 / v)
	scaled5 := g.settlingTime(m, settleLevel5) / (g.c.MaxSettlingTime5 / v)

	d := dynamo.GainVector{
		Kp: g.c.AlphaKp * (settleWeight20*scaled20 + settleWeight5*scaled5),
		Kd: g.c.AlphaKd * (m.OvershootPercent / g.c.MaxOvershootPercent),
		Ki: g.c.AlphaKi * (m.SteadyStateErrorPercent / g.c.MaxSteadyStateError),
	}
	if !d.IsFinite() {
		return dynamo.GainVector{}, fmt.Errorf("%w: non-finite delta %v", dynamo.ErrInvalidMetrics, d)
	}

	if g.c.MaxStep > 0 {
		d.Kp = clip(d.Kp, g.c.MaxStep)
		d.Ki = clip(d.Ki, g.c.MaxStep)
		d.Kd = clip(d.Kd, g.c.MaxStep)
	}
	return d, nil
}

// Tune returns gains updated by Delta. The input is not modified.
func (g *GainTuner) Tune(m dynamo.ErrorMetrics, gains dynamo.GainVector) (dynamo.GainVector, error) {
	d, err := g.Delta(m)
	if err != nil {
		return gains, err
	}
	return gains.Add(d), nil
}

// settlingTime is the first time the error reached level. A run that never
// got there is charged its whole duration.
func (g *GainTuner) settlingTime(m dynamo.ErrorMetrics, level int) float64 {
	if at, ok := m.TimeToErrorLevel.At(level); ok {
		return at
	}
	return m.Duration
}

func clip(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
