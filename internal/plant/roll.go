// Package plant provides a small single-axis roll model and a fixed-step
// engine that flies it under a fin controller. It stands in for a full
// six-degree-of-freedom flight simulator when tuning or testing.
package plant

import (
	"fmt"
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
)

// State layout: [roll, rollRate, velocity].
const (
	idxRoll = iota
	idxRate
	idxVel
	stateDim
)

// Control layout: [canard1, canard2]. The pair deflects antisymmetrically.
const controlDim = 2

// RollParams describe the airframe. Aerodynamic terms scale with v².
type RollParams struct {
	// LaunchVelocity is the speed when the trace starts, in m/s.
	LaunchVelocity float64 `yaml:"launch_velocity"`
	BoostAccel     float64 `yaml:"boost_accel"`
	BurnTime       float64 `yaml:"burn_time"`
	// Drag is the quadratic deceleration coefficient, 1/m.
	Drag float64 `yaml:"drag"`
	// FinAuthority is the roll acceleration per radian of differential
	// deflection per (m/s)².
	FinAuthority float64 `yaml:"fin_authority"`
	// RollDamping is the aerodynamic roll damping per m/s.
	RollDamping float64 `yaml:"roll_damping"`
	// CantTorque is the roll acceleration per (m/s)² from fin misalignment.
	CantTorque      float64 `yaml:"cant_torque"`
	InitialRollRate float64 `yaml:"initial_roll_rate"`
}

func DefaultRollParams() RollParams {
	return RollParams{
		LaunchVelocity:  25,
		BoostAccel:      90,
		BurnTime:        2.0,
		Drag:            2e-4,
		FinAuthority:    1.6e-3,
		RollDamping:     3e-2,
		CantTorque:      2e-6,
		InitialRollRate: 0.5,
	}
}

func (p RollParams) Validate() error {
	for name, v := range map[string]float64{
		"launch_velocity": p.LaunchVelocity,
		"boost_accel":     p.BoostAccel,
		"burn_time":       p.BurnTime,
		"drag":            p.Drag,
		"fin_authority":   p.FinAuthority,
		"roll_damping":    p.RollDamping,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: plant %s must be finite and non-negative, got %g", dynamo.ErrInvalidConfig, name, v)
		}
	}
	if math.IsNaN(p.CantTorque) || math.IsNaN(p.InitialRollRate) {
		return fmt.Errorf("%w: plant parameters must not be NaN", dynamo.ErrInvalidConfig)
	}
	return nil
}

// RollPlant is a dynamo.System for the roll axis of a boosted vehicle.
type RollPlant struct {
	p RollParams
}

func NewRollPlant(p RollParams) *RollPlant {
	return &RollPlant{p: p}
}

func (r *RollPlant) StateDim() int   { return stateDim }
func (r *RollPlant) ControlDim() int { return controlDim }

func (r *RollPlant) Params() RollParams { return r.p }

// InitialState is the state at t=0.
func (r *RollPlant) InitialState() dynamo.State {
	x := make(dynamo.State, stateDim)
	x[idxRate] = r.p.InitialRollRate
	x[idxVel] = r.p.LaunchVelocity
	return x
}

func (r *RollPlant) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	v := x[idxVel]
	rate := x[idxRate]
	q := v * math.Abs(v)

	fin := 0.0
	if len(u) >= controlDim {
		fin = (u[0] - u[1]) / 2
	}

	thrust := 0.0
	if t < r.p.BurnTime {
		thrust = r.p.BoostAccel
	}

	dx := make(dynamo.State, stateDim)
	dx[idxRoll] = rate
	dx[idxRate] = r.p.FinAuthority*q*fin + r.p.CantTorque*q - r.p.RollDamping*math.Abs(v)*rate
	dx[idxVel] = thrust - r.p.Drag*q
	return dx
}
