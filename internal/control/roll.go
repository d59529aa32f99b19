package control

import (
	"fmt"
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
)

const (
	DefaultStartTime   = 1.5
	DefaultClockPeriod = 0.01
	DefaultKp          = 0.07
	DefaultKi          = 0.2
	DefaultKd          = 0.0
)

var (
	DefaultSetpointRoll = math.Pi
	DefaultMaxFinRate   = 10 * math.Pi / 180
	DefaultMaxFinAngle  = 10 * math.Pi / 180
)

// Config is the fixed part of a roll controller run. Angles in radians,
// times in seconds.
type Config struct {
	SetpointRoll float64
	StartTime    float64
	ClockPeriod  float64
	MaxFinRate   float64
	MaxFinAngle  float64
	Gains        dynamo.GainVector
}

func DefaultConfig() Config {
	return Config{
		SetpointRoll: DefaultSetpointRoll,
		StartTime:    DefaultStartTime,
		ClockPeriod:  DefaultClockPeriod,
		MaxFinRate:   DefaultMaxFinRate,
		MaxFinAngle:  DefaultMaxFinAngle,
		Gains:        dynamo.GainVector{Kp: DefaultKp, Ki: DefaultKi, Kd: DefaultKd},
	}
}

func (c Config) Validate() error {
	if c.ClockPeriod <= 0 {
		return fmt.Errorf("%w: clock period must be positive, got %f", dynamo.ErrInvalidConfig, c.ClockPeriod)
	}
	if c.MaxFinRate <= 0 {
		return fmt.Errorf("%w: max fin rate must be positive, got %f", dynamo.ErrInvalidConfig, c.MaxFinRate)
	}
	if c.MaxFinAngle <= 0 {
		return fmt.Errorf("%w: max fin angle must be positive, got %f", dynamo.ErrInvalidConfig, c.MaxFinAngle)
	}
	if !c.Gains.IsFinite() {
		return fmt.Errorf("%w: gains must be finite, got %v", dynamo.ErrInvalidConfig, c.Gains)
	}
	return nil
}

// SaturationEvent records a fin command that had to be clamped.
type SaturationEvent struct {
	Attempted float64
	Time      float64
}

// Roll is a fixed-rate digital PID roll controller driving a canard pair.
//
// Before StartTime it is inactive and commands zero deflection. Afterwards
// each sample updates the roll estimate, but the command is recomputed only
// when a sample crosses a ClockPeriod boundary; between boundaries the last
// command is held.
type Roll struct {
	cfg Config
	est Estimator

	prevControlTime float64
	integral        float64
	fin             float64

	saturations  []SaturationEvent
	onSaturation func(SaturationEvent)
}

func NewRoll(cfg Config) *Roll {
	r := &Roll{cfg: cfg}
	r.Reset()
	return r
}

// Configure replaces the run configuration and resets controller state.
func (r *Roll) Configure(cfg Config) {
	r.cfg = cfg
	r.Reset()
}

// SetGains replaces the PID gains without touching controller state.
func (r *Roll) SetGains(g dynamo.GainVector) {
	r.cfg.Gains = g
}

// OnSaturation installs a hook called for every clamped command.
func (r *Roll) OnSaturation(fn func(SaturationEvent)) {
	r.onSaturation = fn
}

// Reset returns the controller to its pre-flight state.
func (r *Roll) Reset() {
	r.est.Reset(r.cfg.StartTime)
	r.prevControlTime = r.cfg.StartTime
	r.integral = 0
	r.fin = 0
	r.saturations = r.saturations[:0]
}

// Update consumes one roll-rate sample and returns the fin command to apply
// for the next physics step.
func (r *Roll) Update(t, rollRate float64) float64 {
	if t < r.cfg.StartTime {
		return 0
	}

	prevSample := r.est.PrevTime()
	roll := r.est.Update(t, rollRate)

	if !r.clockTick(prevSample, t) {
		return r.fin
	}

	dt := t - r.prevControlTime
	r.prevControlTime = t

	err := r.cfg.SetpointRoll - roll
	p := r.cfg.Gains.Kp * err
	d := r.cfg.Gains.Kd * rollRate
	r.integral += err * dt
	i := r.cfg.Gains.Ki * r.integral

	r.slewTo(p+i+d, dt)
	r.saturate(t)

	return r.fin
}

func (r *Roll) clockTick(prev, t float64) bool {
	return math.Floor(prev/r.cfg.ClockPeriod) != math.Floor(t/r.cfg.ClockPeriod)
}

// slewTo moves the fin toward command by at most MaxFinRate*dt.
func (r *Roll) slewTo(command, dt float64) {
	step := r.cfg.MaxFinRate * dt
	if r.fin < command {
		r.fin = math.Min(r.fin+step, command)
	} else {
		r.fin = math.Max(r.fin-step, command)
	}
}

func (r *Roll) saturate(t float64) {
	if math.Abs(r.fin) <= r.cfg.MaxFinAngle {
		return
	}
	ev := SaturationEvent{Attempted: r.fin, Time: t}
	r.fin = math.Max(-r.cfg.MaxFinAngle, math.Min(r.cfg.MaxFinAngle, r.fin))
	r.saturations = append(r.saturations, ev)
	if r.onSaturation != nil {
		r.onSaturation(ev)
	}
}

func (r *Roll) FinPosition() float64   { return r.fin }
func (r *Roll) EstimatedRoll() float64 { return r.est.Roll() }
func (r *Roll) Integral() float64      { return r.integral }
func (r *Roll) Config() Config         { return r.cfg }

// Saturations returns the clamp events recorded since the last Reset.
func (r *Roll) Saturations() []SaturationEvent {
	out := make([]SaturationEvent, len(r.saturations))
	copy(out, r.saturations)
	return out
}
