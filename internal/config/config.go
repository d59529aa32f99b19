package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/rolltune/internal/control"
	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/experiment"
	"github.com/san-kum/rolltune/internal/optim"
	"github.com/san-kum/rolltune/internal/plant"
)

const (
	DefaultSetpointDeg    = 180.0
	DefaultMaxFinRateDeg  = 10.0
	DefaultMaxFinAngleDeg = 10.0
	DefaultIntegrator     = "rk4"
	DefaultController     = "roll"
)

// Config is the on-disk description of a tuning session. Angles are in
// degrees here and converted to radians when handed to the controller.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Tuning     optim.Constants  `yaml:"tuning"`
	Loop       LoopConfig       `yaml:"loop"`
	Plant      plant.RollParams `yaml:"plant"`
	Sim        SimConfig        `yaml:"sim"`
}

type ControllerConfig struct {
	SetpointDeg    float64           `yaml:"setpoint_deg"`
	StartTime      float64           `yaml:"start_time"`
	ClockPeriod    float64           `yaml:"clock_period"`
	MaxFinRateDeg  float64           `yaml:"max_fin_rate_deg"`
	MaxFinAngleDeg float64           `yaml:"max_fin_angle_deg"`
	Gains          dynamo.GainVector `yaml:"gains"`
}

type LoopConfig struct {
	Iterations       int     `yaml:"iterations"`
	SnapshotEvery    int     `yaml:"snapshot_every"`
	IterationTimeout string  `yaml:"iteration_timeout"`
	FailurePolicy    string  `yaml:"failure_policy"`
	GainLimit        float64 `yaml:"gain_limit"`
	ManeuverLevel    int     `yaml:"maneuver_level"`
}

type SimConfig struct {
	Integrator    string  `yaml:"integrator"`
	Controller    string  `yaml:"controller"`
	Dt            float64 `yaml:"dt"`
	Duration      float64 `yaml:"duration"`
	ValidateState bool    `yaml:"validate_state"`
}

func DefaultConfig() *Config {
	loop := experiment.DefaultLoopConfig()
	sim := plant.DefaultConfig()
	return &Config{
		Controller: ControllerConfig{
			SetpointDeg:    DefaultSetpointDeg,
			StartTime:      control.DefaultStartTime,
			ClockPeriod:    control.DefaultClockPeriod,
			MaxFinRateDeg:  DefaultMaxFinRateDeg,
			MaxFinAngleDeg: DefaultMaxFinAngleDeg,
			Gains:          dynamo.GainVector{Kp: control.DefaultKp, Ki: control.DefaultKi, Kd: control.DefaultKd},
		},
		Tuning: optim.DefaultConstants(),
		Loop: LoopConfig{
			Iterations:       loop.Iterations,
			SnapshotEvery:    loop.SnapshotEvery,
			IterationTimeout: loop.IterationTimeout.String(),
			FailurePolicy:    string(loop.FailurePolicy),
			GainLimit:        loop.GainLimit,
			ManeuverLevel:    loop.ManeuverLevel,
		},
		Plant: plant.DefaultRollParams(),
		Sim: SimConfig{
			Integrator:    DefaultIntegrator,
			Controller:    DefaultController,
			Dt:            sim.Dt,
			Duration:      sim.Duration,
			ValidateState: sim.ValidateState,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Controller.SetpointDeg == 0 {
		errs = append(errs, dynamo.ErrZeroSetpoint)
	}
	if err := c.ControlConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("controller: %w", err))
	}
	if err := c.Tuning.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tuning: %w", err))
	}
	if lc, err := c.LoopConfig(); err != nil {
		errs = append(errs, fmt.Errorf("loop: %w", err))
	} else if err := lc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("loop: %w", err))
	}
	if err := c.Plant.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("plant: %w", err))
	}
	if err := c.SimConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sim: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) ControlConfig() control.Config {
	return control.Config{
		SetpointRoll: deg(c.Controller.SetpointDeg),
		StartTime:    c.Controller.StartTime,
		ClockPeriod:  c.Controller.ClockPeriod,
		MaxFinRate:   deg(c.Controller.MaxFinRateDeg),
		MaxFinAngle:  deg(c.Controller.MaxFinAngleDeg),
		Gains:        c.Controller.Gains,
	}
}

func (c *Config) LoopConfig() (experiment.LoopConfig, error) {
	var timeout time.Duration
	if c.Loop.IterationTimeout != "" {
		d, err := time.ParseDuration(c.Loop.IterationTimeout)
		if err != nil {
			return experiment.LoopConfig{}, fmt.Errorf("%w: iteration_timeout: %v", dynamo.ErrInvalidConfig, err)
		}
		timeout = d
	}
	policy, err := experiment.ParseFailurePolicy(c.Loop.FailurePolicy)
	if err != nil {
		return experiment.LoopConfig{}, err
	}
	return experiment.LoopConfig{
		Iterations:       c.Loop.Iterations,
		SnapshotEvery:    c.Loop.SnapshotEvery,
		IterationTimeout: timeout,
		FailurePolicy:    policy,
		GainLimit:        c.Loop.GainLimit,
		ManeuverLevel:    c.Loop.ManeuverLevel,
	}, nil
}

func (c *Config) SimConfig() plant.Config {
	return plant.Config{
		Dt:            c.Sim.Dt,
		Duration:      c.Sim.Duration,
		ValidateState: c.Sim.ValidateState,
	}
}

func deg(d float64) float64 { return d * math.Pi / 180 }
