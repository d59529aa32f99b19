package plant

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/experiment"
	"github.com/san-kum/rolltune/internal/metrics"
)

type Config struct {
	Dt            float64 `yaml:"dt"`
	Duration      float64 `yaml:"duration"`
	ValidateState bool    `yaml:"validate_state"`
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.001,
		Duration:      8.0,
		ValidateState: true,
	}
}

func (c Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %f", dynamo.ErrInvalidConfig, c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %f", dynamo.ErrInvalidConfig, c.Duration)
	}
	return nil
}

// Engine flies a RollPlant with a fixed step. It implements
// experiment.Simulator.
type Engine struct {
	plant      *RollPlant
	integrator dynamo.Integrator
	cfg        Config
	metrics    []dynamo.Metric
}

var (
	_ experiment.Simulator     = (*Engine)(nil)
	_ experiment.MetricsSource = (*Engine)(nil)
)

func NewEngine(p *RollPlant, integrator dynamo.Integrator, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := p.Params().Validate(); err != nil {
		return nil, err
	}
	return &Engine{plant: p, integrator: integrator, cfg: cfg}, nil
}

func (e *Engine) AddMetric(m dynamo.Metric) { e.metrics = append(e.metrics, m) }

// Metrics returns the values observed during the last Simulate call.
func (e *Engine) Metrics() map[string]float64 { return metrics.Collect(e.metrics) }

// Simulate runs one flight. Each step asks ctrl for a fin command at the
// current roll rate, records the sample and advances the plant with the pair
// deflected as (fin, -fin).
func (e *Engine) Simulate(ctx context.Context, ctrl experiment.FinController) (*dynamo.FlightTrace, error) {
	for _, m := range e.metrics {
		m.Reset()
	}

	steps := int(math.Round(e.cfg.Duration / e.cfg.Dt))
	trace := dynamo.NewFlightTrace(steps + 1)
	x := e.plant.InitialState()
	u := make(dynamo.Control, controlDim)

	for i := 0; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return trace, ctx.Err()
		default:
		}

		t := float64(i) * e.cfg.Dt
		fin := ctrl.Update(t, x[idxRate])
		u[0], u[1] = fin, -fin

		s := dynamo.Sample{
			Time:     t,
			RollRate: x[idxRate],
			Velocity: x[idxVel],
			Canard1:  u[0],
			Canard2:  u[1],
			Roll:     ctrl.EstimatedRoll(),
		}
		trace.Append(s)
		for _, m := range e.metrics {
			m.Observe(s)
		}

		if i == steps {
			break
		}
		x = e.integrator.Step(e.plant, x, u, t, e.cfg.Dt)
		if e.cfg.ValidateState && !x.IsValid() {
			return trace, dynamo.SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
		}
	}

	return trace, nil
}
