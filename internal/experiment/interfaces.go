package experiment

import (
	"context"

	"github.com/san-kum/rolltune/internal/dynamo"
)

// FinController is what a flight simulator needs from the roll controller:
// a fin command for each physics step and the roll it has estimated so far.
type FinController interface {
	Update(t, rollRate float64) float64
	EstimatedRoll() float64
}

// Simulator flies one trajectory, calling ctrl once per physics step and
// applying its command to the canards. It must honour ctx.
type Simulator interface {
	Simulate(ctx context.Context, ctrl FinController) (*dynamo.FlightTrace, error)
}

// Snapshot is the periodic report of one tuning iteration. Gains are the
// ones the iteration flew with.
type Snapshot struct {
	Iteration               int                 `json:"iteration"`
	Gains                   dynamo.GainVector   `json:"gains"`
	OvershootPercent        float64             `json:"overshoot_percent"`
	OscillationCount        int                 `json:"oscillation_count"`
	SteadyStateErrorPercent float64             `json:"steady_state_error_percent"`
	Saturations             int                 `json:"saturations"`
	Metrics                 map[string]float64  `json:"metrics,omitempty"`
	Trace                   *dynamo.FlightTrace `json:"-"`
}

type Reporter interface {
	Report(ctx context.Context, s Snapshot) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, s Snapshot) error

func (f ReporterFunc) Report(ctx context.Context, s Snapshot) error { return f(ctx, s) }

// MetricsSource is implemented by simulators that summarize each run.
type MetricsSource interface {
	Metrics() map[string]float64
}
