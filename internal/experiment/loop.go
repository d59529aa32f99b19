package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/rolltune/internal/analysis"
	"github.com/san-kum/rolltune/internal/control"
	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/monitoring"
	"github.com/san-kum/rolltune/internal/optim"
)

// FailurePolicy decides what a failed iteration does to the loop.
type FailurePolicy string

const (
	// SkipIteration keeps the current gains and moves on.
	SkipIteration FailurePolicy = "skip"
	// AbortLoop stops the loop with the iteration's error.
	AbortLoop FailurePolicy = "abort"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case SkipIteration, AbortLoop:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown failure policy %q", dynamo.ErrInvalidConfig, s)
}

const (
	DefaultIterations       = 50
	DefaultSnapshotEvery    = 10
	DefaultIterationTimeout = 30 * time.Second
	DefaultGainLimit        = 1e3
)

type LoopConfig struct {
	Iterations    int
	SnapshotEvery int
	// IterationTimeout bounds each simulator call. Zero disables it.
	IterationTimeout time.Duration
	FailurePolicy    FailurePolicy
	// GainLimit is the largest gain magnitude accepted before the loop
	// declares divergence. Zero only rejects non-finite gains.
	GainLimit     float64
	ManeuverLevel int
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Iterations:       DefaultIterations,
		SnapshotEvery:    DefaultSnapshotEvery,
		IterationTimeout: DefaultIterationTimeout,
		FailurePolicy:    SkipIteration,
		GainLimit:        DefaultGainLimit,
	}
}

func (c LoopConfig) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", dynamo.ErrInvalidConfig, c.Iterations)
	}
	if c.SnapshotEvery <= 0 {
		return fmt.Errorf("%w: snapshot interval must be positive, got %d", dynamo.ErrInvalidConfig, c.SnapshotEvery)
	}
	if c.IterationTimeout < 0 {
		return fmt.Errorf("%w: negative iteration timeout", dynamo.ErrInvalidConfig)
	}
	if _, err := ParseFailurePolicy(string(c.FailurePolicy)); err != nil {
		return err
	}
	if c.GainLimit < 0 || math.IsNaN(c.GainLimit) {
		return fmt.Errorf("%w: gain limit must be non-negative, got %g", dynamo.ErrInvalidConfig, c.GainLimit)
	}
	return nil
}

// Result summarizes a tuning run.
type Result struct {
	Gains dynamo.GainVector
	// History holds the gains each iteration flew with.
	History     []dynamo.GainVector
	Snapshots   []Snapshot
	Skipped     []int
	Saturations int
	Completed   int
}

// Loop repeatedly flies the controller, scores the flight and updates the
// gains. Iterations run strictly one after another; the gain vector passed
// to Run is the only state carried between them.
type Loop struct {
	cfg      LoopConfig
	ctrlCfg  control.Config
	ctrl     *control.Roll
	sim      Simulator
	analyzer analysis.Analyzer
	tuner    *optim.GainTuner
	reporter Reporter
}

// NewLoop checks every precondition that would otherwise fail on the first
// iteration. reporter may be nil.
func NewLoop(cfg LoopConfig, ctrlCfg control.Config, sim Simulator, tuner *optim.GainTuner, reporter Reporter) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctrlCfg.SetpointRoll == 0 {
		return nil, dynamo.ErrZeroSetpoint
	}
	if err := ctrlCfg.Validate(); err != nil {
		return nil, err
	}
	if sim == nil || tuner == nil {
		return nil, fmt.Errorf("%w: simulator and tuner are required", dynamo.ErrInvalidConfig)
	}
	return &Loop{
		cfg:      cfg,
		ctrlCfg:  ctrlCfg,
		ctrl:     control.NewRoll(ctrlCfg),
		sim:      sim,
		analyzer: analysis.Analyzer{StartTime: ctrlCfg.StartTime, ManeuverLevel: cfg.ManeuverLevel},
		tuner:    tuner,
		reporter: reporter,
	}, nil
}

// Controller exposes the controller the loop drives, for hooks and tests.
func (l *Loop) Controller() *control.Roll { return l.ctrl }

// Run tunes starting from gains and returns the final gains with a summary.
// The result is valid up to the last completed iteration even when an error
// is returned.
func (l *Loop) Run(ctx context.Context, gains dynamo.GainVector) (Result, error) {
	res := Result{Gains: gains}

	if !gains.IsFinite() {
		return res, fmt.Errorf("%w: initial gains %v", dynamo.ErrInvalidConfig, gains)
	}

	for i := 0; i < l.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.History = append(res.History, res.Gains)
		next, snap, err := l.iterate(ctx, i, res.Gains)
		res.Saturations += snap.Saturations

		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if errors.Is(err, dynamo.ErrDivergence) || l.cfg.FailurePolicy == AbortLoop {
				return res, err
			}
			monitoring.Logf("iteration %d skipped: %v", i, err)
			res.Skipped = append(res.Skipped, i)
			continue
		}

		monitoring.Logf("iteration %d: %v -> %v (%v)", i, res.Gains, next, snap.summary())
		res.Gains = next
		res.Completed++

		if i%l.cfg.SnapshotEvery == 0 {
			res.Snapshots = append(res.Snapshots, snap)
			if l.reporter != nil {
				if err := l.reporter.Report(ctx, snap); err != nil {
					return res, &dynamo.IterationError{Iteration: i, Stage: "report", Wrapped: err}
				}
			}
		}
	}

	return res, nil
}

// iterate flies one trajectory with gains and returns the updated gains.
// The controller is reset before returning on every path.
func (l *Loop) iterate(ctx context.Context, i int, gains dynamo.GainVector) (dynamo.GainVector, Snapshot, error) {
	cfg := l.ctrlCfg
	cfg.Gains = gains
	l.ctrl.Configure(cfg)
	defer l.ctrl.Reset()

	snap := Snapshot{Iteration: i, Gains: gains}

	trace, err := l.simulate(ctx)
	snap.Saturations = l.reportSaturations(i)
	if err != nil {
		return gains, snap, &dynamo.IterationError{Iteration: i, Stage: "simulate", Wrapped: err}
	}
	snap.Trace = trace
	if src, ok := l.sim.(MetricsSource); ok {
		snap.Metrics = src.Metrics()
	}

	m, err := l.analyzer.Analyze(trace, cfg.SetpointRoll)
	if err != nil {
		return gains, snap, &dynamo.IterationError{Iteration: i, Stage: "analyze", Wrapped: err}
	}
	snap.OvershootPercent = m.OvershootPercent
	snap.OscillationCount = m.OscillationCount
	snap.SteadyStateErrorPercent = m.SteadyStateErrorPercent

	next, err := l.tuner.Tune(m, gains)
	if err != nil {
		return gains, snap, &dynamo.IterationError{Iteration: i, Stage: "tune", Wrapped: err}
	}
	if diverged(next, l.cfg.GainLimit) {
		return gains, snap, &dynamo.IterationError{
			Iteration: i,
			Stage:     "tune",
			Wrapped:   fmt.Errorf("%w: %v", dynamo.ErrDivergence, next),
		}
	}

	return next, snap, nil
}

func (l *Loop) simulate(ctx context.Context) (*dynamo.FlightTrace, error) {
	if l.cfg.IterationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.IterationTimeout)
		defer cancel()
	}
	return l.sim.Simulate(ctx, l.ctrl)
}

func (l *Loop) reportSaturations(i int) int {
	events := l.ctrl.Saturations()
	if len(events) == 0 {
		return 0
	}
	first := events[0]
	monitoring.Logf("warning: iteration %d: %d fin saturations, first at t=%.3f (attempted %.4f rad)",
		i, len(events), first.Time, first.Attempted)
	return len(events)
}

func diverged(g dynamo.GainVector, limit float64) bool {
	if !g.IsFinite() {
		return true
	}
	if limit == 0 {
		return false
	}
	return math.Abs(g.Kp) > limit || math.Abs(g.Ki) > limit || math.Abs(g.Kd) > limit
}

func (s Snapshot) summary() string {
	return fmt.Sprintf("overshoot=%.3f%% oscillations=%d sse=%.3f%%",
		s.OvershootPercent, s.OscillationCount, s.SteadyStateErrorPercent)
}
