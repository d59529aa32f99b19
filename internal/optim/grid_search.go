package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
)

// EvalFunc scores one candidate gain vector; lower is better.
type EvalFunc func(ctx context.Context, g dynamo.GainVector) (float64, error)

// GridSearch evaluates every combination of candidate gains. It is used to
// pick a starting point before the iterative tuner takes over.
type GridSearch struct {
	Kp, Ki, Kd []float64
}

func NewGridSearch(kp, ki, kd []float64) *GridSearch {
	return &GridSearch{Kp: kp, Ki: ki, Kd: kd}
}

func (g *GridSearch) Size() int {
	return len(g.Kp) * len(g.Ki) * len(g.Kd)
}

// Search returns the best scoring gains. Candidates whose evaluation fails
// are skipped; if all of them fail the last error is returned.
func (g *GridSearch) Search(ctx context.Context, eval EvalFunc) (dynamo.GainVector, float64, error) {
	if g.Size() == 0 {
		return dynamo.GainVector{}, 0, fmt.Errorf("%w: empty search grid", dynamo.ErrInvalidConfig)
	}

	best := math.Inf(1)
	var bestGains dynamo.GainVector
	var lastErr error
	found := false

	for _, kp := range g.Kp {
		for _, ki := range g.Ki {
			for _, kd := range g.Kd {
				if err := ctx.Err(); err != nil {
					return bestGains, best, err
				}
				cand := dynamo.GainVector{Kp: kp, Ki: ki, Kd: kd}
				score, err := eval(ctx, cand)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return bestGains, best, err
					}
					lastErr = err
					continue
				}
				if math.IsNaN(score) {
					continue
				}
				if !found || score < best {
					best = score
					bestGains = cand
					found = true
				}
			}
		}
	}

	if !found {
		if lastErr == nil {
			lastErr = dynamo.ErrInvalidMetrics
		}
		return dynamo.GainVector{}, 0, fmt.Errorf("grid search: no candidate evaluated: %w", lastErr)
	}
	return bestGains, best, nil
}

// Cost folds the tuner's targets into one number: each metric normalized by
// its reference, settling times scaled like the tuner does. NaN sorts last.
func Cost(m dynamo.ErrorMetrics, c Constants) float64 {
	v := m.ManeuverAverageVelocity
	if !(v > 0) {
		return math.Inf(1)
	}
	t := &GainTuner{c: c}
	cost := math.Max(m.OvershootPercent, 0)/c.MaxOvershootPercent +
		math.Abs(m.SteadyStateErrorPercent)/c.MaxSteadyStateError +
		t.settlingTime(m, settleLevel20)/(c.MaxSettlingTime20/v)*settleWeight20 +
		t.settlingTime(m, settleLevel5)/(c.MaxSettlingTime5/v)*settleWeight5
	if math.IsNaN(cost) {
		return math.Inf(1)
	}
	return cost
}
