package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/rolltune/internal/dynamo"
)

type PeakRollRate struct {
	peak float64
}

func NewPeakRollRate() *PeakRollRate { return &PeakRollRate{} }

func (p *PeakRollRate) Name() string { return "peak_roll_rate" }

func (p *PeakRollRate) Observe(s dynamo.Sample) {
	p.peak = math.Max(p.peak, math.Abs(s.RollRate))
}

func (p *PeakRollRate) Value() float64 { return p.peak }
func (p *PeakRollRate) Reset()         { p.peak = 0 }

// RollRateStdDev measures how much the roll rate wanders after the
// controller starts. Samples before start are ignored.
type RollRateStdDev struct {
	start float64
	rates []float64
}

func NewRollRateStdDev(start float64) *RollRateStdDev {
	return &RollRateStdDev{start: start}
}

func (r *RollRateStdDev) Name() string { return "roll_rate_stddev" }

func (r *RollRateStdDev) Observe(s dynamo.Sample) {
	if s.Time < r.start {
		return
	}
	r.rates = append(r.rates, s.RollRate)
}

func (r *RollRateStdDev) Value() float64 {
	if len(r.rates) < 2 {
		return 0
	}
	_, std := stat.MeanStdDev(r.rates, nil)
	return std
}

func (r *RollRateStdDev) Reset() { r.rates = r.rates[:0] }
