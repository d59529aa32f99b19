package metrics

import (
	"math"

	"github.com/san-kum/rolltune/internal/dynamo"
)

// saturationTolerance absorbs rounding in the clamp.
const saturationTolerance = 1e-9

// SaturationFraction is the share of samples with the canards at their
// deflection limit.
type SaturationFraction struct {
	name      string
	limit     float64
	saturated int
	samples   int
}

func NewSaturationFraction(limit float64) *SaturationFraction {
	return &SaturationFraction{
		name:  "saturation_fraction",
		limit: limit,
	}
}

func (s *SaturationFraction) Name() string {
	return s.name
}

func (s *SaturationFraction) Observe(sample dynamo.Sample) {
	s.samples++
	if math.Abs(sample.Canard1) >= s.limit-saturationTolerance {
		s.saturated++
	}
}

func (s *SaturationFraction) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.saturated) / float64(s.samples)
}

func (s *SaturationFraction) Reset() {
	s.saturated = 0
	s.samples = 0
}
