package dynamo

import "fmt"

const (
	// LevelCount is the number of whole-percent error levels from -100 to +100.
	LevelCount = 201
	levelBias  = 100
)

// Level is one slot of the time-to-error-level table.
type Level struct {
	Seconds float64
	Reached bool
}

// LevelTable maps percentage error levels -100..100 to the first time
// (seconds since controller start) the trace passed through them.
type LevelTable [LevelCount]Level

// LevelIndex converts a whole percentage to its table slot, clamped to range.
func LevelIndex(percent int) int {
	idx := percent + levelBias
	if idx < 0 {
		return 0
	}
	if idx >= LevelCount {
		return LevelCount - 1
	}
	return idx
}

// At returns the time recorded for a percentage error level.
func (t *LevelTable) At(percent int) (float64, bool) {
	l := t[LevelIndex(percent)]
	return l.Seconds, l.Reached
}

// ErrorMetrics summarizes the transient response of one run.
type ErrorMetrics struct {
	OvershootPercent        float64
	OscillationCount        int
	FinalOscillationIndex   int
	SteadyStateErrorPercent float64
	TimeToErrorLevel        LevelTable
	ManeuverAverageVelocity float64
	// Duration is the time spanned by the analyzed trace.
	Duration float64
}

func (m ErrorMetrics) String() string {
	return fmt.Sprintf("overshoot=%.3f%% oscillations=%d sse=%.3f%% v=%.2fm/s",
		m.OvershootPercent, m.OscillationCount, m.SteadyStateErrorPercent, m.ManeuverAverageVelocity)
}
