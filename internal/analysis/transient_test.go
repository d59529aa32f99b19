package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rolltune/internal/dynamo"
)

// A setpoint of 100 makes roll-100 equal the percentage error exactly.
const testSetpoint = 100.0

func traceFromPercent(pct []float64, rates, vels []float64) *dynamo.FlightTrace {
	trace := dynamo.NewFlightTrace(len(pct))
	for i, p := range pct {
		s := dynamo.Sample{Time: float64(i), Roll: testSetpoint + p}
		if rates != nil {
			s.RollRate = rates[i]
		}
		if vels != nil {
			s.Velocity = vels[i]
		}
		trace.Append(s)
	}
	return trace
}

func TestAnalyzeOscillations(t *testing.T) {
	trace := traceFromPercent([]float64{-50, -10, 10, 30, -10, -30}, nil, nil)

	m, err := Analyzer{}.Analyze(trace, testSetpoint)
	require.NoError(t, err)

	assert.Equal(t, 2, m.OscillationCount)
	assert.Equal(t, 4, m.FinalOscillationIndex)
	assert.Equal(t, 30.0, m.OvershootPercent)
}

func TestAnalyzeDescendingLevels(t *testing.T) {
	pct := []float64{80, 70, 60, 50, 40, 30, 20, 10, 0}
	m, err := Analyzer{}.Analyze(traceFromPercent(pct, nil, nil), testSetpoint)
	require.NoError(t, err)

	at, ok := m.TimeToErrorLevel.At(80)
	require.True(t, ok)
	assert.Equal(t, 0.0, at)

	at, ok = m.TimeToErrorLevel.At(0)
	require.True(t, ok)
	assert.Equal(t, 8.0, at)

	_, ok = m.TimeToErrorLevel.At(75)
	assert.False(t, ok, "levels between descending samples were never crossed upward")
	_, ok = m.TimeToErrorLevel.At(-20)
	assert.False(t, ok)
}

func TestAnalyzeBackFillsSkippedLevels(t *testing.T) {
	pct := []float64{-100, -97, -90}
	m, err := Analyzer{}.Analyze(traceFromPercent(pct, nil, nil), testSetpoint)
	require.NoError(t, err)

	want := map[int]float64{-100: 0, -99: 1, -98: 1, -97: 1, -96: 2, -91: 2, -90: 2}
	for level, seconds := range want {
		at, ok := m.TimeToErrorLevel.At(level)
		if !ok || at != seconds {
			t.Errorf("level %d: got (%v, %v), want (%v, true)", level, at, ok, seconds)
		}
	}
	_, ok := m.TimeToErrorLevel.At(-89)
	assert.False(t, ok)
}

func TestAnalyzeBackFillStopsAtReachedLevel(t *testing.T) {
	// -95 is reached first; the later jump from -99 to -90 must not
	// overwrite it or anything below it.
	pct := []float64{-95, -99, -90}
	m, err := Analyzer{}.Analyze(traceFromPercent(pct, nil, nil), testSetpoint)
	require.NoError(t, err)

	at, _ := m.TimeToErrorLevel.At(-95)
	assert.Equal(t, 0.0, at)
	at, _ = m.TimeToErrorLevel.At(-93)
	assert.Equal(t, 2.0, at)
	_, ok := m.TimeToErrorLevel.At(-97)
	assert.False(t, ok)
}

func TestAnalyzeBackFillFromZeroRoll(t *testing.T) {
	// Starting from zero roll the same path leaves no gap below the
	// highest level reached.
	pct := []float64{-100, -95, -99, -90}
	m, err := Analyzer{}.Analyze(traceFromPercent(pct, nil, nil), testSetpoint)
	require.NoError(t, err)

	for level := -100; level <= -90; level++ {
		_, ok := m.TimeToErrorLevel.At(level)
		assert.True(t, ok, "level %d", level)
	}
	at, _ := m.TimeToErrorLevel.At(-97)
	assert.Equal(t, 1.0, at)
	at, _ = m.TimeToErrorLevel.At(-93)
	assert.Equal(t, 3.0, at)
}

func TestOvershootIsPeakError(t *testing.T) {
	assert.Equal(t, 12.5, overshoot([]float64{-40, 12.5, 3, -2}))
	assert.Equal(t, -7.0, overshoot([]float64{-30, -7}))
}

func TestAnalyzeClampsOutOfRangeLevels(t *testing.T) {
	pct := []float64{-250, 400, math.Inf(1)}
	m, err := Analyzer{}.Analyze(traceFromPercent(pct, nil, nil), testSetpoint)
	require.NoError(t, err)

	assert.True(t, m.TimeToErrorLevel[0].Reached)
	assert.True(t, m.TimeToErrorLevel[dynamo.LevelCount-1].Reached)
	assert.Equal(t, 1.0, m.TimeToErrorLevel[dynamo.LevelCount-1].Seconds)
}

func TestLevelSlotRoundsHalfUp(t *testing.T) {
	tests := []struct {
		pct  float64
		want int
	}{
		{-2.5, 98},
		{2.5, 103},
		{-0.4, 100},
		{99.6, 200},
	}
	for _, tt := range tests {
		got, ok := levelSlot(tt.pct)
		if !ok || got != tt.want {
			t.Errorf("levelSlot(%v) = %d, want %d", tt.pct, got, tt.want)
		}
	}
	_, ok := levelSlot(math.NaN())
	assert.False(t, ok)
}

func TestAnalyzeSteadyState(t *testing.T) {
	pct := []float64{-50, 10, 4, 2, 2}
	rates := []float64{1, 1, 0.5, 0.1, 0.1}

	m, err := Analyzer{}.Analyze(traceFromPercent(pct, rates, nil), testSetpoint)
	require.NoError(t, err)

	assert.Equal(t, 1, m.FinalOscillationIndex)
	assert.InDelta(t, 4.0/3.0, m.SteadyStateErrorPercent, 1e-12)
}

func TestAnalyzeSteadyStateLastSampleCrossing(t *testing.T) {
	pct := []float64{-10, -5, 3}
	m, err := Analyzer{}.Analyze(traceFromPercent(pct, nil, nil), testSetpoint)
	require.NoError(t, err)

	assert.Equal(t, 2, m.FinalOscillationIndex)
	assert.Equal(t, 3.0, m.SteadyStateErrorPercent)
}

func TestAnalyzeManeuverVelocity(t *testing.T) {
	pct := []float64{-100, -50, 0, 20}
	vels := []float64{100, 110, 120, 130}
	trace := traceFromPercent(pct, nil, vels)

	m, err := Analyzer{ManeuverLevel: 0}.Analyze(trace, testSetpoint)
	require.NoError(t, err)
	assert.Equal(t, 110.0, m.ManeuverAverageVelocity)

	m, err = Analyzer{ManeuverLevel: 50}.Analyze(trace, testSetpoint)
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.ManeuverAverageVelocity, "unreached level falls back to the first sample")
}

func TestAnalyzeFiltersStartTime(t *testing.T) {
	pct := []float64{50, -100, -50}
	trace := traceFromPercent(pct, nil, nil)

	m, err := Analyzer{StartTime: 1}.Analyze(trace, testSetpoint)
	require.NoError(t, err)

	assert.Equal(t, -50.0, m.OvershootPercent)
	assert.Equal(t, 0, m.OscillationCount)
	at, ok := m.TimeToErrorLevel.At(-100)
	require.True(t, ok)
	assert.Equal(t, 0.0, at)
	at, _ = m.TimeToErrorLevel.At(-50)
	assert.Equal(t, 1.0, at)
	assert.Equal(t, 1.0, m.Duration)
}

func TestAnalyzeZeroSetpoint(t *testing.T) {
	trace := traceFromPercent([]float64{-100, -50}, nil, nil)

	m, err := Analyzer{}.Analyze(trace, 0)
	if !errors.Is(err, dynamo.ErrZeroSetpoint) {
		t.Fatalf("expected ErrZeroSetpoint, got %v", err)
	}
	if diff := cmp.Diff(dynamo.ErrorMetrics{}, m); diff != "" {
		t.Errorf("metrics should be zero on precondition failure (-want +got):\n%s", diff)
	}
}

func TestAnalyzeInvalidTraces(t *testing.T) {
	_, err := Analyzer{}.Analyze(dynamo.NewFlightTrace(0), testSetpoint)
	assert.ErrorIs(t, err, dynamo.ErrEmptyTrace)

	trace := dynamo.NewFlightTrace(2)
	trace.Append(dynamo.Sample{Time: 1})
	trace.Append(dynamo.Sample{Time: 1})
	_, err = Analyzer{}.Analyze(trace, testSetpoint)
	assert.ErrorIs(t, err, dynamo.ErrTraceOrder)

	_, err = Analyzer{}.Analyze(trace, math.NaN())
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}
