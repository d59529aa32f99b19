package control

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rolltune/internal/dynamo"
)

type rateSample struct {
	t, rate float64
}

func noisyStream(seed int64, dt, duration float64) []rateSample {
	rng := rand.New(rand.NewSource(seed))
	n := int(duration / dt)
	out := make([]rateSample, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) * dt
		out = append(out, rateSample{t: t, rate: 3*math.Sin(2*t) + rng.NormFloat64()})
	}
	return out
}

func aggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.StartTime = 0.5
	cfg.Gains = dynamo.GainVector{Kp: 2.0, Ki: 0.5, Kd: 0.3}
	return cfg
}

func TestRollFinBounds(t *testing.T) {
	cfg := aggressiveConfig()
	ctrl := NewRoll(cfg)

	for _, s := range noisyStream(1, 0.001, 6) {
		fin := ctrl.Update(s.t, s.rate)
		if math.Abs(fin) > cfg.MaxFinAngle {
			t.Fatalf("fin %.6f outside ±%.6f at t=%.3f", fin, cfg.MaxFinAngle, s.t)
		}
	}
}

func TestRollSlewRate(t *testing.T) {
	cfg := aggressiveConfig()
	ctrl := NewRoll(cfg)

	prevSample := cfg.StartTime
	lastCtrl := cfg.StartTime
	lastFin := 0.0
	updates := 0

	for _, s := range noisyStream(2, 0.001, 6) {
		fin := ctrl.Update(s.t, s.rate)
		if s.t < cfg.StartTime {
			continue
		}
		tick := math.Floor(prevSample/cfg.ClockPeriod) != math.Floor(s.t/cfg.ClockPeriod)
		prevSample = s.t
		if !tick {
			require.Equal(t, lastFin, fin, "fin must be held between clock ticks (t=%.3f)", s.t)
			continue
		}
		updates++
		limit := cfg.MaxFinRate*(s.t-lastCtrl) + 1e-12
		if math.Abs(fin-lastFin) > limit {
			t.Fatalf("slew %.6f exceeds %.6f at t=%.3f", math.Abs(fin-lastFin), limit, s.t)
		}
		lastCtrl = s.t
		lastFin = fin
	}
	assert.Greater(t, updates, 100)
}

func TestRollInactiveBeforeStart(t *testing.T) {
	cfg := aggressiveConfig()
	cfg.StartTime = 2.0
	ctrl := NewRoll(cfg)

	for _, s := range noisyStream(3, 0.001, 1.999) {
		if fin := ctrl.Update(s.t, s.rate); fin != 0 {
			t.Fatalf("expected zero fin before start, got %f at t=%.3f", fin, s.t)
		}
	}
	assert.Zero(t, ctrl.EstimatedRoll(), "estimator must not run before start")
}

func TestRollZeroGainsHoldFins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetpointRoll = math.Pi / 2
	cfg.StartTime = 0
	cfg.Gains = dynamo.GainVector{}
	ctrl := NewRoll(cfg)

	for i := 1; i <= 5000; i++ {
		fin := ctrl.Update(float64(i)*0.001, 0)
		if fin != 0 {
			t.Fatalf("expected fin 0 with zero gains, got %f", fin)
		}
	}
	assert.Zero(t, ctrl.EstimatedRoll())
	assert.Empty(t, ctrl.Saturations())
}

func TestRollResetReplay(t *testing.T) {
	ctrl := NewRoll(aggressiveConfig())
	stream := noisyStream(4, 0.001, 5)

	first := make([]float64, len(stream))
	for i, s := range stream {
		first[i] = ctrl.Update(s.t, s.rate)
	}
	firstSat := ctrl.Saturations()

	ctrl.Reset()
	assert.Zero(t, ctrl.FinPosition())
	assert.Zero(t, ctrl.Integral())
	assert.Empty(t, ctrl.Saturations())

	for i, s := range stream {
		if got := ctrl.Update(s.t, s.rate); got != first[i] {
			t.Fatalf("replay diverged at sample %d: %f != %f", i, got, first[i])
		}
	}
	assert.Equal(t, firstSat, ctrl.Saturations())
}

func TestRollSampleAndHold(t *testing.T) {
	cfg := aggressiveConfig()
	cfg.StartTime = 0
	cfg.ClockPeriod = 0.1
	ctrl := NewRoll(cfg)

	// 0.02 s physics steps: only every fifth sample crosses a 0.1 s boundary.
	changes := 0
	prev := 0.0
	for i := 1; i <= 50; i++ {
		t0 := float64(i)*0.02 + 0.001
		fin := ctrl.Update(t0, 0.5)
		if fin != prev {
			changes++
		}
		prev = fin
	}
	assert.LessOrEqual(t, changes, 10)
	assert.Greater(t, changes, 0)
}

func TestRollSaturationEvent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartTime = 0
	cfg.MaxFinRate = 100
	cfg.Gains = dynamo.GainVector{Kp: 100}
	ctrl := NewRoll(cfg)

	var hooked []SaturationEvent
	ctrl.OnSaturation(func(ev SaturationEvent) { hooked = append(hooked, ev) })

	ctrl.Update(0.005, 0)
	fin := ctrl.Update(0.015, 0)

	assert.InDelta(t, cfg.MaxFinAngle, fin, 1e-12)
	events := ctrl.Saturations()
	require.Len(t, events, 1)
	assert.InDelta(t, 1.5, events[0].Attempted, 1e-9)
	assert.InDelta(t, 0.015, events[0].Time, 1e-12)
	assert.Equal(t, events, hooked)
}

func TestRollDerivativeOnMeasurement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartTime = 0
	cfg.MaxFinRate = 1000
	cfg.MaxFinAngle = 1000
	cfg.Gains = dynamo.GainVector{Kd: 2}
	ctrl := NewRoll(cfg)

	// Setpoint error is ignored with Kp=Ki=0; the command follows Kd*rate.
	fin := ctrl.Update(0.015, 0.25)
	assert.InDelta(t, 0.5, fin, 1e-12)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero clock", func(c *Config) { c.ClockPeriod = 0 }},
		{"negative fin rate", func(c *Config) { c.MaxFinRate = -1 }},
		{"zero fin angle", func(c *Config) { c.MaxFinAngle = 0 }},
		{"nan gain", func(c *Config) { c.Gains.Ki = math.NaN() }},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, dynamo.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNoneTracksRoll(t *testing.T) {
	n := NewNone(1.0)
	assert.Zero(t, n.Update(0.5, 3))
	assert.Zero(t, n.Update(1.0, 2))
	assert.Zero(t, n.Update(2.0, 2))
	assert.InDelta(t, 2.0, n.EstimatedRoll(), 1e-12)

	n.Reset()
	assert.Zero(t, n.EstimatedRoll())
}

func TestEstimatorTrapezoid(t *testing.T) {
	var e Estimator
	e.Reset(1.0)

	// The first interval ramps up from a zero rate.
	assert.InDelta(t, 0.25, e.Update(1.5, 1.0), 1e-12)
	assert.InDelta(t, 0.75, e.Update(2.0, 1.0), 1e-12)

	// A ramp from 1 to 3 over 0.5s adds the mean rate times dt.
	assert.InDelta(t, 1.75, e.Update(2.5, 3.0), 1e-12)
	assert.Equal(t, 2.5, e.PrevTime())

	e.Reset(4.0)
	assert.Zero(t, e.Roll())
	assert.InDelta(t, 0.1, e.Update(4.1, 2.0), 1e-12, "rate before reset is forgotten")
}
