package control

// Estimator integrates roll rate into a roll angle with the trapezoidal rule.
type Estimator struct {
	roll     float64
	prevRate float64
	prevTime float64
}

// Reset zeroes the estimate and anchors the next interval at t0.
func (e *Estimator) Reset(t0 float64) {
	e.roll = 0
	e.prevRate = 0
	e.prevTime = t0
}

// Update folds in a rate sample taken at t and returns the new roll angle.
func (e *Estimator) Update(t, rate float64) float64 {
	dt := t - e.prevTime
	e.roll += dt * (e.prevRate + rate) / 2
	e.prevRate = rate
	e.prevTime = t
	return e.roll
}

func (e *Estimator) Roll() float64     { return e.roll }
func (e *Estimator) PrevTime() float64 { return e.prevTime }
