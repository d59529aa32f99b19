package control

// None holds the fins at zero. It still integrates roll so an uncontrolled
// flight can be analyzed like a controlled one.
type None struct {
	start float64
	est   Estimator
}

func NewNone(startTime float64) *None {
	n := &None{start: startTime}
	n.Reset()
	return n
}

func (n *None) Update(t, rollRate float64) float64 {
	if t >= n.start {
		n.est.Update(t, rollRate)
	}
	return 0
}

func (n *None) EstimatedRoll() float64 { return n.est.Roll() }

func (n *None) Reset() { n.est.Reset(n.start) }
