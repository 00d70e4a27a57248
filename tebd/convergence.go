package tebd

import "math"

// rollingDiffMean tracks an exponentially weighted mean of the absolute
// differences between consecutive samples, with a smoothing factor that
// geometrically slows down as samples accumulate. Used as the
// convergence statistic of the energy history: it decays toward zero
// only once the energy genuinely stops moving.
type rollingDiffMean struct {
	n    int
	last float64
	mean float64
}

// Sample feeds the next value.
func (r *rollingDiffMean) Sample(x float64) {
	r.n++
	if r.n == 1 {
		r.last = x
		r.mean = math.Inf(1)
		return
	}
	diff := math.Abs(x - r.last)
	r.last = x
	if r.n == 2 {
		r.mean = diff
		return
	}
	alpha := 2.0 / (1.0 + math.Sqrt(float64(r.n)))
	r.mean = alpha*diff + (1-alpha)*r.mean
}

// Value returns the current statistic, +Inf until two samples arrived.
func (r *rollingDiffMean) Value() float64 {
	if r.n < 2 {
		return math.Inf(1)
	}
	return r.mean
}
