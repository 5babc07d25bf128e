package tally

import (
	"math/rand"

	"github.com/roach88/sortition/internal/region"
)

// DefaultRejectionFactor is the default region acceptance gate multiplier:
// a region may hold at most target_ratio * factor of all acceptances.
const DefaultRejectionFactor = 1.3

// Weights are per-number first-draw weights aligned with a candidate pool.
type Weights struct {
	Pool    []int
	Weights []float64
}

// FirstNumberWeights computes the weight of each pool number for the first
// draw, from the latest counter snapshot and the session's target
// distribution.
//
// With no acceptances yet the weight is near-uniform, pre-damped by the
// region's target bracket so historically frequent regions cannot dominate
// before any feedback exists. Once acceptances accumulate, a monotonic
// piecewise multiplier suppresses over-represented regions and boosts
// under-represented ones. The feedback multiplier compounds with the damped
// base weight.
func FirstNumberWeights(snap Snapshot, dist *region.Distribution, pool []int) Weights {
	w := Weights{
		Pool:    pool,
		Weights: make([]float64, len(pool)),
	}
	base := 1.0 / float64(dist.DomainSize())

	for i, n := range pool {
		r := dist.RegionOf(n)
		target := dist.TargetRatio(r)
		weight := base * coldStartDamp(target)
		if snap.Total > 0 {
			weight *= feedbackMultiplier(snap.Share(r), target)
		}
		w.Weights[i] = weight
	}
	return w
}

// coldStartDamp pre-damps by historical target bracket:
// >8% -> x0.6, 7-8% -> x0.7, 5-7% -> x0.85, <5% -> x1.1.
func coldStartDamp(target float64) float64 {
	switch {
	case target > 0.08:
		return 0.6
	case target > 0.07:
		return 0.7
	case target >= 0.05:
		return 0.85
	default:
		return 1.1
	}
}

// feedbackMultiplier maps the deviation current/target to a suppression or
// boost factor. Monotonic: more over-represented is never less suppressed.
func feedbackMultiplier(current, target float64) float64 {
	if target <= 0 {
		// No historical share at all: treat any acceptance as extreme
		// over-representation.
		if current > 0 {
			return 0.01
		}
		return 1.0
	}

	dev := current / target
	switch {
	case dev > 1.4:
		return 0.01
	case dev > 1.3:
		return 0.05
	case dev > 1.2:
		return 0.15
	case dev > 1.1:
		return 0.40
	case dev > 1.05:
		return 0.70
	case dev < 0.3:
		return 5.0
	case dev < 0.5:
		return 3.0
	case dev < 0.7:
		return 2.0
	case dev < 0.9:
		return 1.5
	default:
		return 1.0
	}
}

// Sample draws one pool index proportionally to the weights. Falls back to a
// uniform pick when every weight is zero (cannot happen with the multiplier
// tables above, which never produce exact zeros, but guards degenerate
// configurations).
func (w Weights) Sample(rng *rand.Rand) int {
	total := 0.0
	for _, v := range w.Weights {
		total += v
	}
	if total <= 0 {
		return rng.Intn(len(w.Pool))
	}

	target := rng.Float64() * total
	acc := 0.0
	for i, v := range w.Weights {
		acc += v
		if target < acc {
			return i
		}
	}
	return len(w.Pool) - 1
}
