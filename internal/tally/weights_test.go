package tally

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/region"
)

func distWithMins(t *testing.T, n, w int, mins ...int) *region.Distribution {
	t.Helper()
	draws := make([]draw.Draw, 0, len(mins))
	for i, m := range mins {
		// A minimal 2-member draw whose minimum lands in the wanted region.
		draws = append(draws, draw.Draw{Seq: i, Numbers: draw.Canonical([]int{m, n})})
	}
	d, err := region.Analyze(draws, n, w)
	require.NoError(t, err)
	return d
}

// TestColdStartDamp tests the target-bracket damping table.
func TestColdStartDamp(t *testing.T) {
	assert.Equal(t, 0.6, coldStartDamp(0.0877))
	assert.Equal(t, 0.7, coldStartDamp(0.075))
	assert.Equal(t, 0.85, coldStartDamp(0.06))
	assert.Equal(t, 0.85, coldStartDamp(0.05))
	assert.Equal(t, 1.1, coldStartDamp(0.02))
}

// TestFeedbackMultiplier tests the piecewise suppression/boost table and its
// monotonicity.
func TestFeedbackMultiplier(t *testing.T) {
	target := 0.1

	assert.Equal(t, 0.01, feedbackMultiplier(0.15, target)) // dev 1.5
	assert.Equal(t, 0.05, feedbackMultiplier(0.135, target))
	assert.Equal(t, 0.15, feedbackMultiplier(0.125, target))
	assert.Equal(t, 0.40, feedbackMultiplier(0.115, target))
	assert.Equal(t, 0.70, feedbackMultiplier(0.107, target))
	assert.Equal(t, 1.0, feedbackMultiplier(0.1, target))
	assert.Equal(t, 1.5, feedbackMultiplier(0.085, target))
	assert.Equal(t, 2.0, feedbackMultiplier(0.06, target))
	assert.Equal(t, 3.0, feedbackMultiplier(0.04, target))
	assert.Equal(t, 5.0, feedbackMultiplier(0.02, target))

	// Monotonic in deviation.
	prev := feedbackMultiplier(0.005, target)
	for dev := 0.1; dev <= 2.0; dev += 0.05 {
		cur := feedbackMultiplier(dev*target, target)
		assert.LessOrEqual(t, cur, prev, "dev=%f", dev)
		prev = cur
	}

	// Zero target: any share is over-representation.
	assert.Equal(t, 0.01, feedbackMultiplier(0.05, 0))
	assert.Equal(t, 1.0, feedbackMultiplier(0, 0))
}

// TestFirstNumberWeights_ColdStart tests historically hot regions start damped.
func TestFirstNumberWeights_ColdStart(t *testing.T) {
	// Region 0 gets 10/10 of the minima: target 1.0 (>8% bracket).
	dist := distWithMins(t, 12, 3, 1, 1, 2, 1, 3, 2, 1, 1, 2, 3)
	pool := []int{1, 4, 7, 10}

	w := FirstNumberWeights(Snapshot{Counts: make([]int, 4)}, dist, pool)

	base := 1.0 / 12.0
	assert.InDelta(t, base*0.6, w.Weights[0], 1e-12) // region 0, target 1.0
	assert.InDelta(t, base*1.1, w.Weights[1], 1e-12) // region 1, target 0
	assert.InDelta(t, base*1.1, w.Weights[3], 1e-12)
}

// TestFirstNumberWeights_Feedback tests suppression of an over-represented
// region and boost of an under-represented one.
func TestFirstNumberWeights_Feedback(t *testing.T) {
	// Two regions at 50% target each.
	dist := distWithMins(t, 6, 3, 1, 4)
	pool := []int{1, 4}

	// Region 0 holds 80 of 100 acceptances: dev 1.6 -> x0.01.
	// Region 1 holds 20: dev 0.4 -> x3.
	snap := Snapshot{Counts: []int{80, 20}, Total: 100}
	w := FirstNumberWeights(snap, dist, pool)

	base := 1.0 / 6.0 * 0.6 // both regions in the >8% bracket
	assert.InDelta(t, base*0.01, w.Weights[0], 1e-12)
	assert.InDelta(t, base*3.0, w.Weights[1], 1e-12)
}

// TestWeights_Sample tests proportional sampling and the uniform fallback.
func TestWeights_Sample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	w := Weights{Pool: []int{10, 20}, Weights: []float64{0.99, 0.01}}
	hits := [2]int{}
	for i := 0; i < 2000; i++ {
		hits[w.Sample(rng)]++
	}
	assert.Greater(t, hits[0], 1800)
	assert.Greater(t, hits[1], 0)

	// Degenerate weights fall back to uniform.
	z := Weights{Pool: []int{1, 2}, Weights: []float64{0, 0}}
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		seen[z.Sample(rng)] = true
	}
	assert.True(t, seen[0] && seen[1])
}
