package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"slices"
	"sort"

	"github.com/roach88/sortition/internal/config"
	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/region"
	"github.com/roach88/sortition/internal/rules"
	"github.com/roach88/sortition/internal/tally"
)

// Result is one accepted combination and how it was obtained.
type Result struct {
	Combination draw.Combination
	// Level is the strictness level the combination was validated at.
	// Fallback results report LevelMinimal.
	Level rules.Level
	// Attempts is the number of candidates sampled for this slot, fallback
	// attempts included.
	Attempts int
	// Fallback reports whether the relaxed fallback path produced the result.
	Fallback bool
	// Worker identifies the producing worker.
	Worker int
}

// generator is one worker's sampling state. Each worker owns its RNG and its
// strictness controller; the session, counter and distribution are shared.
type generator struct {
	id        int
	rng       *rand.Rand
	profile   config.Profile
	validator *rules.Validator
	session   *Session
	counter   *tally.Counter
	dist      *region.Distribution
	pool      []int // sorted candidate pool
	ctrl      rules.Controller
	log       *slog.Logger
}

// generateOne produces one accepted combination, or an error when the
// context is cancelled or the constrained space is truly exhausted.
func (g *generator) generateOne(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	gateRejections := 0
	for attempt := 1; attempt <= g.profile.MaxAttempts; attempt++ {
		lvl := g.ctrl.Level()
		c := g.sample()

		if r := g.validator.Check(c, lvl, g.session); r != rules.ReasonAccepted {
			g.ctrl.Reject()
			g.session.NoteRejection(r)
			continue
		}

		// Region acceptance gate, fused with the count so the share the gate
		// sees is never stale. The fallback cap counts consecutive gate
		// rejections: an admitted candidate resets the streak, interleaved
		// validator rejections do not.
		reg := g.dist.RegionOf(c.Min())
		if !g.counter.RecordWithin(reg, g.maxShare(reg)) {
			g.ctrl.Reject()
			g.session.NoteGateRejection()
			gateRejections++
			if gateRejections >= g.profile.MaxGateRejections {
				break
			}
			continue
		}
		gateRejections = 0

		if r := g.session.Commit(c, lvl); r != rules.ReasonAccepted {
			// A concurrent acceptance invalidated the candidate between
			// validation and commit. Give the reservation back.
			g.counter.Unrecord(reg)
			g.ctrl.Reject()
			g.session.NoteRejection(r)
			continue
		}

		g.ctrl.Accept()
		return Result{Combination: c, Level: lvl, Attempts: attempt, Worker: g.id}, nil
	}

	return g.fallback(ctx)
}

// maxShare is the gate threshold for a region: target ratio times the
// rejection factor. A historically unseen region gets a uniform allowance
// instead of a zero threshold, which would lock it out of the regular path
// entirely.
func (g *generator) maxShare(reg int) float64 {
	target := g.dist.TargetRatio(reg)
	if target == 0 {
		return g.profile.RejectionFactor / float64(g.dist.NumRegions())
	}
	return target * g.profile.RejectionFactor
}

// sample draws one candidate: the first number from the region-feedback
// weighting, the remainder uniformly without replacement.
func (g *generator) sample() draw.Combination {
	w := tally.FirstNumberWeights(g.counter.Snapshot(), g.dist, g.pool)
	first := w.Pool[w.Sample(g.rng)]

	picked := make(map[int]struct{}, g.profile.PickCount)
	picked[first] = struct{}{}
	nums := make([]int, 1, g.profile.PickCount)
	nums[0] = first
	for len(nums) < g.profile.PickCount {
		n := g.pool[g.rng.Intn(len(g.pool))]
		if _, ok := picked[n]; ok {
			continue
		}
		picked[n] = struct{}{}
		nums = append(nums, n)
	}
	return draw.Canonical(nums)
}

// uniform draws one candidate uniformly without replacement, ignoring the
// weighting. Used by the fallback path.
func (g *generator) uniform() draw.Combination {
	picked := make(map[int]struct{}, g.profile.PickCount)
	nums := make([]int, 0, g.profile.PickCount)
	for len(nums) < g.profile.PickCount {
		n := g.pool[g.rng.Intn(len(g.pool))]
		if _, ok := picked[n]; ok {
			continue
		}
		picked[n] = struct{}{}
		nums = append(nums, n)
	}
	return draw.Canonical(nums)
}

// fallback bypasses the pattern, repetition, recent-overlap and gate rules
// after the regular attempt budget is spent. The structural, exact-match,
// near-miss and duplicate rules still hold. Ends in a deterministic sweep so
// a feasible slot always fills.
func (g *generator) fallback(ctx context.Context) (Result, error) {
	g.log.Debug("attempt budget exhausted, entering fallback",
		"worker", g.id,
		"failures", g.ctrl.Failures())

	for attempt := 1; attempt <= g.profile.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		c := g.uniform()
		if g.validator.CheckFallback(c, g.session) != rules.ReasonAccepted {
			continue
		}
		if g.session.CommitBypass(c) != rules.ReasonAccepted {
			continue
		}
		g.counter.Record(g.dist.RegionOf(c.Min()))
		g.ctrl.Accept()
		return Result{
			Combination: c,
			Level:       rules.LevelMinimal,
			Attempts:    g.profile.MaxAttempts + attempt,
			Fallback:    true,
			Worker:      g.id,
		}, nil
	}

	return g.sweep(ctx)
}

// sweep enumerates the candidate pool's combinations lexicographically from a
// random start, wrapping once, and accepts the first combination that passes
// the fallback rules. Visiting every combination exactly once makes
// termination unconditional: either some acceptable combination exists or the
// constrained space is exhausted.
func (g *generator) sweep(ctx context.Context) (Result, error) {
	g.log.Warn("fallback budget exhausted, sweeping combination space",
		"worker", g.id,
		"pool_size", len(g.pool))

	k := g.profile.PickCount
	start := g.randomIndexCombo(k)
	idx := slices.Clone(start)

	attempts := 0
	for {
		attempts++
		if attempts%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}

		c := g.comboAt(idx)
		if g.validator.CheckFallback(c, g.session) == rules.ReasonAccepted {
			if g.session.CommitBypass(c) == rules.ReasonAccepted {
				g.counter.Record(g.dist.RegionOf(c.Min()))
				g.ctrl.Accept()
				return Result{
					Combination: c,
					Level:       rules.LevelMinimal,
					Attempts:    2*g.profile.MaxAttempts + attempts,
					Fallback:    true,
					Worker:      g.id,
				}, nil
			}
		}

		nextIndexCombo(idx, len(g.pool))
		if slices.Equal(idx, start) {
			break
		}
	}

	return Result{}, &GenerationError{
		Code:    ErrCodeExhausted,
		Message: "swept the entire constrained space without an acceptable combination",
	}
}

// randomIndexCombo picks k distinct pool indices, ascending.
func (g *generator) randomIndexCombo(k int) []int {
	idx := g.rng.Perm(len(g.pool))[:k]
	sort.Ints(idx)
	return idx
}

// comboAt maps ascending pool indices to the combination they select. The
// pool is sorted, so the result is already canonical.
func (g *generator) comboAt(idx []int) draw.Combination {
	nums := make(draw.Combination, len(idx))
	for i, j := range idx {
		nums[i] = g.pool[j]
	}
	return nums
}

// nextIndexCombo advances idx to the next k-subset of [0,n) in lexicographic
// order, wrapping to the first subset after the last. Returns true on wrap.
func nextIndexCombo(idx []int, n int) bool {
	k := len(idx)
	j := k - 1
	for j >= 0 && idx[j] == n-k+j {
		j--
	}
	if j < 0 {
		for i := range idx {
			idx[i] = i
		}
		return true
	}
	idx[j]++
	for i := j + 1; i < k; i++ {
		idx[i] = idx[i-1] + 1
	}
	return false
}
