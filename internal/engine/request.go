package engine

import (
	"sort"

	"github.com/roach88/sortition/internal/config"
)

// Request asks for a batch of combinations under one profile.
type Request struct {
	// Count is how many distinct combinations to generate.
	Count int

	// FixedSubset optionally restricts every combination's members to this
	// pool. Must hold at least PickCount distinct numbers in [1, DomainSize].
	FixedSubset []int

	// Seed fixes the random source for reproducible runs. 0 means seed from
	// the clock.
	Seed int64
}

// availableCap bounds the analytic feasibility count. Anything above it is
// "plenty"; saturating here keeps the binomial free of overflow.
const availableCap = int64(1) << 40

// validate checks the request against the profile and returns the effective
// sorted candidate pool.
func (r Request) validate(p config.Profile) ([]int, error) {
	if r.Count <= 0 {
		return nil, NewConfigurationError("count must be positive, got %d", r.Count)
	}

	pool := make([]int, 0, p.DomainSize)
	if len(r.FixedSubset) > 0 {
		seen := make(map[int]struct{}, len(r.FixedSubset))
		for _, n := range r.FixedSubset {
			if n < 1 || n > p.DomainSize {
				return nil, NewConfigurationError("fixed subset member %d out of range [1,%d]", n, p.DomainSize)
			}
			if _, dup := seen[n]; dup {
				return nil, NewConfigurationError("fixed subset member %d repeated", n)
			}
			seen[n] = struct{}{}
			pool = append(pool, n)
		}
		if len(pool) < p.PickCount {
			return nil, NewConfigurationError("fixed subset holds %d numbers, need at least %d", len(pool), p.PickCount)
		}
		sort.Ints(pool)
	} else {
		for n := 1; n <= p.DomainSize; n++ {
			pool = append(pool, n)
		}
	}

	// Analytic feasibility: the pool must hold at least Count distinct
	// combinations. This catches impossible requests before any sampling.
	if avail := binomial(len(pool), p.PickCount); avail < int64(r.Count) {
		return nil, NewExhaustionError(r.Count, avail)
	}
	return pool, nil
}

// binomial returns C(n, k), saturating at availableCap.
func binomial(n, k int) int64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := int64(1)
	for i := 1; i <= k; i++ {
		r = r * int64(n-k+i) / int64(i)
		if r >= availableCap {
			return availableCap
		}
	}
	return r
}
