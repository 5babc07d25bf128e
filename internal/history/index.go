// Package history holds precomputed lookups over the historical draw record.
//
// The index is built once per session and read-only afterwards. It answers
// the three historical questions the validator asks about every candidate:
//
//  1. Is this exact combination a past draw?
//  2. Does it share exactly K-1 members with a past draw (near-miss)?
//  3. How much does it overlap the most recent draws?
//
// Near-miss lookups are O(K): every (K-1)-subset of every historical draw is
// inserted into one set, and a candidate is checked by probing its own K
// drop-one subsets.
package history

import (
	"log/slog"

	"github.com/roach88/sortition/internal/draw"
)

// RecencyDepth is how many of the most recent draws participate in the
// overlap cap check.
const RecencyDepth = 2

// Index provides exact-match, near-miss and recency lookups over a fixed
// set of historical draws.
//
// Thread-safety: Index is immutable after Build and safe for concurrent use.
type Index struct {
	exact    map[string]struct{}
	nearMiss map[string]struct{}
	recent   []draw.Combination // most recent first, at most RecencyDepth
	size     int
}

// Build constructs the index from historical draws ordered oldest first.
// An empty dataset yields a valid index that rejects nothing.
func Build(draws []draw.Draw) *Index {
	idx := &Index{
		exact:    make(map[string]struct{}, len(draws)),
		nearMiss: make(map[string]struct{}, len(draws)*8),
		size:     len(draws),
	}

	for _, d := range draws {
		idx.exact[d.Numbers.Key()] = struct{}{}
		for _, key := range d.Numbers.DropOneKeys() {
			idx.nearMiss[key] = struct{}{}
		}
	}

	for i := len(draws) - 1; i >= 0 && len(idx.recent) < RecencyDepth; i-- {
		idx.recent = append(idx.recent, draws[i].Numbers)
	}

	slog.Debug("historical index built",
		"draws", len(draws),
		"near_miss_keys", len(idx.nearMiss),
		"recency_depth", len(idx.recent),
	)

	return idx
}

// Size returns the number of indexed draws.
func (x *Index) Size() int {
	return x.size
}

// IsDrawn reports whether the canonical combination is an exact historical draw.
func (x *Index) IsDrawn(c draw.Combination) bool {
	_, ok := x.exact[c.Key()]
	return ok
}

// HasNearMiss reports whether the candidate shares at least K-1 members with
// some historical draw. Callers check IsDrawn first, so a true result means
// the candidate shares exactly K-1 members with a past draw.
func (x *Index) HasNearMiss(c draw.Combination) bool {
	if len(x.nearMiss) == 0 {
		return false
	}
	for _, key := range c.DropOneKeys() {
		if _, ok := x.nearMiss[key]; ok {
			return true
		}
	}
	return false
}

// MaxRecentOverlap returns the largest member overlap between the candidate
// and the most recent draws. Zero when no history exists.
func (x *Index) MaxRecentOverlap(c draw.Combination) int {
	best := 0
	for _, r := range x.recent {
		if n := c.Overlap(r); n > best {
			best = n
		}
	}
	return best
}

// Recent returns the most recent draws, newest first.
func (x *Index) Recent() []draw.Combination {
	return x.recent
}
