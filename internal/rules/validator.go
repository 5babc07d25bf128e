package rules

import (
	"fmt"

	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/history"
)

// Defaults for the windowed and historical rules. All of them are
// configuration; see config.Profile.
const (
	DefaultRecentOverlapCap = 2
	DefaultTripleWindow     = 5000
	DefaultPairWindow       = 500
	DefaultMinimalRepeats   = 4 // 0 disables repetition checks at MINIMAL
	longRunLength           = 4
)

// Reason identifies the rule layer that rejected a candidate, for diagnostics
// and per-session rejection tallies. ReasonAccepted means no layer failed.
type Reason int

const (
	ReasonAccepted Reason = iota
	ReasonStructure
	ReasonSubset
	ReasonHistoricalExact
	ReasonNearMiss
	ReasonRecentOverlap
	ReasonExtremeRun
	ReasonLongRun
	ReasonParity
	ReasonParityBounds
	ReasonTripleRepeat
	ReasonPairRepeat
	ReasonDuplicate

	numReasons
)

// String implements fmt.Stringer for logs and diagnostics.
func (r Reason) String() string {
	switch r {
	case ReasonAccepted:
		return "accepted"
	case ReasonStructure:
		return "structure"
	case ReasonSubset:
		return "outside_fixed_subset"
	case ReasonHistoricalExact:
		return "historical_exact"
	case ReasonNearMiss:
		return "historical_near_miss"
	case ReasonRecentOverlap:
		return "recent_overlap"
	case ReasonExtremeRun:
		return "extreme_run"
	case ReasonLongRun:
		return "long_run"
	case ReasonParity:
		return "all_odd_or_even"
	case ReasonParityBounds:
		return "parity_bounds"
	case ReasonTripleRepeat:
		return "triple_repeat"
	case ReasonPairRepeat:
		return "pair_repeat"
	case ReasonDuplicate:
		return "duplicate_of_generated"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// NumReasons is the count of distinct reasons, for tally arrays.
const NumReasons = int(numReasons)

// Books is the windowed session state the validator consults without
// mutating: repetition counts and the duplicate set. The validator never
// updates bookkeeping - the caller does, only after acceptance.
type Books interface {
	// TripleCount returns how many recently accepted combinations contain
	// the 3-member subset key.
	TripleCount(key string) int
	// PairCount returns how many recently accepted combinations contain
	// the 2-member subset key.
	PairCount(key string) int
	// IsDuplicate reports whether the canonical key was already accepted
	// this session.
	IsDuplicate(key string) bool
}

// Config parameterizes a Validator.
type Config struct {
	K int
	N int

	// FixedSubset restricts members to a caller-supplied pool. Nil or empty
	// means unrestricted. A fixed subset also disables the repetition rules.
	FixedSubset map[int]struct{}

	// RecentOverlapCap is the maximum overlap allowed with either of the two
	// most recent historical draws.
	RecentOverlapCap int

	// ParityMinOdd/ParityMaxOdd bound the odd-member count when the caller
	// supplies parity bounds. Both -1 when unset.
	ParityMinOdd int
	ParityMaxOdd int

	// MinimalRepeats is the repetition threshold at MINIMAL; 0 disables the
	// repetition rules entirely at that level.
	MinimalRepeats int
}

// Validator checks one fully-formed combination against the layered rules at
// a given strictness level. It is a pure predicate plus window reads: rule
// layers are evaluated in strict precedence and the first failing layer is
// returned. Ordinary rejections are values, never errors.
//
// Layer order (never reordered - STRICT precedence is part of the contract):
// structural, fixed subset, historical (exact, near-miss, recent overlap),
// patterns (level-gated), repetition windows (level thresholds, disabled
// under a fixed subset), duplicate-of-generated.
//
// Thread-safety: Validator itself is immutable after NewValidator; Books
// implementations own their synchronization.
type Validator struct {
	cfg  Config
	hist *history.Index
}

// NewValidator builds a validator over the historical index.
func NewValidator(cfg Config, hist *history.Index) *Validator {
	if cfg.RecentOverlapCap == 0 {
		cfg.RecentOverlapCap = DefaultRecentOverlapCap
	}
	return &Validator{cfg: cfg, hist: hist}
}

// Check returns the first failing layer for the candidate at the given
// level, or ReasonAccepted.
func (v *Validator) Check(c draw.Combination, lvl Level, books Books) Reason {
	// Layer 1: structural. Never relaxed.
	if err := c.CheckStructure(v.cfg.K, v.cfg.N); err != nil {
		return ReasonStructure
	}

	// Layer 2: fixed-subset constraint.
	restricted := len(v.cfg.FixedSubset) > 0
	if restricted {
		for _, n := range c {
			if _, ok := v.cfg.FixedSubset[n]; !ok {
				return ReasonSubset
			}
		}
	}

	// Layer 3: historical rules. Never relaxed.
	if v.hist != nil {
		if v.hist.IsDrawn(c) {
			return ReasonHistoricalExact
		}
		if v.hist.HasNearMiss(c) {
			return ReasonNearMiss
		}
		if v.hist.MaxRecentOverlap(c) > v.cfg.RecentOverlapCap {
			return ReasonRecentOverlap
		}
	}

	// Layer 4: pattern rules, level-gated.
	if r := v.checkPatterns(c, lvl); r != ReasonAccepted {
		return r
	}

	// Layer 5: repetition-rate rules. Only active without a fixed subset.
	if !restricted && books != nil {
		if r := v.checkRepetition(c, lvl, books); r != ReasonAccepted {
			return r
		}
	}

	// Layer 6: duplicate of a combination generated this session.
	if books != nil && books.IsDuplicate(c.Key()) {
		return ReasonDuplicate
	}

	return ReasonAccepted
}

// CheckFallback runs only the non-negotiable layers: structural, fixed
// subset, historical exact and near-miss, and duplicate. The liveness
// fallback path uses it to bypass the pattern, repetition and recent-overlap
// rules while never producing a past draw or a near-repeat of one.
func (v *Validator) CheckFallback(c draw.Combination, books Books) Reason {
	if err := c.CheckStructure(v.cfg.K, v.cfg.N); err != nil {
		return ReasonStructure
	}
	if len(v.cfg.FixedSubset) > 0 {
		for _, n := range c {
			if _, ok := v.cfg.FixedSubset[n]; !ok {
				return ReasonSubset
			}
		}
	}
	if v.hist != nil {
		if v.hist.IsDrawn(c) {
			return ReasonHistoricalExact
		}
		if v.hist.HasNearMiss(c) {
			return ReasonNearMiss
		}
	}
	if books != nil && books.IsDuplicate(c.Key()) {
		return ReasonDuplicate
	}
	return ReasonAccepted
}

// CheckCommit re-runs only the session-state layers: repetition windows and
// the duplicate set. Candidates are validated against a snapshot of the books
// and committed later; a concurrent acceptance can land in between, so the
// committer re-checks these two layers while holding the session lock.
func (v *Validator) CheckCommit(c draw.Combination, lvl Level, books Books) Reason {
	if len(v.cfg.FixedSubset) == 0 && books != nil {
		if r := v.checkRepetition(c, lvl, books); r != ReasonAccepted {
			return r
		}
	}
	if books != nil && books.IsDuplicate(c.Key()) {
		return ReasonDuplicate
	}
	return ReasonAccepted
}

func (v *Validator) checkPatterns(c draw.Combination, lvl Level) Reason {
	if lvl == LevelStrict || lvl == LevelNormal {
		if v.isExtremeRun(c) {
			return ReasonExtremeRun
		}
	}

	if lvl != LevelMinimal && c.MaxRun() >= longRunLength {
		return ReasonLongRun
	}

	if lvl == LevelStrict || lvl == LevelNormal {
		odd := c.OddCount()
		if odd == 0 || odd == len(c) {
			return ReasonParity
		}
	}

	// Caller-supplied parity bounds are a hard request constraint, active
	// at every level.
	if v.cfg.ParityMinOdd >= 0 || v.cfg.ParityMaxOdd >= 0 {
		odd := c.OddCount()
		if v.cfg.ParityMinOdd >= 0 && odd < v.cfg.ParityMinOdd {
			return ReasonParityBounds
		}
		if v.cfg.ParityMaxOdd >= 0 && odd > v.cfg.ParityMaxOdd {
			return ReasonParityBounds
		}
	}

	return ReasonAccepted
}

// isExtremeRun reports the two extreme full runs: 1..K and (N-K+1)..N.
func (v *Validator) isExtremeRun(c draw.Combination) bool {
	if c.MaxRun() != len(c) {
		return false
	}
	return c.Min() == 1 || c.Min() == v.cfg.N-v.cfg.K+1
}

func (v *Validator) checkRepetition(c draw.Combination, lvl Level, books Books) Reason {
	max := v.maxSubsetRepeats(lvl)
	if max == 0 {
		return ReasonAccepted
	}
	for _, key := range c.TripleKeys() {
		if books.TripleCount(key) >= max {
			return ReasonTripleRepeat
		}
	}
	for _, key := range c.PairKeys() {
		if books.PairCount(key) >= max {
			return ReasonPairRepeat
		}
	}
	return ReasonAccepted
}

// maxSubsetRepeats returns the level's max-repeat threshold: a candidate is
// rejected when any of its triples/pairs already appears this many times in
// its window. 0 disables the rule.
func (v *Validator) maxSubsetRepeats(lvl Level) int {
	switch lvl {
	case LevelStrict, LevelNormal:
		return 2
	case LevelRelaxed:
		return 3
	default:
		return v.cfg.MinimalRepeats
	}
}
