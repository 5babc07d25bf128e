package rules

import "fmt"

// Level is the validation strictness tier. Higher tiers relax the pattern and
// repetition rules; structural, historical and duplicate rules are never
// relaxed at any level.
type Level int

const (
	// LevelStrict applies every rule.
	LevelStrict Level = iota
	// LevelNormal applies every rule (identical pattern gates to STRICT;
	// kept distinct so threshold tuning can diverge without re-plumbing).
	LevelNormal
	// LevelRelaxed drops the extreme-run and parity-balance gates and raises
	// the repetition thresholds.
	LevelRelaxed
	// LevelMinimal keeps only the non-negotiable rules plus, optionally, a
	// loose repetition threshold.
	LevelMinimal
)

// String implements fmt.Stringer for logs and diagnostics.
func (l Level) String() string {
	switch l {
	case LevelStrict:
		return "strict"
	case LevelNormal:
		return "normal"
	case LevelRelaxed:
		return "relaxed"
	case LevelMinimal:
		return "minimal"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Failure-count boundaries for LevelFor. A burst of failures can jump the
// level directly to MINIMAL; resetting the counter always yields STRICT.
const (
	normalAfter  = 3
	relaxedAfter = 8
	minimalAfter = 15
)

// LevelFor maps a consecutive-failure count to a strictness level.
// CRITICAL: this is a pure, memoryless function - the level carries no state
// beyond the counter, which makes it independently testable and lets the
// generator recompute it after every acceptance or rejection.
func LevelFor(consecutiveFailures int) Level {
	switch {
	case consecutiveFailures < normalAfter:
		return LevelStrict
	case consecutiveFailures < relaxedAfter:
		return LevelNormal
	case consecutiveFailures < minimalAfter:
		return LevelRelaxed
	default:
		return LevelMinimal
	}
}

// Controller tracks one worker's consecutive-failure counter and derives the
// active level from it.
//
// Thread-safety: NOT safe for concurrent use. Each worker owns its controller;
// failures on one worker must not relax rules for another.
type Controller struct {
	failures int
}

// Reject records a candidate rejection.
func (c *Controller) Reject() {
	c.failures++
}

// Accept records an acceptance and resets the counter, returning the level
// to STRICT for the next slot.
func (c *Controller) Accept() {
	c.failures = 0
}

// Level returns the strictness level for the current failure count.
func (c *Controller) Level() Level {
	return LevelFor(c.failures)
}

// Failures returns the current consecutive-failure count.
func (c *Controller) Failures() int {
	return c.failures
}
