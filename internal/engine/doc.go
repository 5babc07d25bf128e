// Package engine coordinates constrained combination generation: parallel
// workers perform region-weighted rejection sampling against the layered
// rules, sharing one distribution counter and one session of accepted
// combinations.
//
// The flow for one requested combination:
//
//  1. Sample a candidate: the first number is drawn from the region-feedback
//     weighting, the rest uniformly without replacement.
//  2. Validate against the layered rules at the worker's current strictness
//     level (see rules.LevelFor).
//  3. Pass the region acceptance gate: the candidate's region share, counted
//     as if accepted, must stay within target * rejection factor.
//  4. Commit to the shared session, which re-checks the session-state rules
//     under its lock and records the acceptance.
//
// When the per-combination attempt budget, or a streak of consecutive gate
// rejections, is exhausted, a bounded fallback path bypasses the pattern,
// repetition, recent-overlap and gate rules (the structural, exact-match,
// near-miss and duplicate rules still hold), ending in a deterministic sweep
// so a feasible request always terminates.
package engine
