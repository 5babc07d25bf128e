package engine

import (
	"sync"

	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/rules"
)

// Session is the shared state of one generation run: the duplicate set, the
// pair/triple repetition windows and the rejection tallies.
//
// CONCURRENCY: workers validate against the session's rules.Books view and
// later commit their candidate. Between those two points another worker can
// accept a conflicting combination, so Commit re-checks the session-state
// rules while holding the lock. Validation reads tolerate staleness; commits
// never do.
type Session struct {
	mu        sync.Mutex
	validator *rules.Validator
	dups      map[string]struct{}
	triples   *rules.Window
	pairs     *rules.Window

	accepted   int
	fallbacks  int
	gateHits   int
	rejections [rules.NumReasons]int
}

// NewSession creates the session for one run. Window capacities of 0 disable
// the corresponding repetition tracking.
func NewSession(v *rules.Validator, tripleWindow, pairWindow int) *Session {
	return &Session{
		validator: v,
		dups:      make(map[string]struct{}),
		triples:   rules.NewWindow(tripleWindow),
		pairs:     rules.NewWindow(pairWindow),
	}
}

// rawBooks is the unlocked rules.Books view used inside Commit, which already
// holds the session lock.
type rawBooks struct{ s *Session }

func (b rawBooks) TripleCount(key string) int { return b.s.triples.Count(key) }
func (b rawBooks) PairCount(key string) int   { return b.s.pairs.Count(key) }
func (b rawBooks) IsDuplicate(key string) bool {
	_, ok := b.s.dups[key]
	return ok
}

// TripleCount implements rules.Books for validation reads.
func (s *Session) TripleCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triples.Count(key)
}

// PairCount implements rules.Books for validation reads.
func (s *Session) PairCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairs.Count(key)
}

// IsDuplicate implements rules.Books for validation reads.
func (s *Session) IsDuplicate(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dups[key]
	return ok
}

// Commit accepts a validated candidate: it re-checks the repetition and
// duplicate rules against the current books under the lock, then records the
// combination. Returns the first failing layer when a concurrent acceptance
// invalidated the candidate; the caller must then compensate its counter
// reservation.
func (s *Session) Commit(c draw.Combination, lvl rules.Level) rules.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.validator.CheckCommit(c, lvl, rawBooks{s}); r != rules.ReasonAccepted {
		return r
	}
	s.recordLocked(c)
	return rules.ReasonAccepted
}

// CommitBypass accepts a fallback candidate: only the duplicate rule is
// re-checked. The combination still feeds the repetition windows so later
// regular candidates see it.
func (s *Session) CommitBypass(c draw.Combination) rules.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dups[c.Key()]; ok {
		return rules.ReasonDuplicate
	}
	s.recordLocked(c)
	s.fallbacks++
	return rules.ReasonAccepted
}

func (s *Session) recordLocked(c draw.Combination) {
	s.dups[c.Key()] = struct{}{}
	s.triples.Add(c.TripleKeys())
	s.pairs.Add(c.PairKeys())
	s.accepted++
}

// NoteRejection tallies one rule-layer rejection.
func (s *Session) NoteRejection(r rules.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[r]++
}

// NoteGateRejection tallies one region-gate rejection.
func (s *Session) NoteGateRejection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateHits++
}

// Stats summarizes one run for diagnostics and CLI output.
type Stats struct {
	Accepted       int            `json:"accepted"`
	Fallbacks      int            `json:"fallbacks"`
	GateRejections int            `json:"gate_rejections"`
	Rejections     map[string]int `json:"rejections,omitempty"`
}

// Stats returns a snapshot of the session tallies. Reasons with zero
// rejections are omitted.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Accepted:       s.accepted,
		Fallbacks:      s.fallbacks,
		GateRejections: s.gateHits,
	}
	for r, n := range s.rejections {
		if n == 0 {
			continue
		}
		if st.Rejections == nil {
			st.Rejections = make(map[string]int)
		}
		st.Rejections[rules.Reason(r).String()] = n
	}
	return st
}
