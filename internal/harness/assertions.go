package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/sortition/internal/draw"
)

// Assertion validates the combinations a scenario produced.
type Assertion struct {
	// Type specifies the assertion type:
	// - "count": exactly Count combinations were produced
	// - "distinct": no combination repeats
	// - "members_within": every member lies in [Lo, Hi]
	// - "max_history_overlap": no combination shares more than Overlap
	//   members with any historical draw
	// - "region_share_max": no region holds more than Share of acceptances
	// - "contains": some combination has exactly these Numbers
	Type string `yaml:"type"`

	// Count is the expected combination count (used by count).
	Count int `yaml:"count,omitempty"`

	// Lo and Hi bound members (used by members_within).
	Lo int `yaml:"lo,omitempty"`
	Hi int `yaml:"hi,omitempty"`

	// Overlap is the maximum shared members (used by max_history_overlap).
	Overlap int `yaml:"overlap,omitempty"`

	// Share is the maximum per-region share (used by region_share_max).
	Share float64 `yaml:"share,omitempty"`

	// Numbers is the expected combination (used by contains).
	Numbers []int `yaml:"numbers,omitempty"`
}

// Assertion type constants.
const (
	AssertCount             = "count"
	AssertDistinct          = "distinct"
	AssertMembersWithin     = "members_within"
	AssertMaxHistoryOverlap = "max_history_overlap"
	AssertRegionShareMax    = "region_share_max"
	AssertContains          = "contains"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCount:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive", index)
		}
	case AssertDistinct:
	case AssertMembersWithin:
		if a.Lo <= 0 || a.Hi < a.Lo {
			return fmt.Errorf("assertions[%d]: need 0 < lo <= hi for members_within", index)
		}
	case AssertMaxHistoryOverlap:
		if a.Overlap < 0 {
			return fmt.Errorf("assertions[%d]: overlap must be non-negative", index)
		}
	case AssertRegionShareMax:
		if a.Share <= 0 || a.Share > 1 {
			return fmt.Errorf("assertions[%d]: share must be in (0,1] for region_share_max", index)
		}
	case AssertContains:
		if len(a.Numbers) == 0 {
			return fmt.Errorf("assertions[%d]: numbers list is required for contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// evaluate checks one assertion against a completed run.
func evaluate(a *Assertion, res *Result) error {
	switch a.Type {
	case AssertCount:
		if got := len(res.Outcome.Results); got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d combinations", a.Count),
				Actual:   fmt.Sprintf("%d combinations", got),
			}
		}
	case AssertDistinct:
		seen := make(map[string]struct{}, len(res.Outcome.Results))
		for _, r := range res.Outcome.Results {
			key := r.Combination.Key()
			if _, dup := seen[key]; dup {
				return &AssertionError{
					Type:     a.Type,
					Expected: "every combination distinct",
					Actual:   fmt.Sprintf("combination %s repeated", key),
				}
			}
			seen[key] = struct{}{}
		}
	case AssertMembersWithin:
		for _, r := range res.Outcome.Results {
			for _, n := range r.Combination {
				if n < a.Lo || n > a.Hi {
					return &AssertionError{
						Type:     a.Type,
						Expected: fmt.Sprintf("members in [%d,%d]", a.Lo, a.Hi),
						Actual:   fmt.Sprintf("combination %s has member %d", r.Combination.Key(), n),
					}
				}
			}
		}
	case AssertMaxHistoryOverlap:
		for _, r := range res.Outcome.Results {
			for _, d := range res.History {
				if got := r.Combination.Overlap(d.Numbers); got > a.Overlap {
					return &AssertionError{
						Type:     a.Type,
						Expected: fmt.Sprintf("at most %d members shared with any historical draw", a.Overlap),
						Actual:   fmt.Sprintf("combination %s shares %d with draw %s", r.Combination.Key(), got, d.Numbers.Key()),
					}
				}
			}
		}
	case AssertRegionShareMax:
		snap := res.Outcome.Snapshot
		for region, n := range snap.Counts {
			if snap.Total == 0 {
				continue
			}
			if share := float64(n) / float64(snap.Total); share > a.Share {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("every region share at most %.4f", a.Share),
					Actual:   fmt.Sprintf("region %d share %.4f", region, share),
				}
			}
		}
	case AssertContains:
		want := draw.Canonical(a.Numbers).Key()
		for _, r := range res.Outcome.Results {
			if r.Combination.Key() == want {
				return nil
			}
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("some combination equal to %s", want),
			Actual:   fmt.Sprintf("%d combinations, none matching", len(res.Outcome.Results)),
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
