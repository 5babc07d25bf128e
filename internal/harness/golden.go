package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sortition/internal/draw"
)

// RunWithGolden executes a scenario and compares its output against a golden
// file at testdata/golden/{scenario.Name}.golden. Canonical JSON keeps the
// comparison byte-stable.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Only fully deterministic scenarios belong here: a fixed seed and either one
// worker or a request whose outcome is forced (e.g. a pool of exactly
// pick-count numbers).
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	combos := make([]any, len(result.Outcome.Results))
	levels := make([]any, len(result.Outcome.Results))
	fallbacks := 0
	for i, r := range result.Outcome.Results {
		combos[i] = []int(r.Combination)
		levels[i] = r.Level.String()
		if r.Fallback {
			fallbacks++
		}
	}

	snapshot := map[string]any{
		"scenario_name": scenario.Name,
		"token":         result.Outcome.Token,
		"combinations":  combos,
		"levels":        levels,
		"fallbacks":     fallbacks,
	}
	data, err := draw.MarshalCanonical(snapshot)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
