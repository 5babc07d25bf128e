package harness

import (
	"context"
	"fmt"

	"github.com/roach88/sortition/internal/config"
	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/engine"
)

// Result is one completed scenario run.
type Result struct {
	Scenario *Scenario
	Profile  config.Profile
	History  []draw.Draw

	// Outcome is nil when the scenario expected (and got) an error.
	Outcome *engine.Outcome
}

// Run executes a scenario: build the engine from the scenario's profile and
// history, run the request, then check the expected error or evaluate every
// assertion. A failed assertion is returned as an *AssertionError.
func Run(s *Scenario) (*Result, error) {
	p, err := s.profile()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	draws, err := s.draws(p)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	co, err := engine.New(p, draws,
		engine.WithTokenGenerator(engine.NewFixedGenerator(s.Name)))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	result := &Result{Scenario: s, Profile: p, History: draws}

	out, err := co.Generate(context.Background(), engine.Request{
		Count:       s.Request.Count,
		FixedSubset: s.Request.Subset,
		Seed:        s.Request.Seed,
	})

	if s.ExpectError != "" {
		if err == nil {
			return nil, fmt.Errorf("scenario %s: expected %s, run succeeded", s.Name, s.ExpectError)
		}
		if !matchesExpectedError(s.ExpectError, err) {
			return nil, fmt.Errorf("scenario %s: expected %s, got: %w", s.Name, s.ExpectError, err)
		}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	result.Outcome = out

	for i := range s.Assertions {
		if err := evaluate(&s.Assertions[i], result); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	return result, nil
}

func matchesExpectedError(name string, err error) bool {
	switch name {
	case ExpectConfigurationInvalid:
		return engine.IsConfigurationError(err)
	case ExpectConstraintExhausted:
		return engine.IsExhaustionError(err)
	default:
		return false
	}
}
