package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sortition/internal/config"
	"github.com/roach88/sortition/internal/draw"
)

// Scenario defines one generation test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the run token
	// and the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Profile holds generation profile overrides; omitted fields take their
	// schema defaults.
	Profile map[string]any `yaml:"profile,omitempty"`

	// History lists historical draws, oldest first.
	History [][]int `yaml:"history,omitempty"`

	// Request is the generation request to run.
	Request RequestSpec `yaml:"request"`

	// ExpectError names the expected failure instead of a successful run:
	// "configuration_invalid" or "constraint_exhausted".
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the produced combinations.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RequestSpec is the YAML shape of an engine request.
type RequestSpec struct {
	Count  int   `yaml:"count"`
	Subset []int `yaml:"subset,omitempty"`

	// Seed is required: scenarios are rerun and diffed, so they must be
	// reproducible.
	Seed int64 `yaml:"seed"`
}

// Expected error names.
const (
	ExpectConfigurationInvalid = "configuration_invalid"
	ExpectConstraintExhausted  = "constraint_exhausted"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes. See LoadScenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (catches typos)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Request.Seed == 0 {
		return fmt.Errorf("request.seed is required (scenarios must be reproducible)")
	}
	if s.ExpectError != "" {
		if s.ExpectError != ExpectConfigurationInvalid && s.ExpectError != ExpectConstraintExhausted {
			return fmt.Errorf("unknown expect_error %q", s.ExpectError)
		}
		return nil
	}
	if s.Request.Count <= 0 {
		return fmt.Errorf("request.count must be positive")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// profile resolves the scenario's profile overrides against the schema.
// A JSON object is valid CUE, so the overrides feed straight into the
// config loader and get the same constraint checking as a profile file.
func (s *Scenario) profile() (config.Profile, error) {
	if len(s.Profile) == 0 {
		return config.Default(), nil
	}
	doc, err := json.Marshal(s.Profile)
	if err != nil {
		return config.Profile{}, fmt.Errorf("profile overrides: %w", err)
	}
	return config.Parse(doc)
}

// draws validates the scenario history against the profile shape.
func (s *Scenario) draws(p config.Profile) ([]draw.Draw, error) {
	draws := make([]draw.Draw, 0, len(s.History))
	for i, numbers := range s.History {
		c := draw.Canonical(numbers)
		if err := c.CheckStructure(p.PickCount, p.DomainSize); err != nil {
			return nil, fmt.Errorf("history draw %d: %w", i, err)
		}
		draws = append(draws, draw.Draw{Seq: i, Numbers: c})
	}
	return draws, nil
}
