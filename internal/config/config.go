// Package config loads and validates generation profiles. Profiles are CUE
// documents checked against an embedded schema, so every tunable has a
// typed constraint and a default and an empty profile is a valid profile.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed profile.cue
var profileSchema string

// Profile is a fully resolved generation profile.
type Profile struct {
	DomainSize        int     `json:"domain_size"`
	PickCount         int     `json:"pick_count"`
	RegionWidth       int     `json:"region_width"`
	RejectionFactor   float64 `json:"rejection_factor"`
	MaxAttempts       int     `json:"max_attempts"`
	MaxGateRejections int     `json:"max_gate_rejections"`
	TripleWindow      int     `json:"triple_window"`
	PairWindow        int     `json:"pair_window"`
	MinimalRepeats    int     `json:"minimal_repeats"`
	RecentOverlapCap  int     `json:"recent_overlap_cap"`
	ParityMinOdd      int     `json:"parity_min_odd"`
	ParityMaxOdd      int     `json:"parity_max_odd"`
	Workers           int     `json:"workers"`
	CheckpointEvery   int     `json:"checkpoint_every"`
}

// LoadError describes a profile that failed schema validation.
type LoadError struct {
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("profile %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("profile: %s", e.Message)
}

// Default returns the profile with every field at its schema default.
func Default() Profile {
	p, err := Parse(nil)
	if err != nil {
		// The embedded schema is self-contained and fully defaulted; a
		// failure here is a programming error, not an input error.
		panic(fmt.Sprintf("config: embedded schema invalid: %v", err))
	}
	return p
}

// LoadFile reads a CUE profile from disk and resolves it against the schema.
func LoadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, &LoadError{Path: path, Message: err.Error()}
	}
	p, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
		}
		return Profile{}, err
	}
	return p, nil
}

// Parse resolves a CUE profile document against the embedded schema.
// Fields the document omits take their schema defaults; fields outside the
// schema's constraints fail validation. A nil or empty document yields the
// default profile.
func Parse(data []byte) (Profile, error) {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(profileSchema)
	if err := schemaVal.Err(); err != nil {
		return Profile{}, &LoadError{Message: fmt.Sprintf("compiling schema: %v", err)}
	}
	val := schemaVal.LookupPath(cue.ParsePath("#Profile"))
	if !val.Exists() {
		return Profile{}, &LoadError{Message: "schema missing #Profile definition"}
	}

	if len(data) > 0 {
		doc := ctx.CompileBytes(data)
		if err := doc.Err(); err != nil {
			return Profile{}, &LoadError{Message: fmt.Sprintf("parsing profile: %v", err)}
		}
		val = val.Unify(doc)
	}

	if err := val.Validate(cue.Concrete(true)); err != nil {
		return Profile{}, &LoadError{Message: fmt.Sprintf("validating profile: %v", err)}
	}

	var p Profile
	if err := val.Decode(&p); err != nil {
		return Profile{}, &LoadError{Message: fmt.Sprintf("decoding profile: %v", err)}
	}

	// Cross-field constraints CUE defaults cannot express cleanly.
	if p.PickCount > p.DomainSize {
		return Profile{}, &LoadError{Message: fmt.Sprintf("pick_count %d exceeds domain_size %d", p.PickCount, p.DomainSize)}
	}
	if p.ParityMinOdd >= 0 && p.ParityMaxOdd >= 0 && p.ParityMinOdd > p.ParityMaxOdd {
		return Profile{}, &LoadError{Message: fmt.Sprintf("parity_min_odd %d exceeds parity_max_odd %d", p.ParityMinOdd, p.ParityMaxOdd)}
	}
	return p, nil
}
