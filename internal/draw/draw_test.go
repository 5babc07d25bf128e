package draw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCanonical_SortsWithoutMutating tests canonicalization leaves input intact.
func TestCanonical_SortsWithoutMutating(t *testing.T) {
	in := []int{41, 4, 58, 17, 35, 23}
	c := Canonical(in)

	assert.Equal(t, Combination{4, 17, 23, 35, 41, 58}, c)
	assert.Equal(t, []int{41, 4, 58, 17, 35, 23}, in, "input must not be mutated")
}

// TestKey_StableAcrossOrderings tests two orderings of the same members
// produce the same key.
func TestKey_StableAcrossOrderings(t *testing.T) {
	a := Canonical([]int{6, 2, 9})
	b := Canonical([]int{9, 6, 2})

	assert.Equal(t, "2-6-9", a.Key())
	assert.Equal(t, a.Key(), b.Key())
}

// TestParseKey_RoundTrip tests Key/ParseKey are inverse.
func TestParseKey_RoundTrip(t *testing.T) {
	c := Canonical([]int{4, 17, 23, 35, 41, 58})

	parsed, err := ParseKey(c.Key())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

// TestParseKey_RejectsNonCanonical tests malformed keys fail.
func TestParseKey_RejectsNonCanonical(t *testing.T) {
	_, err := ParseKey("9-2-6")
	assert.Error(t, err)

	_, err = ParseKey("")
	assert.Error(t, err)

	_, err = ParseKey("1-two-3")
	assert.Error(t, err)
}

// TestCheckStructure tests the structural rule.
func TestCheckStructure(t *testing.T) {
	tests := []struct {
		name    string
		c       Combination
		k, n    int
		wantErr bool
	}{
		{"valid", Combination{1, 5, 12, 30, 44, 60}, 6, 60, false},
		{"too short", Combination{1, 5, 12}, 6, 60, true},
		{"out of range high", Combination{1, 5, 12, 30, 44, 61}, 6, 60, true},
		{"out of range low", Combination{0, 5, 12, 30, 44, 60}, 6, 60, true},
		{"duplicate", Combination{1, 5, 5, 30, 44, 60}, 6, 60, true},
		{"unsorted", Combination{5, 1, 12, 30, 44, 60}, 6, 60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.CheckStructure(tt.k, tt.n)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestOverlap tests shared-member counting.
func TestOverlap(t *testing.T) {
	a := Combination{1, 5, 12, 30, 44, 60}
	b := Combination{5, 12, 30, 44, 59, 60}

	assert.Equal(t, 5, a.Overlap(b))
	assert.Equal(t, 6, a.Overlap(a))
	assert.Equal(t, 0, a.Overlap(Combination{2, 6, 13}))
}

// TestMaxRun tests consecutive-run detection.
func TestMaxRun(t *testing.T) {
	assert.Equal(t, 6, Combination{1, 2, 3, 4, 5, 6}.MaxRun())
	assert.Equal(t, 4, Combination{3, 10, 11, 12, 13, 40}.MaxRun())
	assert.Equal(t, 1, Combination{2, 4, 6, 8}.MaxRun())
	assert.Equal(t, 0, Combination{}.MaxRun())
}

// TestOddCount tests parity counting.
func TestOddCount(t *testing.T) {
	assert.Equal(t, 3, Combination{1, 2, 3, 4, 5, 6}.OddCount())
	assert.Equal(t, 0, Combination{2, 4, 6}.OddCount())
	assert.Equal(t, 3, Combination{1, 3, 5}.OddCount())
}

// TestSubsetKeys tests pair/triple/drop-one key enumeration.
func TestSubsetKeys(t *testing.T) {
	c := Combination{2, 6, 9, 14}

	pairs := c.PairKeys()
	assert.Len(t, pairs, 6)
	assert.Contains(t, pairs, "2-6")
	assert.Contains(t, pairs, "9-14")

	triples := c.TripleKeys()
	assert.Len(t, triples, 4)
	assert.Contains(t, triples, "2-6-9")
	assert.Contains(t, triples, "6-9-14")

	drops := c.DropOneKeys()
	assert.Len(t, drops, 4)
	assert.Contains(t, drops, "6-9-14") // dropped 2
	assert.Contains(t, drops, "2-6-9")  // dropped 14
}

// TestConfigKey_Deterministic tests checkpoint keys are stable and sensitive
// to every configuration field.
func TestConfigKey_Deterministic(t *testing.T) {
	k1, err := ConfigKey(60, 3, "default")
	require.NoError(t, err)
	k2, err := ConfigKey(60, 3, "default")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := ConfigKey(60, 10, "default")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := ConfigKey(60, 3, "aggressive")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}

// TestMarshalCanonical_Ordering tests object keys are sorted and floats rejected.
func TestMarshalCanonical_Ordering(t *testing.T) {
	b, err := MarshalCanonical(map[string]any{
		"zeta":  1,
		"alpha": "x",
		"mid":   []int{3, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mid":[3,1],"zeta":1}`, string(b))

	_, err = MarshalCanonical(map[string]any{"bad": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}
