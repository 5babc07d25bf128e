package draw

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Combination is a set of K distinct numbers in [1,N], canonicalized ascending.
//
// INVARIANT: once produced by Canonical() or validated by CheckStructure(),
// the slice is sorted ascending with no duplicates. All engine components
// assume canonical form; the post-sort minimum determines the region.
type Combination []int

// Canonical returns a sorted copy of the numbers. The input is not mutated.
func Canonical(numbers []int) Combination {
	c := make(Combination, len(numbers))
	copy(c, numbers)
	sort.Ints(c)
	return c
}

// Key returns the canonical string key for duplicate detection and window
// bookkeeping, e.g. "4-17-23-35-41-58".
//
// CRITICAL: Key assumes canonical (ascending) form. Two combinations with the
// same members always produce the same key.
func (c Combination) Key() string {
	return joinKey(c)
}

// Min returns the smallest member. Panics on an empty combination.
func (c Combination) Min() int {
	return c[0]
}

// Contains reports whether n is a member. Binary search over canonical form.
func (c Combination) Contains(n int) bool {
	i := sort.SearchInts(c, n)
	return i < len(c) && c[i] == n
}

// Overlap returns the number of members shared with other.
// Both combinations must be canonical.
func (c Combination) Overlap(other Combination) int {
	i, j, n := 0, 0, 0
	for i < len(c) && j < len(other) {
		switch {
		case c[i] == other[j]:
			n++
			i++
			j++
		case c[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return n
}

// CheckStructure validates the structural rule: exactly k distinct members,
// all in [1,n], ascending. Returns a descriptive error for diagnostics.
func (c Combination) CheckStructure(k, n int) error {
	if len(c) != k {
		return fmt.Errorf("combination has %d members, want %d", len(c), k)
	}
	for i, v := range c {
		if v < 1 || v > n {
			return fmt.Errorf("member %d out of range [1,%d]", v, n)
		}
		if i > 0 && c[i-1] >= v {
			return fmt.Errorf("members not strictly ascending at index %d", i)
		}
	}
	return nil
}

// MaxRun returns the length of the longest run of consecutive integers.
// Assumes canonical form.
func (c Combination) MaxRun() int {
	if len(c) == 0 {
		return 0
	}
	run, maxRun := 1, 1
	for i := 1; i < len(c); i++ {
		if c[i] == c[i-1]+1 {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
		}
	}
	return maxRun
}

// OddCount returns the number of odd members.
func (c Combination) OddCount() int {
	n := 0
	for _, v := range c {
		if v%2 == 1 {
			n++
		}
	}
	return n
}

// PairKeys returns the canonical key of every 2-member subset.
func (c Combination) PairKeys() []string {
	keys := make([]string, 0, len(c)*(len(c)-1)/2)
	for i := 0; i < len(c); i++ {
		for j := i + 1; j < len(c); j++ {
			keys = append(keys, joinKey([]int{c[i], c[j]}))
		}
	}
	return keys
}

// TripleKeys returns the canonical key of every 3-member subset.
func (c Combination) TripleKeys() []string {
	var keys []string
	for i := 0; i < len(c); i++ {
		for j := i + 1; j < len(c); j++ {
			for k := j + 1; k < len(c); k++ {
				keys = append(keys, joinKey([]int{c[i], c[j], c[k]}))
			}
		}
	}
	return keys
}

// DropOneKeys returns the canonical key of every (K-1)-member subset,
// i.e. the combination with one member removed. Used for near-miss lookups.
func (c Combination) DropOneKeys() []string {
	keys := make([]string, 0, len(c))
	sub := make([]int, 0, len(c)-1)
	for drop := range c {
		sub = sub[:0]
		for i, v := range c {
			if i != drop {
				sub = append(sub, v)
			}
		}
		keys = append(keys, joinKey(sub))
	}
	return keys
}

// Draw is an immutable historical record: the ordered numbers of one past
// drawing plus its sequence position in the dataset (0 = oldest).
type Draw struct {
	Seq     int
	Numbers Combination
}

// ParseKey parses a canonical key back into a Combination.
// Inverse of Combination.Key for keys produced by this package.
func ParseKey(key string) (Combination, error) {
	if key == "" {
		return nil, fmt.Errorf("empty combination key")
	}
	parts := strings.Split(key, "-")
	c := make(Combination, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("combination key %q: %w", key, err)
		}
		c = append(c, v)
	}
	if !sort.IntsAreSorted(c) {
		return nil, fmt.Errorf("combination key %q not canonical", key)
	}
	return c, nil
}

func joinKey(nums []int) string {
	var b strings.Builder
	for i, v := range nums {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
