package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sortition/internal/config"
	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/rules"
	"github.com/roach88/sortition/internal/tally"
)

func testProfile(n, k, w int) config.Profile {
	return config.Profile{
		DomainSize:        n,
		PickCount:         k,
		RegionWidth:       w,
		RejectionFactor:   1.3,
		MaxAttempts:       200,
		MaxGateRejections: 50,
		TripleWindow:      100,
		PairWindow:        50,
		MinimalRepeats:    4,
		RecentOverlapCap:  2,
		ParityMinOdd:      -1,
		ParityMaxOdd:      -1,
		Workers:           4,
		CheckpointEvery:   50,
	}
}

func testDraws(numbers ...[]int) []draw.Draw {
	draws := make([]draw.Draw, len(numbers))
	for i, nums := range numbers {
		draws[i] = draw.Draw{Seq: i, Numbers: draw.Canonical(nums)}
	}
	return draws
}

// TestRequest_Validate tests configuration and analytic feasibility errors.
func TestRequest_Validate(t *testing.T) {
	p := testProfile(60, 6, 3)

	cases := []struct {
		name   string
		req    Request
		config bool // expect configuration error; otherwise exhaustion
	}{
		{"zero count", Request{Count: 0}, true},
		{"negative count", Request{Count: -3}, true},
		{"subset member out of range", Request{Count: 1, FixedSubset: []int{1, 2, 3, 4, 5, 61}}, true},
		{"subset member repeated", Request{Count: 1, FixedSubset: []int{1, 2, 3, 4, 5, 5}}, true},
		{"subset smaller than pick count", Request{Count: 1, FixedSubset: []int{1, 2, 3}}, true},
		{"subset of exactly pick count, two requested", Request{Count: 2, FixedSubset: []int{1, 2, 3, 4, 5, 6}}, false},
		{"seven-member subset, eight requested", Request{Count: 8, FixedSubset: []int{1, 2, 3, 4, 5, 6, 7}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.req.validate(p)
			require.Error(t, err)
			if tc.config {
				assert.True(t, IsConfigurationError(err), "got %v", err)
			} else {
				assert.True(t, IsExhaustionError(err), "got %v", err)
			}
		})
	}

	// Feasible boundary cases pass.
	_, err := Request{Count: 1, FixedSubset: []int{1, 2, 3, 4, 5, 6}}.validate(p)
	assert.NoError(t, err)
	_, err = Request{Count: 7, FixedSubset: []int{1, 2, 3, 4, 5, 6, 7}}.validate(p)
	assert.NoError(t, err)
}

// TestBinomial tests the saturating binomial.
func TestBinomial(t *testing.T) {
	assert.Equal(t, int64(1), binomial(6, 6))
	assert.Equal(t, int64(7), binomial(7, 6))
	assert.Equal(t, int64(20), binomial(6, 3))
	assert.Equal(t, int64(0), binomial(3, 6))
	assert.Equal(t, availableCap, binomial(300, 150))
}

// TestGenerate_SubsetExhaustsExactly tests a seven-member subset can supply
// exactly its seven combinations, each distinct.
func TestGenerate_SubsetExhaustsExactly(t *testing.T) {
	co, err := New(testProfile(60, 6, 3), nil)
	require.NoError(t, err)

	out, err := co.Generate(context.Background(), Request{
		Count:       7,
		FixedSubset: []int{10, 11, 12, 13, 14, 15, 16},
		Seed:        42,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 7)

	seen := map[string]struct{}{}
	for _, res := range out.Results {
		require.NoError(t, res.Combination.CheckStructure(6, 60))
		for _, n := range res.Combination {
			assert.GreaterOrEqual(t, n, 10)
			assert.LessOrEqual(t, n, 16)
		}
		seen[res.Combination.Key()] = struct{}{}
	}
	assert.Len(t, seen, 7)
	assert.Equal(t, 7, out.Stats.Accepted)
}

// TestGenerate_AdaptiveRelaxation tests a pattern-violating subset of exactly
// pick-count size: the only possible combination is an extreme run, so the
// worker must relax to accept it - without resorting to the fallback path.
func TestGenerate_AdaptiveRelaxation(t *testing.T) {
	co, err := New(testProfile(30, 3, 3), nil)
	require.NoError(t, err)

	out, err := co.Generate(context.Background(), Request{
		Count:       1,
		FixedSubset: []int{1, 2, 3},
		Seed:        1,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)

	res := out.Results[0]
	assert.Equal(t, "1-2-3", res.Combination.Key())
	assert.Equal(t, rules.LevelRelaxed, res.Level)
	assert.False(t, res.Fallback)
	// Strict rejects attempts 1-3 (failures 0-2), normal rejects 4-8
	// (failures 3-7), relaxed accepts on attempt 9.
	assert.Equal(t, 9, res.Attempts)
}

// TestGenerate_HonorsHistory tests the historical rules hold on every path:
// no generated combination repeats a past draw or comes within one member of
// one.
func TestGenerate_HonorsHistory(t *testing.T) {
	history := testDraws(
		[]int{2, 7, 13},
		[]int{1, 8, 14},
		[]int{3, 9, 12},
	)
	co, err := New(testProfile(15, 3, 3), history)
	require.NoError(t, err)

	out, err := co.Generate(context.Background(), Request{Count: 30, Seed: 7})
	require.NoError(t, err)
	require.Len(t, out.Results, 30)

	for _, res := range out.Results {
		for _, d := range history {
			// Near-miss forbids sharing any 2 members of a past 3-member draw.
			assert.LessOrEqual(t, res.Combination.Overlap(d.Numbers), 1,
				"combination %s overlaps draw %s", res.Combination.Key(), d.Numbers.Key())
		}
	}
}

// TestGenerate_DistinctAndStructural tests a larger batch for uniqueness and
// structure under parallel workers.
func TestGenerate_DistinctAndStructural(t *testing.T) {
	co, err := New(testProfile(30, 3, 3), nil)
	require.NoError(t, err)

	out, err := co.Generate(context.Background(), Request{Count: 300, Seed: 11})
	require.NoError(t, err)
	require.Len(t, out.Results, 300)

	seen := map[string]struct{}{}
	for _, res := range out.Results {
		require.NoError(t, res.Combination.CheckStructure(3, 30))
		seen[res.Combination.Key()] = struct{}{}
	}
	assert.Len(t, seen, 300)
	assert.Equal(t, 300, out.Stats.Accepted)
}

// TestGenerate_RegionBalance tests no region takes a grossly outsized share
// of a balanced run.
func TestGenerate_RegionBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping balance sweep in short mode")
	}

	co, err := New(testProfile(30, 3, 3), nil)
	require.NoError(t, err)

	out, err := co.Generate(context.Background(), Request{Count: 1000, Seed: 23})
	require.NoError(t, err)

	// Uniform targets of 1/10 with factor 1.3 allow at most 13% per region,
	// plus slack for the fallback path which bypasses the gate.
	snap := out.Snapshot
	require.Equal(t, 1000, snap.Total)
	for r, n := range snap.Counts {
		share := float64(n) / float64(snap.Total)
		assert.LessOrEqual(t, share, 0.2, "region %d share %.3f", r, share)
	}
}

// TestGenerate_HistoricalShareScenario tests the region gate against a real
// historical skew: region 1-3 holds 5 of 57 draw minima (8.77%), yet roughly
// 27% of uniformly drawn combinations have their minimum there. Over a large
// seeded batch the gate must hold the realized share between 0.7x and 1.3x of
// the target, with a little slack for the fallback path's gate bypass.
func TestGenerate_HistoricalShareScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large batch in short mode")
	}

	var history []draw.Draw
	for i := 0; i < 5; i++ {
		history = append(history, draw.Draw{
			Seq:     i,
			Numbers: draw.Canonical([]int{1 + i%3, 10 + i, 20 + i, 30 + i, 40 + i, 50 + i}),
		})
	}
	for i := 0; i < 52; i++ {
		lo := 4 + i%40
		history = append(history, draw.Draw{
			Seq:     5 + i,
			Numbers: draw.Canonical([]int{lo, lo + 5, lo + 9, lo + 12, lo + 14, lo + 16}),
		})
	}

	co, err := New(testProfile(60, 6, 3), history)
	require.NoError(t, err)
	require.InDelta(t, 5.0/57.0, co.Distribution().TargetRatio(0), 1e-12)

	out, err := co.Generate(context.Background(), Request{Count: 10000, Seed: 17})
	require.NoError(t, err)
	require.Equal(t, 10000, out.Snapshot.Total)

	share := out.Snapshot.Share(0)
	target := 5.0 / 57.0
	assert.GreaterOrEqual(t, share, 0.7*target-0.01, "region 0 starved: share %.4f", share)
	assert.LessOrEqual(t, share, 1.3*target+0.01, "region 0 over cap: share %.4f", share)
}

// TestGenerate_SeededRunsAreReproducible tests one worker plus a fixed seed
// yields an identical sequence.
func TestGenerate_SeededRunsAreReproducible(t *testing.T) {
	p := testProfile(30, 3, 3)
	p.Workers = 1

	run := func() []string {
		co, err := New(p, nil)
		require.NoError(t, err)
		out, err := co.Generate(context.Background(), Request{Count: 25, Seed: 99})
		require.NoError(t, err)
		keys := make([]string, len(out.Results))
		for i, res := range out.Results {
			keys[i] = res.Combination.Key()
		}
		return keys
	}

	assert.Equal(t, run(), run())
}

// TestGenerate_Cancellation tests a cancelled context aborts the run.
func TestGenerate_Cancellation(t *testing.T) {
	co, err := New(testProfile(60, 6, 3), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = co.Generate(ctx, Request{Count: 100, Seed: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestGenerate_RuntimeExhaustion tests a subset whose only combination is a
// past draw: analytically feasible, but every path including the terminal
// sweep must refuse it.
func TestGenerate_RuntimeExhaustion(t *testing.T) {
	history := testDraws([]int{4, 5, 6})
	co, err := New(testProfile(30, 3, 3), history)
	require.NoError(t, err)

	_, err = co.Generate(context.Background(), Request{
		Count:       1,
		FixedSubset: []int{4, 5, 6},
		Seed:        1,
	})
	require.Error(t, err)
	assert.True(t, IsExhaustionError(err), "got %v", err)
}

// memCheckpointer is an in-memory tally.Checkpointer for tests.
type memCheckpointer struct {
	mu      sync.Mutex
	snaps   map[string]tally.Snapshot
	saves   int
	loadErr error
}

func (m *memCheckpointer) SaveCheckpoint(_ context.Context, key string, snap tally.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps == nil {
		m.snaps = map[string]tally.Snapshot{}
	}
	m.snaps[key] = snap
	m.saves++
	return nil
}

func (m *memCheckpointer) LoadCheckpoint(_ context.Context, key string) (tally.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return tally.Snapshot{}, false, m.loadErr
	}
	snap, ok := m.snaps[key]
	return snap, ok, nil
}

// TestGenerate_CheckpointAccumulates tests the counter persists across runs:
// a second run restores the first run's counts and extends them.
func TestGenerate_CheckpointAccumulates(t *testing.T) {
	p := testProfile(30, 3, 3)
	p.CheckpointEvery = 5

	cp := &memCheckpointer{}
	co, err := New(p, nil, WithCheckpointer(cp))
	require.NoError(t, err)

	out1, err := co.Generate(context.Background(), Request{Count: 12, Seed: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, out1.Snapshot.Total)
	// At least two periodic checkpoints plus the final one.
	assert.GreaterOrEqual(t, cp.saves, 3)

	out2, err := co.Generate(context.Background(), Request{Count: 5, Seed: 6})
	require.NoError(t, err)
	assert.Equal(t, 17, out2.Snapshot.Total)
}

// TestGenerate_CheckpointLoadFailureNonFatal tests a failing checkpoint
// restore degrades to a fresh in-memory counter instead of failing the run.
func TestGenerate_CheckpointLoadFailureNonFatal(t *testing.T) {
	cp := &memCheckpointer{loadErr: errors.New("disk read error")}
	co, err := New(testProfile(30, 3, 3), nil, WithCheckpointer(cp))
	require.NoError(t, err)

	out, err := co.Generate(context.Background(), Request{Count: 1, Seed: 4})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, 1, out.Snapshot.Total)
	// The final checkpoint still goes through the working save path.
	assert.GreaterOrEqual(t, cp.saves, 1)
}

// TestGenerate_GateCapFallsBack tests a slot blocked only by the region gate
// falls back once the consecutive gate-rejection cap is reached.
func TestGenerate_GateCapFallsBack(t *testing.T) {
	p := testProfile(30, 3, 3)
	p.Workers = 1
	p.MaxGateRejections = 6

	// Historical minima all land in low regions, so the subset's region has
	// a zero target and only the uniform gate allowance (0.13 of the total).
	history := testDraws(
		[]int{1, 8, 15},
		[]int{4, 9, 18},
		[]int{2, 11, 19},
		[]int{5, 12, 20},
	)
	co, err := New(p, history)
	require.NoError(t, err)

	// Every combination from this subset has its minimum in region 8: after
	// the first acceptance the gate rejects the region until the total grows,
	// which it cannot, so the second slot must fall back.
	out, err := co.Generate(context.Background(), Request{
		Count:       2,
		FixedSubset: []int{25, 26, 27, 28},
		Seed:        9,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	assert.False(t, out.Results[0].Fallback)
	assert.True(t, out.Results[1].Fallback)
	assert.Equal(t, rules.LevelMinimal, out.Results[1].Level)
	assert.Equal(t, 1, out.Stats.Fallbacks)
	assert.Equal(t, 6, out.Stats.GateRejections)
}

// TestGenerate_RunToken tests the outcome carries the run token.
func TestGenerate_RunToken(t *testing.T) {
	co, err := New(testProfile(30, 3, 3), nil,
		WithTokenGenerator(NewFixedGenerator("run-1", "run-2")))
	require.NoError(t, err)

	out, err := co.Generate(context.Background(), Request{Count: 1, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.Token)

	out, err = co.Generate(context.Background(), Request{Count: 1, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, "run-2", out.Token)
}

// TestNextIndexCombo tests lexicographic succession and wraparound.
func TestNextIndexCombo(t *testing.T) {
	idx := []int{0, 1, 2}
	assert.False(t, nextIndexCombo(idx, 4))
	assert.Equal(t, []int{0, 1, 3}, idx)
	assert.False(t, nextIndexCombo(idx, 4))
	assert.Equal(t, []int{0, 2, 3}, idx)
	assert.False(t, nextIndexCombo(idx, 4))
	assert.Equal(t, []int{1, 2, 3}, idx)
	assert.True(t, nextIndexCombo(idx, 4))
	assert.Equal(t, []int{0, 1, 2}, idx)
}

// TestSession_CommitRace tests the commit-time re-check: the same candidate
// committed twice is rejected the second time and tallied.
func TestSession_CommitRace(t *testing.T) {
	v := rules.NewValidator(rules.Config{K: 3, N: 30}, nil)
	s := NewSession(v, 10, 10)

	c := draw.Canonical([]int{4, 9, 17})
	assert.Equal(t, rules.ReasonAccepted, s.Commit(c, rules.LevelStrict))
	assert.Equal(t, rules.ReasonDuplicate, s.Commit(c, rules.LevelStrict))

	st := s.Stats()
	assert.Equal(t, 1, st.Accepted)
}
