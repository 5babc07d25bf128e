// Package tally holds the shared, lock-guarded distribution counter: accepted
// combinations per region, the weighting it drives, and the region acceptance
// gate.
//
// CONCURRENCY: the counter's mutex is the only cross-worker blocking point in
// the engine. It is held only for snapshot reads and for the atomic
// record-on-accept - never across sampling, validation or I/O. Persistence
// copies the snapshot under the lock and performs file I/O outside it, so
// durable writes never block concurrent mutation.
package tally

import (
	"context"
	"fmt"
	"sync"
)

// Snapshot is a consistent read of all region counts and the grand total.
//
// INVARIANT: Total always equals the sum of Counts.
type Snapshot struct {
	Counts []int
	Total  int
}

// Share returns the region's share of the total, or 0 with no acceptances.
func (s Snapshot) Share(region int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Counts[region]) / float64(s.Total)
}

// Checkpointer persists counter snapshots to durable storage, keyed by the
// (N, W, profile) configuration hash. Implemented by store.Store.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, key string, snap Snapshot) error
	LoadCheckpoint(ctx context.Context, key string) (Snapshot, bool, error)
}

// Counter is the shared per-region acceptance counter.
//
// Thread-safety: all methods are safe for concurrent use from any worker.
type Counter struct {
	mu     sync.Mutex
	counts []int
	total  int
}

// NewCounter creates a counter for the given number of regions.
func NewCounter(numRegions int) *Counter {
	return &Counter{counts: make([]int, numRegions)}
}

// Snapshot returns a consistent copy of all region counts and the total.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Counter) snapshotLocked() Snapshot {
	counts := make([]int, len(c.counts))
	copy(counts, c.counts)
	return Snapshot{Counts: counts, Total: c.total}
}

// Record atomically increments a region's count and the grand total.
// Used by the fallback path, which bypasses the region gate.
func (c *Counter) Record(region int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[region]++
	c.total++
}

// RecordWithin is the region acceptance gate fused with the record: it
// checks the region's count as if this candidate were accepted and records it
// only when that count stays within one combination of maxShare of the total.
// The one-combination grace keeps small totals workable - the very first
// acceptance always passes - while the region's share can never exceed
// maxShare by more than that single combination. The check and the increment
// happen under one lock acquisition, so the gate always sees the latest
// counts even when a stale snapshot informed the weighting.
//
// Returns false without recording when the region is over its allowance.
func (c *Counter) RecordWithin(region int, maxShare float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if float64(c.counts[region]) > maxShare*float64(c.total+1) {
		return false
	}
	c.counts[region]++
	c.total++
	return true
}

// Unrecord compensates a RecordWithin reservation for a candidate that was
// subsequently rejected by the session commit (it lost the duplicate race to
// a concurrent worker). Keeps the sum invariant intact.
func (c *Counter) Unrecord(region int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[region] == 0 {
		return
	}
	c.counts[region]--
	c.total--
}

// Restore replaces the counter state with a snapshot, typically loaded from
// a checkpoint. Fails when the snapshot's region count does not match this
// counter's configuration or its totals are inconsistent.
func (c *Counter) Restore(snap Snapshot) error {
	if len(snap.Counts) != len(c.counts) {
		return fmt.Errorf("checkpoint has %d regions, counter has %d", len(snap.Counts), len(c.counts))
	}
	sum := 0
	for _, n := range snap.Counts {
		if n < 0 {
			return fmt.Errorf("checkpoint has negative region count %d", n)
		}
		sum += n
	}
	if sum != snap.Total {
		return fmt.Errorf("checkpoint total %d does not match sum of counts %d", snap.Total, sum)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.counts, snap.Counts)
	c.total = snap.Total
	return nil
}

// Persist writes the current state through the checkpointer. The snapshot is
// copied under the lock; the write happens outside it.
func (c *Counter) Persist(ctx context.Context, cp Checkpointer, key string) error {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err := cp.SaveCheckpoint(ctx, key, snap); err != nil {
		return fmt.Errorf("persist distribution counter: %w", err)
	}
	return nil
}

// LoadFrom restores state from the checkpointer if a checkpoint exists for
// the key. Returns whether one was found.
func (c *Counter) LoadFrom(ctx context.Context, cp Checkpointer, key string) (bool, error) {
	snap, ok, err := cp.LoadCheckpoint(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load distribution counter: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := c.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}
