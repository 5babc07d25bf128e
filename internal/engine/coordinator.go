package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/sortition/internal/config"
	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/history"
	"github.com/roach88/sortition/internal/region"
	"github.com/roach88/sortition/internal/rules"
	"github.com/roach88/sortition/internal/tally"
)

// Coordinator owns the immutable inputs of generation runs: the profile, the
// historical index and the region distribution. One coordinator serves any
// number of sequential Generate calls.
type Coordinator struct {
	profile config.Profile
	name    string
	hist    *history.Index
	dist    *region.Distribution
	store   tally.Checkpointer
	tokens  TokenGenerator
	log     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCheckpointer persists the distribution counter through cp, and restores
// it at the start of each run.
func WithCheckpointer(cp tally.Checkpointer) Option {
	return func(co *Coordinator) { co.store = cp }
}

// WithTokenGenerator overrides the run token source. Tests use
// FixedGenerator for deterministic output.
func WithTokenGenerator(tg TokenGenerator) Option {
	return func(co *Coordinator) { co.tokens = tg }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.log = l }
}

// WithProfileName names the profile for checkpoint keying. Counters
// accumulated under one profile name never leak into another.
func WithProfileName(name string) Option {
	return func(co *Coordinator) { co.name = name }
}

// New builds a coordinator over the historical draws.
func New(p config.Profile, draws []draw.Draw, opts ...Option) (*Coordinator, error) {
	dist, err := region.Analyze(draws, p.DomainSize, p.RegionWidth)
	if err != nil {
		return nil, NewConfigurationError("region analysis: %v", err)
	}

	co := &Coordinator{
		profile: p,
		name:    "default",
		hist:    history.Build(draws),
		dist:    dist,
		tokens:  UUIDv7Generator{},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co, nil
}

// Distribution exposes the region analysis for inspection commands.
func (co *Coordinator) Distribution() *region.Distribution {
	return co.dist
}

// Outcome is one completed generation run.
type Outcome struct {
	// Token identifies the run.
	Token string
	// Results holds the accepted combinations in completion order.
	Results []Result
	// Stats summarizes the session's acceptance and rejection tallies.
	Stats Stats
	// Snapshot is the distribution counter state after the run.
	Snapshot tally.Snapshot
}

// Generate produces req.Count distinct combinations using the configured
// number of parallel workers.
//
// Workers pull slots from a shared counter, so a worker stuck in a slow slot
// never strands work: the remaining slots flow to whichever workers are free.
// The first worker error cancels the run.
func (co *Coordinator) Generate(ctx context.Context, req Request) (*Outcome, error) {
	pool, err := req.validate(co.profile)
	if err != nil {
		return nil, err
	}

	token := co.tokens.Generate()
	log := co.log.With("run", token)

	validator := rules.NewValidator(rules.Config{
		K:                co.profile.PickCount,
		N:                co.profile.DomainSize,
		FixedSubset:      subsetSet(req.FixedSubset),
		RecentOverlapCap: co.profile.RecentOverlapCap,
		ParityMinOdd:     co.profile.ParityMinOdd,
		ParityMaxOdd:     co.profile.ParityMaxOdd,
		MinimalRepeats:   co.profile.MinimalRepeats,
	}, co.hist)

	counter := tally.NewCounter(co.dist.NumRegions())
	key, err := draw.ConfigKey(co.profile.DomainSize, co.profile.RegionWidth, co.name)
	if err != nil {
		return nil, fmt.Errorf("config key: %w", err)
	}
	if co.store != nil {
		// A restore failure is degradation, not an error: the run proceeds
		// with a fresh in-memory counter, like the persist paths below.
		found, err := counter.LoadFrom(ctx, co.store, key)
		switch {
		case err != nil:
			log.Warn("checkpoint restore failed, starting fresh counter",
				"key", key,
				"error", err)
		case found:
			log.Info("restored distribution counter",
				"key", key,
				"total", counter.Snapshot().Total)
		}
	}

	session := NewSession(validator, co.profile.TripleWindow, co.profile.PairWindow)

	workers := co.profile.Workers
	if workers > req.Count {
		workers = req.Count
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		remaining atomic.Int64
		wg        sync.WaitGroup
		resCh     = make(chan Result, req.Count)

		errMu    sync.Mutex
		firstErr error
	)
	remaining.Store(int64(req.Count))

	log.Info("generation run starting",
		"count", req.Count,
		"workers", workers,
		"pool_size", len(pool))

	for w := 0; w < workers; w++ {
		g := &generator{
			id:        w,
			rng:       rand.New(rand.NewSource(seed + int64(w))),
			profile:   co.profile,
			validator: validator,
			session:   session,
			counter:   counter,
			dist:      co.dist,
			pool:      pool,
			log:       log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for remaining.Add(-1) >= 0 {
				res, err := g.generateOne(runCtx)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					cancel()
					return
				}
				resCh <- res
			}
		}()
	}

	// Collect concurrently so periodic checkpoints land while workers run.
	results := make([]Result, 0, req.Count)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sinceCheckpoint := 0
		for res := range resCh {
			results = append(results, res)
			sinceCheckpoint++
			if co.store != nil && co.profile.CheckpointEvery > 0 && sinceCheckpoint >= co.profile.CheckpointEvery {
				if err := counter.Persist(runCtx, co.store, key); err != nil {
					log.Warn("checkpoint failed", "error", err)
				}
				sinceCheckpoint = 0
			}
		}
	}()

	wg.Wait()
	close(resCh)
	<-done

	// Final checkpoint survives cancellation: the counts recorded so far are
	// real acceptances.
	if co.store != nil {
		if err := counter.Persist(context.WithoutCancel(ctx), co.store, key); err != nil {
			log.Warn("final checkpoint failed", "error", err)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	out := &Outcome{
		Token:    token,
		Results:  results,
		Stats:    session.Stats(),
		Snapshot: counter.Snapshot(),
	}
	log.Info("generation run complete",
		"count", len(out.Results),
		"fallbacks", out.Stats.Fallbacks,
		"gate_rejections", out.Stats.GateRejections)
	return out, nil
}

func subsetSet(nums []int) map[int]struct{} {
	if len(nums) == 0 {
		return nil
	}
	m := make(map[int]struct{}, len(nums))
	for _, n := range nums {
		m[n] = struct{}{}
	}
	return m
}
