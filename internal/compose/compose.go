// Package compose implements the Composer (C9): running multiple C8
// extraction strategies under a Sequential, Parallel, or Best policy,
// as describes. Parallel mode's bounded fan-out follows
// stage-by-stage worker shape in
// engine/internal/pipeline/pipeline.go, expressed with
// golang.org/x/sync/errgroup (the same structured-concurrency pattern
// the rest of the retrieved pack uses for bounded fan-out) instead of
// raw sync.WaitGroup, since every goroutine here shares
// one cancellable context rather than feeding a persistent queue.
package compose

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"riptide/internal/riptideerr"
	"riptide/models"
)

// Strategy is the subset of extract.Strategy the composer depends on,
// declared locally so this package does not import internal/extract
// (extractors depend on compose's callers, not the other way around).
type Strategy interface {
	Name() string
	Extract(ctx context.Context, env models.FetchEnvelope, opts models.CrawlOptions) (models.ExtractionResult, error)
}

// Policy selects how candidate strategies are composed.
type Policy int

const (
	Sequential Policy = iota
	Parallel
	Best
)

// Candidate pairs a strategy with its tie-break priority (higher wins).
type Candidate struct {
	Strategy Strategy
	Priority int
}

// Options configures one Compose call.
type Options struct {
	Policy Policy
	AcceptThreshold float64
	Concurrency int // bounds Parallel mode fan-out; 0 means len(candidates)
}

// DefaultOptions returns Sequential composition with a 0.6 acceptance
// threshold, matching example configuration.
func DefaultOptions() Options {
	return Options{Policy: Sequential, AcceptThreshold: 0.6}
}

// Compose runs candidates against env/opts per policy and returns the
// winning ExtractionResult with RunnersUp populated for observability.
func Compose(ctx context.Context, candidates []Candidate, env models.FetchEnvelope, opts models.CrawlOptions, cfg Options) (models.ExtractionResult, error) {
	if len(candidates) == 0 {
		return models.ExtractionResult{}, riptideerr.New(riptideerr.CodeStrategy, "compose: no candidates configured")
	}
	switch cfg.Policy {
	case Parallel:
		return composeParallel(ctx, candidates, env, opts, cfg)
	case Best:
		return composeBest(ctx, candidates, env, opts)
	default:
		return composeSequential(ctx, candidates, env, opts, cfg)
	}
}

// composeSequential runs candidates in configured order, stopping at the
// first whose confidence clears AcceptThreshold; otherwise it returns
// the last attempted result (success or not).
func composeSequential(ctx context.Context, candidates []Candidate, env models.FetchEnvelope, opts models.CrawlOptions, cfg Options) (models.ExtractionResult, error) {
	var last models.ExtractionResult
	var lastErr error
	var runnersUp []models.RunnerUp

	for _, c := range candidates {
		res, err := c.Strategy.Extract(ctx, env, opts)
		if err != nil {
			lastErr = err
			continue
		}
		last, lastErr = res, nil
		if res.Success && res.Confidence >= cfg.AcceptThreshold {
			res.RunnersUp = runnersUp
			return res, nil
		}
		runnersUp = append(runnersUp, models.RunnerUp{StrategyName: res.StrategyName, Confidence: res.Confidence})
	}

	if last.StrategyName == "" {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "compose: all sequential strategies failed", lastErr)
	}
	last.RunnersUp = trimSelf(runnersUp, last.StrategyName)
	return last, nil
}

// composeParallel runs every candidate concurrently via errgroup, bounded
// by cfg.Concurrency (or len(candidates) if unset), returning the first
// result to clear AcceptThreshold and cancelling the rest. If none clear
// the threshold, the highest-confidence successful result wins; if all
// fail, their errors are aggregated.
func composeParallel(ctx context.Context, candidates []Candidate, env models.FetchEnvelope, opts models.CrawlOptions, cfg Options) (models.ExtractionResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := cfg.Concurrency
	if limit <= 0 {
		limit = len(candidates)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(limit)

	type outcome struct {
		res models.ExtractionResult
		err error
	}
	results := make([]outcome, len(candidates))

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			res, err := c.Strategy.Extract(gctx, env, opts)
			results[i] = outcome{res: res, err: err}
			if err == nil && res.Success && res.Confidence >= cfg.AcceptThreshold {
				cancel() // first acceptable wins; stop the rest
			}
			return nil
		})
	}
	_ = g.Wait()

	var best *models.ExtractionResult
	var bestErr error
	var runnersUp []models.RunnerUp
	for _, o := range results {
		if o.err != nil {
			bestErr = o.err
			continue
		}
		if !o.res.Success {
			continue
		}
		if o.res.Confidence >= cfg.AcceptThreshold {
			r := o.res
			return r, nil
		}
		runnersUp = append(runnersUp, models.RunnerUp{StrategyName: o.res.StrategyName, Confidence: o.res.Confidence})
		if best == nil || o.res.Confidence > best.Confidence {
			r := o.res
			best = &r
		}
	}
	if best == nil {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "compose: all parallel strategies failed", bestErr)
	}
	best.RunnersUp = trimSelf(runnersUp, best.StrategyName)
	return *best, nil
}

// composeBest runs every candidate to completion and returns the
// highest-confidence successful result, tie-broken by (priority desc,
// strategy_name asc) per determinism invariant.
func composeBest(ctx context.Context, candidates []Candidate, env models.FetchEnvelope, opts models.CrawlOptions) (models.ExtractionResult, error) {
	type scored struct {
		res models.ExtractionResult
		priority int
		err error
	}
	scoredResults := make([]scored, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			res, err := c.Strategy.Extract(gctx, env, opts)
			scoredResults[i] = scored{res: res, priority: c.Priority, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var successful []scored
	var lastErr error
	for _, s := range scoredResults {
		if s.err != nil {
			lastErr = s.err
			continue
		}
		if !s.res.Success {
			continue
		}
		successful = append(successful, s)
	}
	if len(successful) == 0 {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "compose: all strategies failed", lastErr)
	}

	sort.SliceStable(successful, func(i, j int) bool {
		if successful[i].res.Confidence != successful[j].res.Confidence {
			return successful[i].res.Confidence > successful[j].res.Confidence
		}
		if successful[i].priority != successful[j].priority {
			return successful[i].priority > successful[j].priority
		}
		return successful[i].res.StrategyName < successful[j].res.StrategyName
	})

	winner := successful[0].res
	var runnersUp []models.RunnerUp
	for _, s := range successful[1:] {
		runnersUp = append(runnersUp, models.RunnerUp{StrategyName: s.res.StrategyName, Confidence: s.res.Confidence})
	}
	winner.RunnersUp = runnersUp
	return winner, nil
}

func trimSelf(runnersUp []models.RunnerUp, self string) []models.RunnerUp {
	out := runnersUp[:0]
	for _, r := range runnersUp {
		if r.StrategyName != self {
			out = append(out, r)
		}
	}
	return out
}
