// Package orchestrator drives a tenant's batch fetch to completion with a
// two-phase retry protocol and hands the merged result to the reducer.
//
// Phase one repeats the whole batch up to MaxRetries times with a fixed
// delay, retaining the attempt with the most successes. Phase two retries
// the remaining failed companies one at a time. Companies still failing
// after both phases stay in the failure list.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/Sternrassler/eld-analysis/pkg/batch"
	"github.com/Sternrassler/eld-analysis/pkg/reduce"
	"github.com/Sternrassler/eld-analysis/pkg/roster"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	retryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eld_retry_attempts_total",
		Help: "Retry attempts by phase",
	}, []string{"phase"})

	retryRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eld_retry_recovered_total",
		Help: "Companies recovered by the individual retry phase",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eld_runs_total",
		Help: "Orchestrator runs by outcome",
	}, []string{"outcome"})
)

// ErrNoUsableResult is returned when the first batch attempt fails before
// producing any data.
var ErrNoUsableResult = errors.New("no usable batch result")

// BatchRunner runs one whole-batch attempt. *batch.Fetcher implements it.
type BatchRunner interface {
	FetchBatch(ctx context.Context, tenant string, entities []analysis.Entity) (*analysis.BatchResult, error)
}

// Reducer reduces a batch in place. *reduce.Pipeline implements it.
type Reducer interface {
	NewStats() *reduce.Stats
	Reduce(batch *analysis.BatchResult, stats *reduce.Stats)
}

// Sink receives every final result. Failures are logged, never returned.
type Sink interface {
	Save(ctx context.Context, runID string, result *analysis.BatchResult) error
}

// Orchestrator runs tenants. Runs for different tenants share no mutable
// state and may execute concurrently.
type Orchestrator struct {
	roster  roster.Roster
	batches BatchRunner
	fetcher batch.EntityFetcher
	reducer Reducer
	sink    Sink
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an orchestrator. fetcher is used directly by the individual
// retry phase.
func New(r roster.Roster, batches BatchRunner, fetcher batch.EntityFetcher, reducer Reducer, opts Options, logger zerolog.Logger) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if r == nil || batches == nil || fetcher == nil || reducer == nil {
		return nil, fmt.Errorf("roster, batch runner, fetcher and reducer are required")
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Orchestrator{
		roster:  r,
		batches: batches,
		fetcher: fetcher,
		reducer: reducer,
		opts:    opts,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
		now:     time.Now,
	}, nil
}

// WithSink registers a sink for final results.
func (o *Orchestrator) WithSink(s Sink) *Orchestrator {
	o.sink = s
	return o
}

// Options returns the retry options in effect.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// run is the per-call state of one tenant run.
type run struct {
	id       string
	tenant   string
	entities []analysis.Entity
	best     *analysis.BatchResult
	attempts int
	stats    *reduce.Stats
	logger   zerolog.Logger
}

// Run fetches, retries and reduces tenant. It fails only when the roster
// does not know the tenant or the first batch attempt yields nothing.
func (o *Orchestrator) Run(ctx context.Context, tenant string) (*analysis.BatchResult, error) {
	start := o.now()

	entities, err := o.roster.Entities(ctx, tenant)
	if err != nil {
		runsTotal.WithLabelValues("roster_error").Inc()
		return nil, fmt.Errorf("load roster for %s: %w", tenant, err)
	}

	r := &run{
		id:       uuid.NewString(),
		tenant:   tenant,
		entities: entities,
		stats:    o.reducer.NewStats(),
	}
	r.logger = o.logger.With().Str("tenant", tenant).Str("run_id", r.id).Logger()

	if err := o.batchPhase(ctx, r); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	o.reducer.Reduce(r.best, r.stats)

	individual := false
	recovered := 0
	if o.opts.RetryIndividually && r.attempts >= o.opts.MaxRetries && r.best.Summary.Failed > 0 && ctx.Err() == nil {
		individual = true
		recovered = o.individualPhase(ctx, r)
		o.reducer.Reduce(r.best, r.stats)
	}

	if o.opts.StableOrder {
		r.best.SortByRoster(r.entities)
	}

	r.best.Summary.RetryMetadata = &analysis.RetryMetadata{
		RunID:               r.id,
		TotalAttempts:       r.attempts,
		MaxRetries:          o.opts.MaxRetries,
		IndividualRetryUsed: individual,
		Recovered:           recovered,
		TotalExecutionTime:  o.now().Sub(start),
	}

	outcome := "complete"
	if r.best.Summary.Failed > 0 {
		outcome = "partial"
	}
	runsTotal.WithLabelValues(outcome).Inc()

	r.logger.Info().
		Int("attempts", r.attempts).
		Bool("individual_retry", individual).
		Int("successful", r.best.Summary.Successful).
		Int("failed", r.best.Summary.Failed).
		Dur("duration", r.best.Summary.RetryMetadata.TotalExecutionTime).
		Msg("Run finished")

	o.save(ctx, r)
	return r.best, nil
}

// batchPhase repeats whole-batch attempts, keeping the best one.
func (o *Orchestrator) batchPhase(ctx context.Context, r *run) error {
	for r.attempts < o.opts.MaxRetries {
		r.attempts++
		retryAttemptsTotal.WithLabelValues("batch").Inc()

		result, err := o.batches.FetchBatch(ctx, r.tenant, r.entities)
		switch {
		case err != nil && r.best == nil:
			r.logger.Error().Err(err).Int("attempt", r.attempts).Msg("First batch attempt failed")
			return fmt.Errorf("%w: tenant %s: %w", ErrNoUsableResult, r.tenant, err)
		case err != nil:
			r.logger.Warn().Err(err).Int("attempt", r.attempts).Msg("Batch attempt failed, keeping previous result")
		case r.best == nil || result.Summary.Successful > r.best.Summary.Successful:
			r.best = result
		}

		r.logger.Info().
			Int("attempt", r.attempts).
			Int("max_retries", o.opts.MaxRetries).
			Int("successful", r.best.Summary.Successful).
			Int("failed", r.best.Summary.Failed).
			Msg("Batch attempt finished")

		if r.best.Summary.Failed == 0 || r.attempts >= o.opts.MaxRetries {
			return nil
		}

		if err := o.opts.Sleep(ctx, o.opts.BatchDelay); err != nil {
			r.logger.Warn().Err(err).Int("attempt", r.attempts).Msg("Batch retries interrupted")
			return nil
		}
	}
	return nil
}

// individualPhase retries each failed company sequentially and merges the
// recoveries into the best result. It returns the number recovered.
func (o *Orchestrator) individualPhase(ctx context.Context, r *run) int {
	succeeded := make(map[string]struct{}, len(r.best.Successes))
	for _, s := range r.best.Successes {
		if key, ok := analysis.CompanyKey(s); ok {
			succeeded[key] = struct{}{}
		}
	}

	r.logger.Info().Int("failed", len(r.best.Failures)).Msg("Starting individual retries")

	successes := append([]*analysis.EntityResult(nil), r.best.Successes...)
	var failures []*analysis.EntityResult
	recovered, tried := 0, 0

	for i, failed := range r.best.Failures {
		if key, ok := analysis.CompanyKey(failed); ok {
			if _, done := succeeded[key]; done {
				continue
			}
		}
		if tried > 0 {
			if err := o.opts.Sleep(ctx, o.opts.IndividualDelay); err != nil {
				failures = append(failures, r.best.Failures[i:]...)
				r.logger.Warn().Err(err).Msg("Individual retries interrupted")
				break
			}
		}

		tried++
		retryAttemptsTotal.WithLabelValues("individual").Inc()
		result := o.fetchOne(ctx, r.tenant, failed.Entity())
		if result.Succeeded() {
			recovered++
			retryRecoveredTotal.Inc()
			successes = append(successes, result)
			r.logger.Info().
				Str("entity_id", failed.CompanyID).
				Str("entity_name", failed.CompanyName).
				Msg("Company recovered")
			continue
		}
		failures = append(failures, result)
		r.logger.Warn().
			Str("entity_id", failed.CompanyID).
			Str("entity_name", failed.CompanyName).
			Str("error", result.Error).
			Msg("Company still failing")
	}

	r.best.Rebuild(successes, failures)
	return recovered
}

// fetchOne calls the remote client directly for a single company.
func (o *Orchestrator) fetchOne(ctx context.Context, tenant string, entity analysis.Entity) (result *analysis.EntityResult) {
	start := o.now()
	defer func() {
		if p := recover(); p != nil {
			result = analysis.NewFailure(tenant, entity, fmt.Errorf("fetch panicked: %v", p), o.now().Sub(start))
		}
	}()

	doc, err := o.fetcher.Fetch(ctx, tenant, entity.ID)
	if err != nil {
		return analysis.NewFailure(tenant, entity, err, o.now().Sub(start))
	}
	if doc == nil {
		doc = &analysis.Document{}
	}
	return analysis.NewSuccess(tenant, entity, doc, o.now().Sub(start))
}

// save hands the result to the sink. Errors are logged only.
func (o *Orchestrator) save(ctx context.Context, r *run) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Save(context.WithoutCancel(ctx), r.id, r.best); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist result")
	}
}
