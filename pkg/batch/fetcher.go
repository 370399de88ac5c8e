package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	batchEntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eld_batch_entities_total",
		Help: "Companies fetched by batch outcome",
	}, []string{"outcome"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eld_batch_duration_seconds",
		Help:    "Wall time of a full batch fetch",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of in-flight fetches.
	// 0 means one goroutine per company.
	MaxConcurrency int
	// ProgressEvery logs progress at Info level every N completed companies
	ProgressEvery int
}

// DefaultConfig returns the default batch configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 16,
		ProgressEvery:  25,
	}
}

// EntityFetcher fetches a single company's analysis document.
// *client.Client implements it.
type EntityFetcher interface {
	Fetch(ctx context.Context, tenant, entityID string) (*analysis.Document, error)
}

// FetcherFunc adapts a function to EntityFetcher.
type FetcherFunc func(ctx context.Context, tenant, entityID string) (*analysis.Document, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, tenant, entityID string) (*analysis.Document, error) {
	return f(ctx, tenant, entityID)
}

// Progress is reported once per settled company.
type Progress struct {
	Tenant    string
	Entity    analysis.Entity
	Succeeded bool
	Completed int
	Total     int
	Elapsed   time.Duration
}

// Fetcher runs one fetch per company and collects the results.
type Fetcher struct {
	fetcher    EntityFetcher
	config     Config
	logger     zerolog.Logger
	onProgress func(Progress)
}

// NewFetcher creates a new batch fetcher
func NewFetcher(fetcher EntityFetcher, config Config, logger zerolog.Logger) *Fetcher {
	if config.MaxConcurrency < 0 {
		config.MaxConcurrency = 0
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 25
	}

	return &Fetcher{
		fetcher: fetcher,
		config:  config,
		logger:  logger.With().Str("component", "batch-fetcher").Logger(),
	}
}

// OnProgress registers a callback invoked after every settled company.
// Callbacks are advisory: a panicking callback is recovered and ignored.
func (f *Fetcher) OnProgress(fn func(Progress)) {
	f.onProgress = fn
}

// FetchBatch fetches every entity of tenant and waits for all of them.
// The only error is a context that is already done before the batch starts;
// individual failures are reported as failure results.
func (f *Fetcher) FetchBatch(ctx context.Context, tenant string, entities []analysis.Entity) (*analysis.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch %s not started: %w", tenant, err)
	}

	start := time.Now()
	f.logger.Info().
		Str("tenant", tenant).
		Int("entities", len(entities)).
		Int("max_concurrency", f.config.MaxConcurrency).
		Msg("Starting batch fetch")

	var (
		mu      sync.Mutex
		results = make([]*analysis.EntityResult, 0, len(entities))
	)

	var g errgroup.Group
	if f.config.MaxConcurrency > 0 {
		g.SetLimit(f.config.MaxConcurrency)
	}

	for _, entity := range entities {
		g.Go(func() error {
			r := f.fetchOne(ctx, tenant, entity)

			mu.Lock()
			results = append(results, r)
			completed := len(results)
			f.report(Progress{
				Tenant:    tenant,
				Entity:    entity,
				Succeeded: r.Succeeded(),
				Completed: completed,
				Total:     len(entities),
				Elapsed:   time.Since(start),
			})
			mu.Unlock()
			return nil
		})
	}
	// fetchOne never returns an error to the group.
	_ = g.Wait()

	elapsed := time.Since(start)
	batchDuration.Observe(elapsed.Seconds())

	result := analysis.NewBatchResult(tenant, results, elapsed)

	f.logger.Info().
		Str("tenant", tenant).
		Int("successful", result.Summary.Successful).
		Int("failed", result.Summary.Failed).
		Float64("success_rate", result.Summary.SuccessRate).
		Dur("duration", elapsed).
		Msg("Batch fetch complete")

	return result, nil
}

// fetchOne turns one remote call into a tagged result. Panics inside the
// fetcher become failures so they cannot take down the batch.
func (f *Fetcher) fetchOne(ctx context.Context, tenant string, entity analysis.Entity) (r *analysis.EntityResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r = analysis.NewFailure(tenant, entity, fmt.Errorf("fetch panicked: %v", p), time.Since(start))
		}
		batchEntitiesTotal.WithLabelValues(string(r.Status)).Inc()
	}()

	doc, err := f.fetcher.Fetch(ctx, tenant, entity.ID)
	if err != nil {
		f.logger.Warn().
			Err(err).
			Str("tenant", tenant).
			Str("entity_id", entity.ID).
			Str("entity_name", entity.Name).
			Msg("Company fetch failed")
		return analysis.NewFailure(tenant, entity, err, time.Since(start))
	}
	if doc == nil {
		doc = &analysis.Document{}
	}
	return analysis.NewSuccess(tenant, entity, doc, time.Since(start))
}

// report emits progress to the log and the registered callback.
func (f *Fetcher) report(p Progress) {
	f.logger.Debug().
		Str("tenant", p.Tenant).
		Str("entity_id", p.Entity.ID).
		Bool("succeeded", p.Succeeded).
		Int("completed", p.Completed).
		Int("total", p.Total).
		Dur("elapsed", p.Elapsed).
		Msg("Company settled")

	if p.Completed%f.config.ProgressEvery == 0 {
		f.logger.Info().
			Str("tenant", p.Tenant).
			Int("fetched", p.Completed).
			Int("total", p.Total).
			Float64("progress_pct", float64(p.Completed)/float64(p.Total)*100).
			Msg("Fetch progress")
	}

	if f.onProgress == nil {
		return
	}
	defer func() { _ = recover() }()
	f.onProgress(p)
}
