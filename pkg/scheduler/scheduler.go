// Package scheduler runs periodic sweeps over every tenant of a roster.
//
// A sweep runs tenants one after another with a fixed pause between them.
// A tenant's failure is logged and the sweep moves on. A cron trigger that
// fires while a sweep is still running is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/Sternrassler/eld-analysis/pkg/roster"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eld_scheduler_sweeps_total",
	Help: "Scheduled sweeps by outcome",
}, []string{"outcome"})

// Runner runs one tenant. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, tenant string) (*analysis.BatchResult, error)
}

// Config configures a Scheduler.
type Config struct {
	// Spec is a standard 5-field cron expression.
	Spec string

	// TenantDelay is the pause between two tenants of a sweep.
	TenantDelay time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Report summarizes one sweep.
type Report struct {
	Tenants   int
	Succeeded []string
	Failed    []string
	Duration  time.Duration
}

// Scheduler triggers sweeps on a cron schedule.
type Scheduler struct {
	roster  roster.Roster
	runner  Runner
	cfg     Config
	cron    *cron.Cron
	running atomic.Bool
	logger  zerolog.Logger
}

// New validates the cron spec and creates a scheduler.
func New(r roster.Roster, runner Runner, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if r == nil || runner == nil {
		return nil, fmt.Errorf("roster and runner are required")
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Spec, err)
	}
	if cfg.TenantDelay < 0 {
		return nil, fmt.Errorf("tenant delay must not be negative")
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Scheduler{
		roster: r,
		runner: runner,
		cfg:    cfg,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start registers the sweep with cron and starts it. Sweeps use ctx, so
// cancelling it interrupts a sweep in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Spec, func() {
		s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron = c
	c.Start()

	next := c.Entries()[0].Next
	s.logger.Info().Str("schedule", s.cfg.Spec).Time("next_run", next).Msg("Scheduler started")
	return nil
}

// Stop stops triggering sweeps. The returned context is done once a sweep
// in progress has finished.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.logger.Info().Msg("Scheduler stopping")
	return s.cron.Stop()
}

// Sweep runs every tenant once. It returns false without doing anything when
// another sweep is already running.
func (s *Scheduler) Sweep(ctx context.Context) (Report, bool) {
	if !s.running.CompareAndSwap(false, true) {
		sweepsTotal.WithLabelValues("skipped").Inc()
		s.logger.Warn().Msg("Previous sweep still running, skipping")
		return Report{}, false
	}
	defer s.running.Store(false)

	start := time.Now()
	var report Report

	tenants, err := s.roster.Tenants(ctx)
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("Failed to list tenants")
		return report, true
	}
	report.Tenants = len(tenants)

	for i, tenant := range tenants {
		if i > 0 {
			if err := s.cfg.Sleep(ctx, s.cfg.TenantDelay); err != nil {
				s.logger.Warn().Err(err).Msg("Sweep interrupted")
				break
			}
		}

		result, err := s.runner.Run(ctx, tenant)
		if err != nil {
			report.Failed = append(report.Failed, tenant)
			s.logger.Error().Err(err).Str("tenant", tenant).Msg("Tenant run failed")
			continue
		}
		report.Succeeded = append(report.Succeeded, tenant)
		s.logger.Debug().
			Str("tenant", tenant).
			Int("successful", result.Summary.Successful).
			Int("failed", result.Summary.Failed).
			Msg("Tenant run finished")
	}

	report.Duration = time.Since(start)
	sweepsTotal.WithLabelValues("complete").Inc()
	s.logger.Info().
		Int("tenants", report.Tenants).
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Sweep finished")
	return report, true
}

// Running reports whether a sweep is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
