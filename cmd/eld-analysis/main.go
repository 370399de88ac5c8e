// Command eld-analysis fetches ELD analysis documents for every company of a
// tenant, retries failures and writes the reduced result.
//
// One-shot run, result printed as JSON:
//
//	eld-analysis -config eld-analysis.yaml -tenant east
//
// Long-running HTTP API with optional cron sweeps:
//
//	eld-analysis -config eld-analysis.yaml -serve
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/eld-analysis/internal/config"
	"github.com/Sternrassler/eld-analysis/internal/httpapi"
	"github.com/Sternrassler/eld-analysis/pkg/batch"
	"github.com/Sternrassler/eld-analysis/pkg/client"
	"github.com/Sternrassler/eld-analysis/pkg/logging"
	"github.com/Sternrassler/eld-analysis/pkg/orchestrator"
	"github.com/Sternrassler/eld-analysis/pkg/reduce"
	"github.com/Sternrassler/eld-analysis/pkg/roster"
	"github.com/Sternrassler/eld-analysis/pkg/scheduler"
	"github.com/Sternrassler/eld-analysis/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eld-analysis", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML config file")
	tenant := fs.String("tenant", "", "run a single tenant and print the result")
	serve := fs.Bool("serve", false, "serve the HTTP API and scheduled sweeps")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *tenant == "" && !*serve {
		fmt.Fprintln(stderr, "one of -tenant or -serve is required")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logger, err := logging.Setup(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Startup failed")
		return 1
	}
	defer a.Close()

	if *tenant != "" {
		return a.runOnce(ctx, *tenant, stdout)
	}
	return a.serve(ctx)
}

// app holds the wired components.
type app struct {
	cfg       *config.Config
	roster    roster.Static
	orch      *orchestrator.Orchestrator
	redis     *redis.Client
	store     *store.RedisStore
	scheduler *scheduler.Scheduler
	api       *httpapi.Server
	logger    zerolog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	r, err := roster.LoadFile(cfg.Roster.Path)
	if err != nil {
		return nil, err
	}
	a.roster = r

	remote, err := client.New(cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("remote client: %w", err)
	}

	fetcher := batch.NewFetcher(remote, cfg.BatchConfig(), logger)

	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	pipeline := reduce.New(rules, logger)

	a.orch, err = orchestrator.New(r, fetcher, remote, pipeline, cfg.RetryOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	deps := httpapi.Deps{Runner: a.orch, Version: version, Checks: map[string]httpapi.HealthCheck{}}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

		a.store = store.NewRedisStore(a.redis, cfg.Redis.TTL, logger)
		a.orch.WithSink(a.store)
		deps.Results = a.store
		deps.Checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}

	if cfg.Schedule.Cron != "" {
		a.scheduler, err = scheduler.New(r, a.orch, scheduler.Config{
			Spec:        cfg.Schedule.Cron,
			TenantDelay: cfg.Schedule.TenantDelay,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.api = httpapi.New(deps, logger)
	return a, nil
}

func (a *app) runOnce(ctx context.Context, tenant string, out io.Writer) int {
	result, err := a.orch.Run(ctx, tenant)
	if err != nil {
		a.logger.Error().Err(err).Str("tenant", tenant).Msg("Run failed")
		if errors.Is(err, roster.ErrTenantNotFound) {
			return 2
		}
		return 1
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		a.logger.Error().Err(err).Msg("Failed to write result")
		return 1
	}
	return 0
}

func (a *app) serve(ctx context.Context) int {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Scheduler failed to start")
			return 1
		}
		defer func() { <-a.scheduler.Stop().Done() }()
	}

	if err := a.api.ListenAndServe(ctx, a.cfg.HTTP.Addr); err != nil {
		a.logger.Error().Err(err).Msg("HTTP API failed")
		return 1
	}
	return 0
}

// Close releases the Redis connection.
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}
