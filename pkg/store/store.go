package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound indicates no record exists for the key
	ErrNotFound = errors.New("result not found")

	// ErrInvalidRecord indicates the stored record is corrupted
	ErrInvalidRecord = errors.New("invalid stored result")
)

// DefaultTTL is how long results are kept when no TTL is configured.
const DefaultTTL = 7 * 24 * time.Hour

// RedisStore persists reduced batch results in Redis.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a store with the given record TTL.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Save writes result under its run key and points the tenant's latest key at
// it, both with the store TTL.
func (s *RedisStore) Save(ctx context.Context, runID string, result *analysis.BatchResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	now := time.Now()
	rec := Record{
		RunID:    runID,
		Tenant:   result.Summary.Tenant,
		Result:   result,
		StoredAt: now,
		Expires:  now.Add(s.ttl),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		Operations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("marshal result: %w", err)
	}

	runKey := Key{Tenant: rec.Tenant, RunID: runID}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, runKey.String(), data, s.ttl)
	pipe.Set(ctx, Key{Tenant: rec.Tenant}.String(), runID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		Operations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("redis save: %w", err)
	}

	Operations.WithLabelValues("save", "ok").Inc()
	StoredBytes.WithLabelValues(rec.Tenant).Set(float64(len(data)))

	s.logger.Debug().
		Str("tenant", rec.Tenant).
		Str("run_id", runID).
		Int("bytes", len(data)).
		Dur("ttl", s.ttl).
		Msg("Stored result")
	return nil
}

// Get retrieves a stored run.
// Returns ErrNotFound if the key doesn't exist or the record is expired.
func (s *RedisStore) Get(ctx context.Context, tenant, runID string) (*Record, error) {
	return s.get(ctx, "get", Key{Tenant: tenant, RunID: runID})
}

// Latest retrieves the most recently saved run of tenant.
func (s *RedisStore) Latest(ctx context.Context, tenant string) (*Record, error) {
	runID, err := s.redis.Get(ctx, Key{Tenant: tenant}.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Operations.WithLabelValues("latest", "miss").Inc()
			return nil, ErrNotFound
		}
		Operations.WithLabelValues("latest", "error").Inc()
		return nil, fmt.Errorf("redis get latest: %w", err)
	}
	return s.get(ctx, "latest", Key{Tenant: tenant, RunID: runID})
}

func (s *RedisStore) get(ctx context.Context, op string, key Key) (*Record, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Operations.WithLabelValues(op, "miss").Inc()
			return nil, ErrNotFound
		}
		Operations.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		Operations.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if rec.IsExpired() {
		_ = s.redis.Del(ctx, key.String()).Err()
		Operations.WithLabelValues(op, "miss").Inc()
		return nil, ErrNotFound
	}

	Operations.WithLabelValues(op, "ok").Inc()
	return &rec, nil
}

// Delete removes a stored run. The latest pointer is left alone and
// resolves to ErrNotFound afterwards.
func (s *RedisStore) Delete(ctx context.Context, tenant, runID string) error {
	if err := s.redis.Del(ctx, Key{Tenant: tenant, RunID: runID}.String()).Err(); err != nil {
		Operations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	Operations.WithLabelValues("delete", "ok").Inc()
	return nil
}
