// Package store persists reduced batch results in Redis.
//
// Every run is written under its own key with a TTL, and a per-tenant
// pointer names the most recent run:
//
//	eld:analysis:east:run:6f1c...   -> JSON Record
//	eld:analysis:east:latest        -> "6f1c..."
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := store.NewRedisStore(redisClient, 24*time.Hour, logger)
//
//	if err := s.Save(ctx, runID, result); err != nil {
//		return err
//	}
//
//	rec, err := s.Latest(ctx, "east")
//	if errors.Is(err, store.ErrNotFound) {
//		// nothing stored yet
//	}
//
// RedisStore satisfies orchestrator.Sink. The orchestrator logs Save errors
// and never fails a run because of them.
//
// # Metrics
//
//   - eld_store_operations_total{operation,status}
//   - eld_store_record_bytes{tenant}
package store
