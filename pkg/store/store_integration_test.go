//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/eld-analysis/internal/testutil"
	"github.com/Sternrassler/eld-analysis/pkg/batch"
	"github.com/Sternrassler/eld-analysis/pkg/client"
	"github.com/Sternrassler/eld-analysis/pkg/orchestrator"
	"github.com/Sternrassler/eld-analysis/pkg/reduce"
	"github.com/Sternrassler/eld-analysis/pkg/roster"
	"github.com/Sternrassler/eld-analysis/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start redis container")

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())

	t.Cleanup(func() {
		client.Close()
		_ = container.Terminate(context.Background())
	})
	return client
}

func TestRedisStore_Integration_RunPersisted(t *testing.T) {
	redisClient := setupRedis(t)
	logger := zerolog.Nop()

	api := testutil.NewMockAPI()
	defer api.Close()
	api.Script("east", "1", testutil.OK(testutil.Logs("1", "d1", "TIMING COMPLIANCE", "REAL EVENT")))
	api.Script("east", "2", testutil.ServerError(), testutil.OK(testutil.Logs("2", "d2", "REAL EVENT")))

	remote, err := client.New(client.DefaultConfig(api.URL()))
	require.NoError(t, err)

	opts := orchestrator.DefaultOptions()
	opts.MaxRetries = 1
	opts.Sleep = func(context.Context, time.Duration) error { return nil }

	r := roster.Static{"east": {{ID: "1", Name: "Acme"}, {ID: "2", Name: "Beta"}}}
	orch, err := orchestrator.New(r, batch.NewFetcher(remote, batch.DefaultConfig(), logger), remote,
		reduce.New(reduce.DefaultRules(), logger), opts, logger)
	require.NoError(t, err)

	s := store.NewRedisStore(redisClient, time.Hour, logger)
	orch.WithSink(s)

	result, err := orch.Run(context.Background(), "east")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Successful)

	rec, err := s.Latest(context.Background(), "east")
	require.NoError(t, err)
	assert.Equal(t, result.Summary.RetryMetadata.RunID, rec.RunID)
	assert.Equal(t, 2, rec.Result.Summary.Successful)
	assert.Equal(t, 1, rec.Result.Summary.ProcessingStats.TotalLogsRemoved)

	ttl, err := redisClient.TTL(context.Background(), store.Key{Tenant: "east", RunID: rec.RunID}.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}
