package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eld-analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "api:\n  base-url: https://eld.example.com/api\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://eld.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.API.Timeout)
	assert.Equal(t, 16, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 6, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Retry.Individually)
	assert.Equal(t, 2*time.Second, cfg.Retry.BatchDelay)
	assert.Equal(t, time.Second, cfg.Retry.IndividualDelay)
	assert.False(t, cfg.Retry.StableOrder)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Len(t, rules, 6)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
api:
  base-url: http://localhost:9000
  token: secret
  timeout: 30s
batch:
  max-concurrency: 0
retry:
  max-retries: 3
  individually: false
  batch-delay: 500ms
  stable-order: true
reduce:
  rules:
    - name: heartbeat
      contains: HEARTBEAT
    - name: lowBattery
      stat-key: batteryRemoved
      pattern: "^BATTERY [0-9]+%$"
redis:
  addr: localhost:6379
  ttl: 24h
schedule:
  cron: "0 */6 * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 0, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.False(t, cfg.Retry.Individually)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BatchDelay)
	assert.True(t, cfg.Retry.StableOrder)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "0 */6 * * *", cfg.Schedule.Cron)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "heartbeat", rules[0].StatKey)
	assert.Equal(t, "batteryRemoved", rules[1].StatKey)
	assert.True(t, rules[1].Match("BATTERY 12%"))

	opts := cfg.RetryOptions()
	assert.Equal(t, 3, opts.MaxRetries)
	assert.False(t, opts.RetryIndividually)

	cc := cfg.ClientConfig()
	assert.Equal(t, "secret", cc.Token)
	assert.Equal(t, "eld-analysis/0.1.0", cc.UserAgent)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  base-url: http://localhost:9000\nretry:\n  max-retries: 3\n")
	t.Setenv("ELD_RETRY_MAX_RETRIES", "9")
	t.Setenv("ELD_API_TOKEN", "from-env")
	t.Setenv("ELD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Retry.MaxRetries)
	assert.Equal(t, "from-env", cfg.API.Token)
	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing base url", "retry:\n  max-retries: 2\n"},
		{"zero retries", "api:\n  base-url: http://x\nretry:\n  max-retries: 0\n"},
		{"negative concurrency", "api:\n  base-url: http://x\nbatch:\n  max-concurrency: -1\n"},
		{"negative delay", "api:\n  base-url: http://x\nretry:\n  batch-delay: -1s\n"},
		{"bad log level", "api:\n  base-url: http://x\nlog:\n  level: chatty\n"},
		{"rule without matcher", "api:\n  base-url: http://x\nreduce:\n  rules:\n    - name: empty\n"},
		{"bad rule pattern", "api:\n  base-url: http://x\nreduce:\n  rules:\n    - name: bad\n      pattern: \"(\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
