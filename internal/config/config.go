// Package config loads the service configuration from a YAML file, a .env
// file and ELD_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/batch"
	"github.com/Sternrassler/eld-analysis/pkg/client"
	"github.com/Sternrassler/eld-analysis/pkg/logging"
	"github.com/Sternrassler/eld-analysis/pkg/orchestrator"
	"github.com/Sternrassler/eld-analysis/pkg/reduce"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// ELD_RETRY_MAX_RETRIES for retry.max-retries.
const EnvPrefix = "ELD"

// Config is the full service configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Reduce   ReduceConfig   `mapstructure:"reduce"`
	Roster   RosterConfig   `mapstructure:"roster"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
}

// APIConfig configures the remote analysis API client.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base-url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user-agent"`
}

// BatchConfig bounds the batch fan-out. Zero means unbounded.
type BatchConfig struct {
	MaxConcurrency int `mapstructure:"max-concurrency"`
}

// RetryConfig is the retry protocol.
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max-retries"`
	Individually    bool          `mapstructure:"individually"`
	BatchDelay      time.Duration `mapstructure:"batch-delay"`
	IndividualDelay time.Duration `mapstructure:"individual-delay"`
	StableOrder     bool          `mapstructure:"stable-order"`
}

// ReduceConfig replaces the default filter rules when Rules is not empty.
type ReduceConfig struct {
	Rules []reduce.RuleSpec `mapstructure:"rules"`
}

// RosterConfig points at the roster YAML file.
type RosterConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig configures the result store. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ScheduleConfig configures periodic sweeps. An empty Cron disables them.
type ScheduleConfig struct {
	Cron        string        `mapstructure:"cron"`
	TenantDelay time.Duration `mapstructure:"tenant-delay"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration. When path is empty, eld-analysis.yaml is looked
// up in . and ./config and may be absent. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("eld-analysis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base-url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 120*time.Second)
	v.SetDefault("api.user-agent", "eld-analysis/0.1.0")

	v.SetDefault("batch.max-concurrency", batch.DefaultConfig().MaxConcurrency)

	retry := orchestrator.DefaultOptions()
	v.SetDefault("retry.max-retries", retry.MaxRetries)
	v.SetDefault("retry.individually", retry.RetryIndividually)
	v.SetDefault("retry.batch-delay", retry.BatchDelay)
	v.SetDefault("retry.individual-delay", retry.IndividualDelay)
	v.SetDefault("retry.stable-order", false)

	v.SetDefault("roster.path", "roster.yaml")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 7*24*time.Hour)

	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.tenant-delay", 5*time.Second)

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate checks value ranges and builds the filter rules once so that a
// bad rule fails at startup.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base-url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0 (got %s)", c.API.Timeout)
	}
	if c.Batch.MaxConcurrency < 0 {
		return fmt.Errorf("batch.max-concurrency must be >= 0 (got %d)", c.Batch.MaxConcurrency)
	}
	if err := c.RetryOptions().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Schedule.TenantDelay < 0 {
		return fmt.Errorf("schedule.tenant-delay must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := c.Rules(); err != nil {
		return fmt.Errorf("reduce.rules: %w", err)
	}
	return nil
}

// ClientConfig returns the remote client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.API.BaseURL)
	cfg.Token = c.API.Token
	cfg.Timeout = c.API.Timeout
	if c.API.UserAgent != "" {
		cfg.UserAgent = c.API.UserAgent
	}
	return cfg
}

// BatchConfig returns the batch fetcher configuration.
func (c *Config) BatchConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.MaxConcurrency = c.Batch.MaxConcurrency
	return cfg
}

// RetryOptions returns the orchestrator options.
func (c *Config) RetryOptions() orchestrator.Options {
	return orchestrator.Options{
		MaxRetries:        c.Retry.MaxRetries,
		RetryIndividually: c.Retry.Individually,
		BatchDelay:        c.Retry.BatchDelay,
		IndividualDelay:   c.Retry.IndividualDelay,
		StableOrder:       c.Retry.StableOrder,
	}
}

// Rules returns the configured filter rules, or the defaults when none are
// configured.
func (c *Config) Rules() ([]reduce.Rule, error) {
	if len(c.Reduce.Rules) == 0 {
		return reduce.DefaultRules(), nil
	}
	return reduce.Build(c.Reduce.Rules)
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Pretty = c.Log.Pretty
	return cfg
}
