package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. TASKFLOW_DATABASE_URL for database.url.
const EnvPrefix = "TASKFLOW"

// keys that have no default but must still be bound to the environment
var envOnlyKeys = []string{
	"database.url",
	"broker.url",
	"cache.redis_url",
	"telemetry.endpoint",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskflow")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if _, err := cfg.Cache.ParseHotPairs(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("broker.reconnect_attempts", 10)
	v.SetDefault("broker.reconnect_delay", 5*time.Second)
	v.SetDefault("broker.message_ttl", 24*time.Hour)
	v.SetDefault("broker.publish_timeout", 5*time.Second)

	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.warm_interval", 15*time.Minute)
	v.SetDefault("cache.fill_ttl", 5*time.Minute)
	v.SetDefault("cache.hot_pairs", "")

	v.SetDefault("dispatcher.dedup_capacity", 1000)
	v.SetDefault("dispatcher.dedup_retain", 500)
	v.SetDefault("dispatcher.prune_interval", 30*time.Second)
	v.SetDefault("dispatcher.max_retries", 3)
	v.SetDefault("dispatcher.requeue_delay", time.Second)
	v.SetDefault("dispatcher.ledger_retention", 7*24*time.Hour)

	v.SetDefault("notify.allowed_origins", []string{})
	v.SetDefault("notify.outbox_size", 64)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.service_name", "taskflow")
}

// HotPair identifies a (team, subject) partition whose first listing pages
// are kept warm in the cache.
type HotPair struct {
	TeamID    int64
	SubjectID int64
}

// ParseHotPairs parses HotPairs ("1:2,3:4") into (team, subject) pairs.
func (c CacheConfig) ParseHotPairs() ([]HotPair, error) {
	raw := strings.TrimSpace(c.HotPairs)
	if raw == "" {
		return nil, nil
	}

	var pairs []HotPair
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		team, subject, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid hot pair %q: expected team:subject", item)
		}
		teamID, err := strconv.ParseInt(strings.TrimSpace(team), 10, 64)
		if err != nil || teamID <= 0 {
			return nil, fmt.Errorf("invalid team id in hot pair %q", item)
		}
		subjectID, err := strconv.ParseInt(strings.TrimSpace(subject), 10, 64)
		if err != nil || subjectID <= 0 {
			return nil, fmt.Errorf("invalid subject id in hot pair %q", item)
		}
		pairs = append(pairs, HotPair{TeamID: teamID, SubjectID: subjectID})
	}
	return pairs, nil
}
