package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Broker     BrokerConfig     `mapstructure:"broker" validate:"required"`
	Cache      CacheConfig      `mapstructure:"cache" validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// BrokerConfig contains the message broker connection and reconnect policy.
type BrokerConfig struct {
	URL               string        `mapstructure:"url" validate:"required,url"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" validate:"gte=1"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" validate:"gt=0"`
	MessageTTL        time.Duration `mapstructure:"message_ttl" validate:"gt=0"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout" validate:"gt=0"`
}

// CacheConfig contains the side-cache backend and warming settings.
type CacheConfig struct {
	Driver       string        `mapstructure:"driver" validate:"required,oneof=redis memory"`
	RedisURL     string        `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	TTL          time.Duration `mapstructure:"ttl" validate:"gt=0"`
	WarmInterval time.Duration `mapstructure:"warm_interval" validate:"gt=0"`
	// FillTTL is the TTL of entries written on a read miss. Zero uses TTL.
	FillTTL time.Duration `mapstructure:"fill_ttl" validate:"gte=0,ltefield=TTL"`
	// HotPairs lists "team:subject" pairs warmed in the background, comma separated.
	HotPairs string `mapstructure:"hot_pairs"`
}

// DispatcherConfig tunes message processing in the worker.
type DispatcherConfig struct {
	DedupCapacity int           `mapstructure:"dedup_capacity" validate:"gte=1"`
	DedupRetain   int           `mapstructure:"dedup_retain" validate:"gte=1,ltefield=DedupCapacity"`
	PruneInterval time.Duration `mapstructure:"prune_interval" validate:"gt=0"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"gte=0"`
	RequeueDelay  time.Duration `mapstructure:"requeue_delay" validate:"gte=0"`

	// LedgerRetention is how long processed-message fingerprints are kept in the store.
	LedgerRetention time.Duration `mapstructure:"ledger_retention" validate:"gt=0"`
}

// NotifyConfig contains websocket fan-out settings.
type NotifyConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	OutboxSize     int      `mapstructure:"outbox_size" validate:"gte=1"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter" validate:"omitempty,oneof=otlp-http stdout none"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}
