package domain

import (
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Scoring pipeline settings
	Pipeline PipelineConfig `json:"pipeline"`

	// Inference engine settings
	Engine EngineConfig `json:"engine"`

	// Model artifact settings
	Model ModelConfig `json:"model"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// PipelineConfig holds feature pipeline settings.
type PipelineConfig struct {
	// ReferenceEpoch anchors the seconds-from-reference temporal feature.
	// Must match the anchor used when the training statistics were captured.
	ReferenceEpoch time.Time `json:"referenceEpoch"`
}

// EngineConfig holds inference engine settings.
type EngineConfig struct {
	CacheCapacity int           `json:"cacheCapacity"`
	CacheTTL      time.Duration `json:"cacheTTL"`
	UseCache      bool          `json:"useCache"`
}

// ModelConfig holds model artifact settings.
type ModelConfig struct {
	// Path to the serialized model artifact. When empty or unreadable,
	// loading falls back to the embedded demo coefficients.
	Path string `json:"path"`

	// RemoteURL switches scoring to the remote service when set.
	RemoteURL string `json:"remoteURL"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// DefaultReferenceEpoch anchors temporal features when no override is set.
var DefaultReferenceEpoch = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultConfig returns a single-node configuration: SQLite, in-memory
// cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Pipeline: PipelineConfig{
			ReferenceEpoch: DefaultReferenceEpoch,
		},
		Engine: EngineConfig{
			CacheCapacity: 100,
			CacheTTL:      time.Hour,
			UseCache:      true,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:     "memory",
			Capacity: 100,
			TTL:      time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// DistributedConfig returns a multi-node configuration: PostgreSQL, Redis
// cache, NATS bus.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
		Capacity:  100,
		TTL:       time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
