package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Analysis defaults
	Analysis AnalysisConfig `json:"analysis"`

	// Background refresh
	Scheduler SchedulerConfig `json:"scheduler"`

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

// AnalysisConfig holds engine defaults applied by the service layer.
type AnalysisConfig struct {
	// TopN is the default recommendation list length.
	TopN int `json:"topN"`

	// TopRates is the length of the precomputed top-banks listing.
	TopRates int `json:"topRates"`

	// LeaderboardSize caps the per-bank average ranking.
	LeaderboardSize int `json:"leaderboardSize"`

	// DefaultInvestment is used when a request omits the amount.
	DefaultInvestment float64 `json:"defaultInvestment"`
}

// SchedulerConfig controls the periodic cache refresh.
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	RefreshSpec string `json:"refreshSpec"` // cron spec, e.g. "@every 15m"
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
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fd_rates.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			TTL:          10 * time.Minute,
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Analysis: AnalysisConfig{
			TopN:              5,
			TopRates:          10,
			LeaderboardSize:   10,
			DefaultInvestment: 100000,
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			RefreshSpec: "@every 15m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fdrates",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fdrates",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		TTL:            10 * time.Minute,
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
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
