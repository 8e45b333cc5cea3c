// Package config builds domain.Config from defaults, an optional .env file
// and FDRATES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// Prefix is prepended to every environment variable name.
const Prefix = "FDRATES_"

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads .env files (missing files are ignored) and then the process
// environment. Variables already set in the environment win over .env.
func Load(files ...string) (*domain.Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a configuration from the tier defaults and overrides.
func FromEnv(lookup LookupFunc) (*domain.Config, error) {
	e := env{lookup: lookup}

	cfg := domain.DefaultConfig()
	if strings.EqualFold(e.getString("TIER", ""), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	cfg.Server.Host = e.getString("HOST", cfg.Server.Host)
	cfg.Server.Port = e.getInt("PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = e.getInt("READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = e.getInt("WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	repo := &cfg.Repository
	repo.Driver = e.getString("DB_DRIVER", repo.Driver)
	repo.SQLitePath = e.getString("SQLITE_PATH", repo.SQLitePath)
	repo.SQLiteBusyTimeout = e.getDuration("SQLITE_BUSY_TIMEOUT", repo.SQLiteBusyTimeout)
	repo.PostgresURL = e.getString("DATABASE_URL", repo.PostgresURL)
	repo.PostgresHost = e.getString("PG_HOST", repo.PostgresHost)
	repo.PostgresPort = e.getInt("PG_PORT", repo.PostgresPort)
	repo.PostgresUser = e.getString("PG_USER", repo.PostgresUser)
	repo.PostgresPassword = e.getString("PG_PASSWORD", repo.PostgresPassword)
	repo.PostgresDB = e.getString("PG_DB", repo.PostgresDB)
	repo.PostgresSSLMode = e.getString("PG_SSLMODE", repo.PostgresSSLMode)
	repo.MaxOpenConns = e.getInt("DB_MAX_OPEN_CONNS", repo.MaxOpenConns)
	repo.MaxIdleConns = e.getInt("DB_MAX_IDLE_CONNS", repo.MaxIdleConns)

	c := &cfg.Cache
	c.Type = e.getString("CACHE", c.Type)
	c.TTL = e.getDuration("CACHE_TTL", c.TTL)
	c.LocalMaxSize = e.getInt("CACHE_SIZE", c.LocalMaxSize)
	c.LocalTTL = e.getDuration("CACHE_LOCAL_TTL", c.LocalTTL)
	c.RedisAddr = e.getString("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = e.getString("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = e.getInt("REDIS_DB", c.RedisDB)
	c.RedisPrefix = e.getString("REDIS_PREFIX", c.RedisPrefix)
	c.EnableTwoPhase = e.getBool("CACHE_TWO_PHASE", c.EnableTwoPhase)

	b := &cfg.EventBus
	b.Type = e.getString("BUS", b.Type)
	b.ChannelBufferSize = e.getInt("BUS_BUFFER", b.ChannelBufferSize)
	b.NATSUrl = e.getString("NATS_URL", b.NATSUrl)
	b.NATSToken = e.getString("NATS_TOKEN", b.NATSToken)

	a := &cfg.Analysis
	a.TopN = e.getInt("TOP_N", a.TopN)
	a.TopRates = e.getInt("TOP_RATES", a.TopRates)
	a.LeaderboardSize = e.getInt("LEADERBOARD_SIZE", a.LeaderboardSize)
	a.DefaultInvestment = e.getFloat("DEFAULT_INVESTMENT", a.DefaultInvestment)

	cfg.Scheduler.Enabled = e.getBool("SCHEDULER", cfg.Scheduler.Enabled)
	cfg.Scheduler.RefreshSpec = e.getString("REFRESH", cfg.Scheduler.RefreshSpec)

	cfg.Logging.Level = e.getString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = e.getString("LOG_FORMAT", cfg.Logging.Format)
	if e.getBool("DEBUG", false) {
		cfg.Logging.Level = "debug"
	}

	cfg.Tracing.Enabled = e.getBool("TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = e.getString("SERVICE_NAME", cfg.Tracing.ServiceName)

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver %q", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache %q", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("unsupported bus %q", cfg.EventBus.Type))
	}
	if cfg.Analysis.DefaultInvestment < 0 {
		errs = append(errs, fmt.Errorf("default investment must not be negative"))
	}
	if cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Scheduler.RefreshSpec) == "" {
		errs = append(errs, fmt.Errorf("scheduler enabled without a refresh spec"))
	}
	return errors.Join(errs...)
}

// NewLogger returns a slog logger for the logging settings.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type env struct {
	lookup LookupFunc
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(Prefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) getString(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) getInt(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return def
	}
	return n
}

func (e *env) getFloat(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return def
	}
	return f
}

func (e *env) getBool(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return def
	}
	return b
}

func (e *env) getDuration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return def
	}
	return d
}
