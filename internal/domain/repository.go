// Package domain defines the core interfaces and types for the FD rates service.
package domain

import (
	"context"
	"time"
)

// RateStore defines the interface for the persisted rate catalog.
// The analysis engine never talks to it; callers load a snapshot first.
type RateStore interface {
	// Catalog reads
	ListRates(ctx context.Context) ([]RateRecord, error)
	GetRate(ctx context.Context, id int64) (*RateRecord, error)

	// UpsertRates inserts or replaces records keyed by (bank, tenure_description).
	// Returns the number of records written.
	UpsertRates(ctx context.Context, records []RateRecord) (int, error)

	DeleteRate(ctx context.Context, id int64) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath        string // ":memory:" keeps the catalog in memory
	SQLiteBusyTimeout time.Duration

	// PostgreSQL specific. PostgresURL, when set, wins over the parts.
	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
