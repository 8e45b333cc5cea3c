package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opensource-finance/fdrates/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	defaultSQLitePath        = "./fd_rates.db"
	defaultSQLiteBusyTimeout = 5 * time.Second

	memoryPath = ":memory:"
)

// openSQLite opens the community-tier catalog on modernc.org/sqlite.
// The ingest worker and DELETE /rates both write, so every transaction
// takes the write lock up front and waits busy_timeout for it. An
// in-memory catalog is pinned to one connection so all callers share it.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path, dsn := sqliteDSN(cfg)

	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create catalog directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog %s: %w", path, err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite catalog %s: %w", path, err)
	}
	return db, nil
}

// sqliteDSN returns the catalog path and its connection string.
func sqliteDSN(cfg domain.RepositoryConfig) (string, string) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultSQLitePath
	}
	timeout := cfg.SQLiteBusyTimeout
	if timeout <= 0 {
		timeout = defaultSQLiteBusyTimeout
	}

	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", timeout.Milliseconds()),
		"_txlock=immediate",
	}
	if path == memoryPath {
		return path, "file::memory:?" + strings.Join(params, "&")
	}
	params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	return path, "file:" + path + "?" + strings.Join(params, "&")
}
