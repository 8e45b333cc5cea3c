package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/opensource-finance/fdrates/internal/domain"
	_ "github.com/lib/pq"
)

const (
	defaultPostgresDB      = "fdrates"
	postgresConnectTimeout = 5 // seconds
	postgresApplication    = "fdrates"
)

// openPostgres opens the pro-tier catalog on lib/pq.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres catalog %s: %w", cfg.PostgresDB, err)
	}
	return db, nil
}

// postgresDSN returns PostgresURL when set. Otherwise it builds a
// key=value string from the individual settings, quoting values that
// contain spaces or quotes.
func postgresDSN(cfg domain.RepositoryConfig) string {
	if cfg.PostgresURL != "" {
		return cfg.PostgresURL
	}

	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = defaultPostgresDB
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	parts := []string{
		"host=" + pgValue(host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + pgValue(dbname),
		"sslmode=" + pgValue(sslmode),
		fmt.Sprintf("connect_timeout=%d", postgresConnectTimeout),
		"application_name=" + postgresApplication,
	}
	if cfg.PostgresUser != "" {
		parts = append(parts, "user="+pgValue(cfg.PostgresUser))
	}
	if cfg.PostgresPassword != "" {
		parts = append(parts, "password="+pgValue(cfg.PostgresPassword))
	}
	return strings.Join(parts, " ")
}

func pgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
