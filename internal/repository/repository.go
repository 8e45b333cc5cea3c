// Package repository persists the rate catalog.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/fdrates/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.RateStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const selectRates = `
	SELECT id, bank, tenure_description, min_days, max_days,
		   regular_rate, senior_rate, category, region, currency, scraped_date
	FROM fd_rates
`

// ListRates returns the whole catalog in insertion order.
func (r *SQLRepository) ListRates(ctx context.Context) ([]domain.RateRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectRates+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	defer rows.Close()

	var records []domain.RateRecord
	for rows.Next() {
		rec, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRate returns one record by ID.
func (r *SQLRepository) GetRate(ctx context.Context, id int64) (*domain.RateRecord, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectRates+" WHERE id = ?"), id)

	rec, err := scanRate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertRates writes records in a single transaction.
// A record replaces the stored row with the same bank and tenure description.
func (r *SQLRepository) UpsertRates(ctx context.Context, records []domain.RateRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i, rec := range records {
		if strings.TrimSpace(rec.Bank) == "" {
			return 0, fmt.Errorf("%w: record %d has no bank", ErrInvalidInput, i)
		}
		if strings.TrimSpace(rec.TenureDescription) == "" {
			return 0, fmt.Errorf("%w: record %d has no tenure description", ErrInvalidInput, i)
		}
	}

	query := `
		INSERT INTO fd_rates (
			bank, tenure_description, min_days, max_days,
			regular_rate, senior_rate, category, region, currency, scraped_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bank, tenure_description) DO UPDATE SET
			min_days = excluded.min_days,
			max_days = excluded.max_days,
			regular_rate = excluded.regular_rate,
			senior_rate = excluded.senior_rate,
			category = excluded.category,
			region = excluded.region,
			currency = excluded.currency,
			scraped_date = excluded.scraped_date
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		category := rec.Category
		if category == "" {
			category = domain.CategoryGeneral
		}
		var scraped any
		if rec.ScrapedAt != nil {
			scraped = rec.ScrapedAt.UTC()
		}

		_, err := stmt.ExecContext(ctx,
			strings.TrimSpace(rec.Bank), strings.TrimSpace(rec.TenureDescription),
			rec.MinDays, rec.MaxDays,
			rec.RegularRate, rec.SeniorRate,
			string(category), rec.Region, rec.Currency,
			scraped,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert %s/%s: %w", rec.Bank, rec.TenureDescription, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(records), nil
}

// DeleteRate removes one record by ID.
func (r *SQLRepository) DeleteRate(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, r.rebind("DELETE FROM fd_rates WHERE id = ?"), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRate(row rowScanner) (domain.RateRecord, error) {
	var (
		rec      domain.RateRecord
		category string
		scraped  sql.NullTime
	)

	err := row.Scan(
		&rec.ID, &rec.Bank, &rec.TenureDescription,
		&rec.MinDays, &rec.MaxDays,
		&rec.RegularRate, &rec.SeniorRate,
		&category, &rec.Region, &rec.Currency,
		&scraped,
	)
	if err != nil {
		return rec, err
	}

	rec.Category = domain.ParseCategory(category)
	if scraped.Valid {
		t := scraped.Time.UTC()
		rec.ScrapedAt = &t
	}
	return rec, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

var _ domain.RateStore = (*SQLRepository)(nil)
