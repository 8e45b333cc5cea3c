package repository

import "fmt"

// fd_rates holds one row per (bank, tenure_description). The description
// is required so that distinct products of one bank never share a key.
// Rate columns are nullable: upstream sources deliver gaps and junk.
const schemaRatesTemplate = `
CREATE TABLE IF NOT EXISTS fd_rates (
    id %s,
    bank TEXT NOT NULL,
    tenure_description TEXT NOT NULL CHECK (tenure_description <> ''),
    min_days INTEGER NOT NULL DEFAULT 0,
    max_days INTEGER NOT NULL DEFAULT 0,
    regular_rate DOUBLE PRECISION,
    senior_rate DOUBLE PRECISION,
    category TEXT NOT NULL DEFAULT 'General',
    region TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL DEFAULT '',
    scraped_date TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fd_rates_bank_tenure ON fd_rates(bank, tenure_description);
CREATE INDEX IF NOT EXISTS idx_fd_rates_min_days ON fd_rates(min_days);
`

// AllSchemas returns all schema statements in order for the given driver.
func AllSchemas(driver string) []string {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}
	return []string{
		fmt.Sprintf(schemaRatesTemplate, idColumn),
	}
}
