package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgarlab/filings-extractor/internal/common"
)

// A filing lives in exactly one of filings / dead_letters at any instant.
// The result upsert and the dead-letter record each run in one transaction,
// and the result upsert removes any dead-letter row for the same accession.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS filings (
	accession_number       TEXT PRIMARY KEY,
	cik                    TEXT NOT NULL DEFAULT '',
	company_name           TEXT NOT NULL DEFAULT '',
	form_type              TEXT NOT NULL DEFAULT '',
	filed_at               DATE,
	period_of_report       DATE,
	sic                    TEXT NOT NULL DEFAULT '',
	state_of_incorporation TEXT NOT NULL DEFAULT '',
	fiscal_year_end        TEXT NOT NULL DEFAULT '',
	document_count         INTEGER NOT NULL DEFAULT 0,
	method                 TEXT NOT NULL,
	fact_count             INTEGER NOT NULL DEFAULT 0,
	parse_duration_ms      BIGINT NOT NULL DEFAULT 0,
	processed_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_filings_filed_at ON filings (filed_at);
CREATE INDEX IF NOT EXISTS idx_filings_form_type ON filings (form_type);

CREATE TABLE IF NOT EXISTS facts (
	id               BIGSERIAL PRIMARY KEY,
	accession_number TEXT NOT NULL REFERENCES filings (accession_number) ON DELETE CASCADE,
	seq              INTEGER NOT NULL,
	concept          TEXT NOT NULL,
	value            TEXT NOT NULL DEFAULT '',
	unit_ref         TEXT NOT NULL DEFAULT '',
	context_ref      TEXT NOT NULL DEFAULT '',
	decimals         INTEGER,
	scale            INTEGER,
	period_start     DATE,
	period_end       DATE,
	period_instant   DATE
);
CREATE INDEX IF NOT EXISTS idx_facts_accession ON facts (accession_number);
CREATE INDEX IF NOT EXISTS idx_facts_concept ON facts (concept);

CREATE TABLE IF NOT EXISTS dead_letters (
	accession_number TEXT PRIMARY KEY,
	failure_class    TEXT NOT NULL,
	attempts         JSONB NOT NULL DEFAULT '[]'::jsonb,
	attempt_count    INTEGER NOT NULL DEFAULT 1,
	max_attempts     INTEGER NOT NULL,
	retry_eligible   BOOLEAN NOT NULL DEFAULT TRUE,
	first_failed_at  TIMESTAMPTZ NOT NULL,
	last_failed_at   TIMESTAMPTZ NOT NULL,
	next_retry       TIMESTAMPTZ,
	document_url     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_retry ON dead_letters (retry_eligible, next_retry);
CREATE INDEX IF NOT EXISTS idx_dead_letters_class ON dead_letters (failure_class);
`

// Migrate applies the schema. Idempotent; safe to run at every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		logger.Error("schema migration failed", "error", err)
		return common.WrapError(err, "apply schema")
	}
	logger.Info("schema up to date")
	return nil
}
