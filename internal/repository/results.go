package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgarlab/filings-extractor/internal/common"
	"github.com/edgarlab/filings-extractor/internal/entity"
)

// ResultStore persists extraction results. Upsert is the only write path and
// is fully idempotent: replaying the same filing converges on one filings row
// and one coherent fact set, and clears any dead-letter record in the same
// transaction so the filing never sits on both sides at once.
type ResultStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewResultStore(pool *pgxpool.Pool, logger *slog.Logger) *ResultStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultStore{pool: pool, logger: logger}
}

// FilingSummary is the listing row returned by date-range queries.
type FilingSummary struct {
	AccessionNumber string     `json:"accession_number"`
	CIK             string     `json:"cik"`
	CompanyName     string     `json:"company_name"`
	FormType        string     `json:"form_type"`
	FiledAt         *time.Time `json:"filed_at,omitempty"`
	Method          string     `json:"method"`
	FactCount       int        `json:"fact_count"`
	ProcessedAt     time.Time  `json:"processed_at"`
}

func (s *ResultStore) Upsert(ctx context.Context, result *entity.ExtractionResult) error {
	if result == nil || result.AccessionNumber == "" {
		return common.NewAppError("VALIDATION_ERROR", "extraction result missing accession number", common.ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin result upsert")
	}
	defer tx.Rollback(ctx)

	md := result.Metadata
	_, err = tx.Exec(ctx, `
		INSERT INTO filings (
			accession_number, cik, company_name, form_type, filed_at,
			period_of_report, sic, state_of_incorporation, fiscal_year_end,
			document_count, method, fact_count, parse_duration_ms, processed_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
		ON CONFLICT (accession_number) DO UPDATE SET
			cik = EXCLUDED.cik,
			company_name = EXCLUDED.company_name,
			form_type = EXCLUDED.form_type,
			filed_at = EXCLUDED.filed_at,
			period_of_report = EXCLUDED.period_of_report,
			sic = EXCLUDED.sic,
			state_of_incorporation = EXCLUDED.state_of_incorporation,
			fiscal_year_end = EXCLUDED.fiscal_year_end,
			document_count = EXCLUDED.document_count,
			method = EXCLUDED.method,
			fact_count = EXCLUDED.fact_count,
			parse_duration_ms = EXCLUDED.parse_duration_ms,
			updated_at = now()`,
		result.AccessionNumber, md.CIK, md.CompanyName, md.FormType, md.FiledAt,
		md.PeriodOfReport, md.SIC, md.StateOfIncorporation, md.FiscalYearEnd,
		md.DocumentCount, result.Method, len(result.Facts), result.ParseDuration.Milliseconds(),
	)
	if err != nil {
		return common.WrapError(err, "upsert filing")
	}

	// Replace, never merge: stale facts from an earlier parse of the same
	// filing must not survive a re-run with a different engine.
	if _, err := tx.Exec(ctx, `DELETE FROM facts WHERE accession_number = $1`, result.AccessionNumber); err != nil {
		return common.WrapError(err, "clear facts")
	}
	for i, f := range result.Facts {
		_, err := tx.Exec(ctx, `
			INSERT INTO facts (
				accession_number, seq, concept, value, unit_ref, context_ref,
				decimals, scale, period_start, period_end, period_instant
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			result.AccessionNumber, i, f.Concept, f.Value, f.UnitRef, f.ContextRef,
			f.Decimals, f.Scale, f.PeriodStart, f.PeriodEnd, f.PeriodInstant,
		)
		if err != nil {
			return common.WrapError(err, "insert fact")
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM dead_letters WHERE accession_number = $1`, result.AccessionNumber); err != nil {
		return common.WrapError(err, "clear dead letter")
	}

	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit result upsert")
	}
	s.logger.Debug("result stored",
		"accession_number", result.AccessionNumber, "facts", len(result.Facts))
	return nil
}

// GetByAccession rebuilds the stored result, facts included.
func (s *ResultStore) GetByAccession(ctx context.Context, accession string) (*entity.ExtractionResult, error) {
	result := &entity.ExtractionResult{AccessionNumber: accession}
	md := &result.Metadata
	md.AccessionNumber = accession

	var durationMS int64
	err := s.pool.QueryRow(ctx, `
		SELECT cik, company_name, form_type, filed_at, period_of_report,
		       sic, state_of_incorporation, fiscal_year_end, document_count,
		       method, parse_duration_ms
		FROM filings WHERE accession_number = $1`, accession,
	).Scan(&md.CIK, &md.CompanyName, &md.FormType, &md.FiledAt, &md.PeriodOfReport,
		&md.SIC, &md.StateOfIncorporation, &md.FiscalYearEnd, &md.DocumentCount,
		&result.Method, &durationMS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewAppError("NOT_FOUND", "filing not found: "+accession, common.ErrNotFound)
		}
		return nil, common.WrapError(err, "get filing")
	}
	result.ParseDuration = time.Duration(durationMS) * time.Millisecond

	facts, err := s.ListFacts(ctx, accession)
	if err != nil {
		return nil, err
	}
	result.Facts = facts
	return result, nil
}

// ListFacts returns a filing's facts in stored order.
func (s *ResultStore) ListFacts(ctx context.Context, accession string) ([]entity.Fact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT concept, value, unit_ref, context_ref, decimals, scale,
		       period_start, period_end, period_instant
		FROM facts WHERE accession_number = $1 ORDER BY seq`, accession)
	if err != nil {
		return nil, common.WrapError(err, "list facts")
	}
	defer rows.Close()

	var facts []entity.Fact
	for rows.Next() {
		var f entity.Fact
		if err := rows.Scan(&f.Concept, &f.Value, &f.UnitRef, &f.ContextRef,
			&f.Decimals, &f.Scale, &f.PeriodStart, &f.PeriodEnd, &f.PeriodInstant); err != nil {
			return nil, common.WrapError(err, "scan fact")
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// ListByDateRange lists processed filings whose filing date falls in
// [from, to], newest first.
func (s *ResultStore) ListByDateRange(ctx context.Context, from, to time.Time, formType string) ([]FilingSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT accession_number, cik, company_name, form_type, filed_at,
		       method, fact_count, processed_at
		FROM filings
		WHERE filed_at BETWEEN $1 AND $2
		  AND ($3 = '' OR form_type = $3)
		ORDER BY filed_at DESC, accession_number`, from, to, formType)
	if err != nil {
		return nil, common.WrapError(err, "list filings")
	}
	defer rows.Close()

	var out []FilingSummary
	for rows.Next() {
		var fs FilingSummary
		if err := rows.Scan(&fs.AccessionNumber, &fs.CIK, &fs.CompanyName, &fs.FormType,
			&fs.FiledAt, &fs.Method, &fs.FactCount, &fs.ProcessedAt); err != nil {
			return nil, common.WrapError(err, "scan filing summary")
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}
