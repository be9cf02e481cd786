package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgarlab/filings-extractor/constants"
	"github.com/edgarlab/filings-extractor/internal/common"
	"github.com/edgarlab/filings-extractor/internal/entity"
)

// DeadLetterRepository stores terminal failures, one row per accession
// number. Repeated failures fold into the existing row: attempt history
// accumulates as a JSONB array and attempt_count counts dead-letter events,
// not individual parser attempts.
type DeadLetterRepository struct {
	pool        *pgxpool.Pool
	logger      *slog.Logger
	maxAttempts int
	retryAfter  time.Duration
}

func NewDeadLetterRepository(pool *pgxpool.Pool, maxAttempts int, retryAfter time.Duration, logger *slog.Logger) *DeadLetterRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &DeadLetterRepository{
		pool:        pool,
		logger:      logger,
		maxAttempts: maxAttempts,
		retryAfter:  retryAfter,
	}
}

func (r *DeadLetterRepository) Record(ctx context.Context, rec *entity.DeadLetterRecord) error {
	if rec == nil || rec.AccessionNumber == "" {
		return common.NewAppError("VALIDATION_ERROR", "dead letter missing accession number", common.ErrInvalidInput)
	}
	if len(rec.Attempts) == 0 {
		return common.NewAppError("VALIDATION_ERROR", "dead letter must carry at least one attempt", common.ErrInvalidInput)
	}

	attempts, err := json.Marshal(rec.Attempts)
	if err != nil {
		return common.WrapError(err, "encode attempts")
	}
	now := rec.LastFailedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	first := rec.FirstFailedAt
	if first.IsZero() {
		first = now
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin dead letter record")
	}
	defer tx.Rollback(ctx)

	// A filing lives in exactly one of filings / dead_letters. A stale
	// result from an earlier run must not survive a later exhaustion, so
	// the filings row (and its facts, via cascade) goes in the same
	// transaction that records the failure.
	if _, err := tx.Exec(ctx, `DELETE FROM filings WHERE accession_number = $1`, rec.AccessionNumber); err != nil {
		return common.WrapError(err, "clear stale result")
	}

	// On conflict the attempt arrays concatenate and attempt_count bumps by
	// one; eligibility is recomputed from the post-bump count so the row
	// flips to ineligible exactly when the budget is spent.
	_, err = tx.Exec(ctx, `
		INSERT INTO dead_letters (
			accession_number, failure_class, attempts, attempt_count,
			max_attempts, retry_eligible, first_failed_at, last_failed_at,
			next_retry, document_url
		) VALUES ($1,$2,$3,1,$4,1 < $4,$5,$6,
		          CASE WHEN 1 < $4 THEN $6::timestamptz + make_interval(secs => $7) END,$8)
		ON CONFLICT (accession_number) DO UPDATE SET
			failure_class = EXCLUDED.failure_class,
			attempts = dead_letters.attempts || EXCLUDED.attempts,
			attempt_count = dead_letters.attempt_count + 1,
			max_attempts = EXCLUDED.max_attempts,
			retry_eligible = dead_letters.attempt_count + 1 < EXCLUDED.max_attempts,
			last_failed_at = EXCLUDED.last_failed_at,
			next_retry = CASE
				WHEN dead_letters.attempt_count + 1 < EXCLUDED.max_attempts
				THEN EXCLUDED.last_failed_at + make_interval(secs => $7)
			END,
			document_url = EXCLUDED.document_url`,
		rec.AccessionNumber, string(rec.FailureClass), string(attempts),
		r.maxAttempts, first, now, r.retryAfter.Seconds(), rec.DocumentURL,
	)
	if err != nil {
		return common.WrapError(err, "record dead letter")
	}
	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit dead letter record")
	}
	r.logger.Debug("dead letter recorded",
		"accession_number", rec.AccessionNumber, "failure_class", string(rec.FailureClass))
	return nil
}

// Get returns the dead-letter row for one accession number.
func (r *DeadLetterRepository) Get(ctx context.Context, accession string) (*entity.DeadLetterRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT accession_number, failure_class, attempts, attempt_count,
		       retry_eligible, first_failed_at, last_failed_at, next_retry, document_url
		FROM dead_letters WHERE accession_number = $1`, accession)
	rec, err := scanDeadLetter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewAppError("NOT_FOUND", "no dead letter for "+accession, common.ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// List returns dead letters, optionally filtered by failure class, most
// recent failures first.
func (r *DeadLetterRepository) List(ctx context.Context, class constants.FailureClass, limit int) ([]entity.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT accession_number, failure_class, attempts, attempt_count,
		       retry_eligible, first_failed_at, last_failed_at, next_retry, document_url
		FROM dead_letters
		WHERE ($1 = '' OR failure_class = $1)
		ORDER BY last_failed_at DESC
		LIMIT $2`, string(class), limit)
	if err != nil {
		return nil, common.WrapError(err, "list dead letters")
	}
	defer rows.Close()
	return collectDeadLetters(rows)
}

// ListRetryable returns rows whose retry window has opened. Used by the
// requeue path to pick candidates without hand-picking accessions.
func (r *DeadLetterRepository) ListRetryable(ctx context.Context, limit int) ([]entity.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT accession_number, failure_class, attempts, attempt_count,
		       retry_eligible, first_failed_at, last_failed_at, next_retry, document_url
		FROM dead_letters
		WHERE retry_eligible AND (next_retry IS NULL OR next_retry <= now())
		ORDER BY last_failed_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, common.WrapError(err, "list retryable dead letters")
	}
	defer rows.Close()
	return collectDeadLetters(rows)
}

// Requeue hands back the filing identity for a fresh submission. The row
// itself stays put; only a successful result upsert removes it.
func (r *DeadLetterRepository) Requeue(ctx context.Context, accession string) (entity.Filing, error) {
	rec, err := r.Get(ctx, accession)
	if err != nil {
		return entity.Filing{}, err
	}
	if !rec.RetryEligible {
		return entity.Filing{}, common.NewAppError("RETRY_EXHAUSTED",
			"dead letter is out of retries: "+accession, common.ErrInvalidInput)
	}
	return entity.Filing{
		AccessionNumber: rec.AccessionNumber,
		DocumentURL:     rec.DocumentURL,
	}, nil
}

// Remove deletes a dead letter outright, for operator-driven discards.
func (r *DeadLetterRepository) Remove(ctx context.Context, accession string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dead_letters WHERE accession_number = $1`, accession)
	if err != nil {
		return common.WrapError(err, "remove dead letter")
	}
	if tag.RowsAffected() == 0 {
		return common.NewAppError("NOT_FOUND", "no dead letter for "+accession, common.ErrNotFound)
	}
	return nil
}

// Stats counts dead letters per failure class.
func (r *DeadLetterRepository) Stats(ctx context.Context) (map[constants.FailureClass]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT failure_class, count(*) FROM dead_letters GROUP BY failure_class`)
	if err != nil {
		return nil, common.WrapError(err, "dead letter stats")
	}
	defer rows.Close()

	stats := make(map[constants.FailureClass]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, common.WrapError(err, "scan stats")
		}
		stats[constants.FailureClass(class)] = n
	}
	return stats, rows.Err()
}

func scanDeadLetter(row pgx.Row) (*entity.DeadLetterRecord, error) {
	var rec entity.DeadLetterRecord
	var class string
	var attempts []byte
	if err := row.Scan(&rec.AccessionNumber, &class, &attempts, &rec.AttemptCount,
		&rec.RetryEligible, &rec.FirstFailedAt, &rec.LastFailedAt, &rec.NextRetry,
		&rec.DocumentURL); err != nil {
		return nil, err
	}
	rec.FailureClass = constants.FailureClass(class)
	if err := json.Unmarshal(attempts, &rec.Attempts); err != nil {
		return nil, common.WrapError(err, "decode attempts")
	}
	return &rec, nil
}

func collectDeadLetters(rows pgx.Rows) ([]entity.DeadLetterRecord, error) {
	var out []entity.DeadLetterRecord
	for rows.Next() {
		rec, err := scanDeadLetter(rows)
		if err != nil {
			return nil, common.WrapError(err, "scan dead letter")
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
