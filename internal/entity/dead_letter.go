package entity

import (
	"time"

	"github.com/edgarlab/filings-extractor/constants"
)

// ParseAttempt records one timed parser invocation against one filing.
// Appended in tier order; immutable once recorded.
type ParseAttempt struct {
	Parser     string                   `json:"parser"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Outcome    constants.AttemptOutcome `json:"outcome"`
	Detail     string                   `json:"detail,omitempty"`
}

// DeadLetterRecord is the durable record of a filing that exhausted all
// parsing tiers (or its terminal store write) without success.
type DeadLetterRecord struct {
	AccessionNumber string                 `json:"accession_number"`
	FailureClass    constants.FailureClass `json:"failure_class"`
	Attempts        []ParseAttempt         `json:"attempts"`
	AttemptCount    int                    `json:"attempt_count"`
	FirstFailedAt   time.Time              `json:"first_failed_at"`
	LastFailedAt    time.Time              `json:"last_failed_at"`
	RetryEligible   bool                   `json:"retry_eligible"`
	NextRetry       *time.Time             `json:"next_retry,omitempty"`
	DocumentURL     string                 `json:"document_url,omitempty"`
}
