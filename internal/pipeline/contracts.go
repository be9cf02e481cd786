// Package pipeline orchestrates filings through detection, the parser tier
// loop and durable outcome recording. It owns the per-filing state machine
// and the worker pool; persistence is consumed through the interfaces below
// so the repository layer stays swappable in tests.
package pipeline

import (
	"context"

	"github.com/edgarlab/filings-extractor/internal/entity"
)

// ResultStore persists successful extractions idempotently, keyed by
// accession number. Upsert replaces any prior result entirely and clears a
// dead-letter record for the same filing within the same logical operation.
type ResultStore interface {
	Upsert(ctx context.Context, result *entity.ExtractionResult) error
}

// DeadLetterQueue persists terminal failures with full attempt history.
// Record upserts by accession number; repeated failures accumulate history
// rather than duplicating rows. Record also removes any stored result for
// the same filing, mirroring ResultStore.Upsert clearing the dead letter:
// a filing is never on both sides at once.
type DeadLetterQueue interface {
	Record(ctx context.Context, rec *entity.DeadLetterRecord) error
}

// DocumentFetcher is the discovery collaborator's byte-fetch operation.
// The pipeline never initiates downloads beyond this boundary.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, filing entity.Filing) ([]byte, error)
}
