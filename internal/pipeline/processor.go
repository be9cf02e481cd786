package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgarlab/filings-extractor/constants"
	"github.com/edgarlab/filings-extractor/internal/detect"
	"github.com/edgarlab/filings-extractor/internal/entity"
	"github.com/edgarlab/filings-extractor/internal/parse"
)

// Outcome is the terminal record of one filing's trip through the processor.
type Outcome struct {
	AccessionNumber string
	State           constants.ProcessingState
	Format          constants.DocumentFormat
	Attempts        []entity.ParseAttempt
	Result          *entity.ExtractionResult
	FailureClass    constants.FailureClass
}

// Processor drives one filing at a time through the state machine
// received -> detecting -> parsing -> succeeded, or -> exhausted ->
// dead_lettered. Per-filing errors are captured into the outcome and
// persisted; only context cancellation escapes.
type Processor struct {
	logger         *slog.Logger
	manager        *parse.Manager
	results        ResultStore
	deadLetters    DeadLetterQueue
	storageRetries int
}

func NewProcessor(manager *parse.Manager, results ResultStore, deadLetters DeadLetterQueue, storageRetries int, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if storageRetries < 0 {
		storageRetries = 0
	}
	return &Processor{
		logger:         logger,
		manager:        manager,
		results:        results,
		deadLetters:    deadLetters,
		storageRetries: storageRetries,
	}
}

// Process runs one filing to a terminal state. The returned error is non-nil
// only when the terminal write itself could not be recorded anywhere, or on
// cancellation during shutdown.
func (p *Processor) Process(ctx context.Context, filing entity.Filing, content []byte) (*Outcome, error) {
	doc := entity.RawDocument{AccessionNumber: filing.AccessionNumber, Content: content}

	format := detect.Detect(content)
	p.logger.Info("document classified",
		"accession_number", filing.AccessionNumber, "format", string(format), "bytes", len(content))

	result, attempts, err := p.manager.Run(ctx, format, doc)

	switch {
	case err == nil:
		if storeErr := p.upsertWithRetry(ctx, result); storeErr != nil {
			// Parsing won but the result is not durable; the filing is
			// not Succeeded. Escalate to the dead-letter queue.
			p.logger.Error("result store unavailable, dead-lettering",
				"accession_number", filing.AccessionNumber, "error", storeErr)
			return p.deadLetter(ctx, filing, format, attempts, constants.FailureStorage)
		}
		p.logger.Info("filing processed",
			"accession_number", filing.AccessionNumber,
			"parser", result.Method, "facts", len(result.Facts), "attempts", len(attempts),
		)
		return &Outcome{
			AccessionNumber: filing.AccessionNumber,
			State:           constants.StateSucceeded,
			Format:          format,
			Attempts:        attempts,
			Result:          result,
		}, nil

	case errors.Is(err, context.Canceled):
		return nil, err

	default:
		var exhausted *parse.ExhaustedError
		if !errors.As(err, &exhausted) {
			// Manager only returns success, cancellation or exhaustion;
			// anything else is a programming error worth surfacing loudly.
			return nil, fmt.Errorf("unexpected parser manager failure: %w", err)
		}
		return p.deadLetter(ctx, filing, format, exhausted.Attempts, classifyExhaustion(format, exhausted.Attempts))
	}
}

// upsertWithRetry applies the bounded immediate-retry policy for transient
// storage failures. This is deliberately separate from tier fallback: a
// storage retry re-runs the same write, never a different engine.
func (p *Processor) upsertWithRetry(ctx context.Context, result *entity.ExtractionResult) error {
	var err error
	for attempt := 0; attempt <= p.storageRetries; attempt++ {
		if err = p.results.Upsert(ctx, result); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.logger.Warn("result upsert failed",
			"accession_number", result.AccessionNumber, "attempt", attempt+1, "error", err)
	}
	return err
}

func (p *Processor) deadLetter(ctx context.Context, filing entity.Filing, format constants.DocumentFormat, attempts []entity.ParseAttempt, class constants.FailureClass) (*Outcome, error) {
	now := time.Now().UTC()
	rec := &entity.DeadLetterRecord{
		AccessionNumber: filing.AccessionNumber,
		FailureClass:    class,
		Attempts:        attempts,
		AttemptCount:    1,
		FirstFailedAt:   now,
		LastFailedAt:    now,
		DocumentURL:     filing.DocumentURL,
	}

	var err error
	for attempt := 0; attempt <= p.storageRetries; attempt++ {
		if err = p.deadLetters.Record(ctx, rec); err == nil {
			p.logger.Warn("filing dead-lettered",
				"accession_number", filing.AccessionNumber,
				"failure_class", string(class), "attempts", len(attempts),
			)
			return &Outcome{
				AccessionNumber: filing.AccessionNumber,
				State:           constants.StateDeadLettered,
				Format:          format,
				Attempts:        attempts,
				FailureClass:    class,
			}, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("record dead letter for %s: %w", filing.AccessionNumber, err)
}

// classifyExhaustion derives the failure class from what the tier loop saw.
func classifyExhaustion(format constants.DocumentFormat, attempts []entity.ParseAttempt) constants.FailureClass {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Outcome == constants.OutcomeTimeout {
			return constants.FailureTimeout
		}
	}
	if format == constants.FormatUnknown {
		return constants.FailureUnknownFormat
	}
	return constants.FailureParsing
}
