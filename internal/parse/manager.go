package parse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgarlab/filings-extractor/constants"
	"github.com/edgarlab/filings-extractor/internal/entity"
)

// ExhaustedError is returned when no configured tier produced a result.
// It carries the full attempt history for dead-lettering.
type ExhaustedError struct {
	Format   constants.DocumentFormat
	Attempts []entity.ParseAttempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all parsing tiers exhausted for format %s after %d attempts", e.Format, len(e.Attempts))
}

// Manager owns the ordered adapter chain per detected format and drives the
// tier loop: first success wins, recoverable failures escalate to the next
// tier, a fatal failure disables that engine for the remainder of the run.
// Tier order is authoritative; there is no scoring and no second detection
// pass.
type Manager struct {
	logger  *slog.Logger
	timeout time.Duration
	tiers   map[constants.DocumentFormat][]Adapter

	mu       sync.Mutex
	disabled map[string]struct{}
}

// ManagerConfig wires the concrete adapters. A nil adapter leaves its tiers
// unconfigured; the loop stops early when it reaches one.
type ManagerConfig struct {
	Timeout time.Duration
	SGML    Adapter
	XBRL    Adapter
	Generic Adapter
}

func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Manager{
		logger:  logger,
		timeout: cfg.Timeout,
		tiers: map[constants.DocumentFormat][]Adapter{
			constants.FormatInlineXBRL: tierChain(cfg.XBRL, cfg.Generic),
			constants.FormatSGML:       tierChain(cfg.SGML, cfg.Generic),
			constants.FormatUnknown:    tierChain(cfg.Generic),
		},
		disabled: make(map[string]struct{}),
	}
}

// tierChain truncates at the first unconfigured slot: once a tier has no
// implementation, later tiers are unreachable by definition.
func tierChain(adapters ...Adapter) []Adapter {
	var chain []Adapter
	for _, a := range adapters {
		if a == nil {
			break
		}
		chain = append(chain, a)
	}
	return chain
}

// Run drives the tier loop for one document. On success it returns the result
// together with every attempt made; on exhaustion the error is an
// *ExhaustedError carrying the same attempt list. Context cancellation from
// the caller (shutdown) propagates as-is.
func (m *Manager) Run(ctx context.Context, format constants.DocumentFormat, doc entity.RawDocument) (*entity.ExtractionResult, []entity.ParseAttempt, error) {
	var attempts []entity.ParseAttempt

	for _, adapter := range m.tiers[format] {
		name := adapter.Name()
		if m.isDisabled(name) {
			attempts = append(attempts, entity.ParseAttempt{
				Parser:     name,
				StartedAt:  time.Now().UTC(),
				FinishedAt: time.Now().UTC(),
				Outcome:    constants.OutcomeFatal,
				Detail:     "engine disabled earlier in this run",
			})
			continue
		}

		started := time.Now().UTC()
		result, err := m.runWithTimeout(ctx, adapter, doc)
		finished := time.Now().UTC()

		attempt := entity.ParseAttempt{
			Parser:     name,
			StartedAt:  started,
			FinishedAt: finished,
		}

		switch {
		case err == nil:
			attempt.Outcome = constants.OutcomeSuccess
			attempts = append(attempts, attempt)
			m.logger.Info("parser succeeded",
				"accession_number", doc.AccessionNumber, "parser", name,
				"format", string(format), "attempts", len(attempts),
			)
			return result, attempts, nil

		case errors.Is(err, context.Canceled):
			// Shutdown, not a document failure.
			return nil, attempts, err

		case errors.Is(err, context.DeadlineExceeded):
			attempt.Outcome = constants.OutcomeTimeout
			attempt.Detail = fmt.Sprintf("exceeded %s budget", m.timeout)
			m.logger.Warn("parser timed out",
				"accession_number", doc.AccessionNumber, "parser", name, "timeout", m.timeout)

		case IsFatal(err):
			attempt.Outcome = constants.OutcomeFatal
			attempt.Detail = err.Error()
			m.disable(name)
			m.logger.Error("parser engine disabled for run",
				"accession_number", doc.AccessionNumber, "parser", name, "error", err)

		default:
			attempt.Outcome = constants.OutcomeRecoverable
			attempt.Detail = err.Error()
			m.logger.Info("parser rejected document, escalating tier",
				"accession_number", doc.AccessionNumber, "parser", name, "error", err)
		}

		attempts = append(attempts, attempt)
	}

	return nil, attempts, &ExhaustedError{Format: format, Attempts: attempts}
}

// runWithTimeout executes one adapter under the per-attempt budget. Adapters
// are CPU-bound; the goroutine is left to finish on its own when the budget
// expires and its result is discarded.
func (m *Manager) runWithTimeout(ctx context.Context, adapter Adapter, doc entity.RawDocument) (*entity.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type outcome struct {
		result *entity.ExtractionResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := adapter.Extract(ctx, doc)
		ch <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		return out.result, out.err
	}
}

func (m *Manager) isDisabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.disabled[name]
	return ok
}

func (m *Manager) disable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled[name] = struct{}{}
}
