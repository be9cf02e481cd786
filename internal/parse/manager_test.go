package parse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgarlab/filings-extractor/constants"
	"github.com/edgarlab/filings-extractor/internal/entity"
)

// stubAdapter scripts one engine's behavior per call.
type stubAdapter struct {
	name  string
	calls int
	fn    func(ctx context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error)
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Extract(ctx context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error) {
	s.calls++
	return s.fn(ctx, doc)
}

func succeeding(name string) *stubAdapter {
	return &stubAdapter{name: name, fn: func(_ context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error) {
		return &entity.ExtractionResult{AccessionNumber: doc.AccessionNumber, Method: name}, nil
	}}
}

func rejecting(name string) *stubAdapter {
	return &stubAdapter{name: name, fn: func(context.Context, entity.RawDocument) (*entity.ExtractionResult, error) {
		return nil, recoverable(name, "cannot parse this document")
	}}
}

func broken(name string) *stubAdapter {
	return &stubAdapter{name: name, fn: func(context.Context, entity.RawDocument) (*entity.ExtractionResult, error) {
		return nil, fatal(name, "engine dependency missing")
	}}
}

func hanging(name string) *stubAdapter {
	return &stubAdapter{name: name, fn: func(ctx context.Context, _ entity.RawDocument) (*entity.ExtractionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func newTestManager(sgml, xbrl, generic Adapter, timeout time.Duration) *Manager {
	return NewManager(ManagerConfig{
		Timeout: timeout,
		SGML:    sgml,
		XBRL:    xbrl,
		Generic: generic,
	}, nil)
}

var testDoc = entity.RawDocument{AccessionNumber: "0000320193-25-000073", Content: []byte("x")}

func TestManagerFirstTierWins(t *testing.T) {
	sgml := succeeding(ParserSGML)
	generic := succeeding(ParserGeneric)
	m := newTestManager(sgml, succeeding(ParserXBRL), generic, time.Second)

	result, attempts, err := m.Run(context.Background(), constants.FormatSGML, testDoc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Method != ParserSGML {
		t.Errorf("method = %q", result.Method)
	}
	if generic.calls != 0 {
		t.Error("later tier ran after an earlier success")
	}
	if len(attempts) != 1 || attempts[0].Outcome != constants.OutcomeSuccess {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestManagerRecoverableEscalates(t *testing.T) {
	m := newTestManager(rejecting(ParserSGML), nil, succeeding(ParserGeneric), time.Second)

	result, attempts, err := m.Run(context.Background(), constants.FormatSGML, testDoc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Method != ParserGeneric {
		t.Errorf("method = %q, want fallback tier", result.Method)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %+v", attempts)
	}
	if attempts[0].Outcome != constants.OutcomeRecoverable || attempts[1].Outcome != constants.OutcomeSuccess {
		t.Errorf("attempt outcomes = %q, %q", attempts[0].Outcome, attempts[1].Outcome)
	}
}

func TestManagerExhaustion(t *testing.T) {
	m := newTestManager(rejecting(ParserSGML), nil, rejecting(ParserGeneric), time.Second)

	_, _, err := m.Run(context.Background(), constants.FormatSGML, testDoc)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want ExhaustedError", err)
	}
	if exhausted.Format != constants.FormatSGML {
		t.Errorf("format = %q", exhausted.Format)
	}
	if len(exhausted.Attempts) != 2 {
		t.Errorf("attempts = %+v", exhausted.Attempts)
	}
	for _, a := range exhausted.Attempts {
		if a.Detail == "" {
			t.Error("exhausted attempt missing detail")
		}
	}
}

func TestManagerFatalDisablesEngineForRun(t *testing.T) {
	sgml := broken(ParserSGML)
	m := newTestManager(sgml, nil, succeeding(ParserGeneric), time.Second)

	result, attempts, err := m.Run(context.Background(), constants.FormatSGML, testDoc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Method != ParserGeneric {
		t.Errorf("method = %q", result.Method)
	}
	if attempts[0].Outcome != constants.OutcomeFatal {
		t.Errorf("first outcome = %q", attempts[0].Outcome)
	}

	// Second document in the same run must not touch the broken engine.
	_, attempts2, err := m.Run(context.Background(), constants.FormatSGML, testDoc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sgml.calls != 1 {
		t.Errorf("disabled engine called %d times, want 1", sgml.calls)
	}
	if attempts2[0].Outcome != constants.OutcomeFatal || attempts2[0].Detail == "" {
		t.Errorf("synthetic disabled attempt = %+v", attempts2[0])
	}
}

func TestManagerTimeoutIsRecoverable(t *testing.T) {
	m := newTestManager(hanging(ParserSGML), nil, succeeding(ParserGeneric), 20*time.Millisecond)

	result, attempts, err := m.Run(context.Background(), constants.FormatSGML, testDoc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Method != ParserGeneric {
		t.Errorf("method = %q, want escalation past the timeout", result.Method)
	}
	if attempts[0].Outcome != constants.OutcomeTimeout {
		t.Errorf("first outcome = %q", attempts[0].Outcome)
	}
}

func TestManagerTimeoutDoesNotDisableEngine(t *testing.T) {
	sgml := hanging(ParserSGML)
	m := newTestManager(sgml, nil, succeeding(ParserGeneric), 20*time.Millisecond)

	if _, _, err := m.Run(context.Background(), constants.FormatSGML, testDoc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, _, err := m.Run(context.Background(), constants.FormatSGML, testDoc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sgml.calls != 2 {
		t.Errorf("timed-out engine called %d times, want 2 (stays in rotation)", sgml.calls)
	}
}

func TestManagerCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestManager(hanging(ParserSGML), nil, succeeding(ParserGeneric), time.Second)
	_, _, err := m.Run(ctx, constants.FormatSGML, testDoc)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestManagerTierChains(t *testing.T) {
	sgml := succeeding(ParserSGML)
	xbrl := succeeding(ParserXBRL)
	generic := succeeding(ParserGeneric)
	m := newTestManager(sgml, xbrl, generic, time.Second)

	tests := []struct {
		format constants.DocumentFormat
		want   string
	}{
		{constants.FormatSGML, ParserSGML},
		{constants.FormatInlineXBRL, ParserXBRL},
		{constants.FormatUnknown, ParserGeneric},
	}
	for _, tt := range tests {
		result, _, err := m.Run(context.Background(), tt.format, testDoc)
		if err != nil {
			t.Fatalf("Run(%s) error = %v", tt.format, err)
		}
		if result.Method != tt.want {
			t.Errorf("format %s routed to %q, want %q", tt.format, result.Method, tt.want)
		}
	}
}

func TestTierChainTruncatesAtNil(t *testing.T) {
	chain := tierChain(nil, succeeding(ParserGeneric))
	if len(chain) != 0 {
		t.Errorf("chain length = %d, want truncation at first nil", len(chain))
	}
	chain = tierChain(succeeding(ParserSGML), nil)
	if len(chain) != 1 {
		t.Errorf("chain length = %d, want 1", len(chain))
	}
}
