// Package parse holds the extraction engine adapters and the tier-selection
// manager that drives them. Each adapter wraps exactly one engine behind a
// uniform contract; cross-engine policy lives only in the Manager.
package parse

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgarlab/filings-extractor/internal/entity"
)

// Stable adapter names, used for attempt records and tier bookkeeping.
const (
	ParserSGML    = "sgml"
	ParserXBRL    = "inline-xbrl"
	ParserGeneric = "generic"
)

// Adapter is the uniform capability contract over one extraction engine.
// Extract returns the structured result on success, or an error classified as
// *RecoverableError (this document, different engine may work) or *FatalError
// (this engine is unusable for the rest of the run). Any other error is
// treated as recoverable by the manager so a broken document can never take
// an engine out of rotation by accident.
type Adapter interface {
	Name() string
	Extract(ctx context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error)
}

// RecoverableError signals that the engine could not parse this specific
// document; the next tier should be tried.
type RecoverableError struct {
	Parser string
	Err    error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Parser, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// FatalError signals that the engine itself is unusable (misconfiguration,
// missing dependency). The manager disables the engine for the remainder of
// the run; other tiers still apply.
type FatalError struct {
	Parser string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: engine unusable: %v", e.Parser, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func recoverable(parser string, format string, args ...any) error {
	return &RecoverableError{Parser: parser, Err: fmt.Errorf(format, args...)}
}

func fatal(parser string, format string, args ...any) error {
	return &FatalError{Parser: parser, Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err marks the engine, not the document, as broken.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
