package parse

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/edgarlab/filings-extractor/internal/entity"
)

// SGMLAdapter extracts envelope metadata from legacy SEC-HEADER structured
// submissions. When the submission embeds inline XBRL documents, their facts
// are collected too, so a single pass over an SGML envelope yields both the
// header metadata and the tagged data points.
type SGMLAdapter struct {
	logger *slog.Logger
}

func NewSGMLAdapter(logger *slog.Logger) *SGMLAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SGMLAdapter{logger: logger}
}

func (a *SGMLAdapter) Name() string { return ParserSGML }

func (a *SGMLAdapter) Extract(ctx context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error) {
	start := time.Now()
	if len(doc.Content) == 0 {
		return nil, recoverable(ParserSGML, "empty document")
	}

	header, ok := headerBlock(doc.Content)
	if !ok {
		return nil, recoverable(ParserSGML, "no SEC-HEADER block found")
	}

	meta := parseHeader(header)
	if meta.AccessionNumber == "" {
		// A header block with no accession is garbage, not a filing.
		return nil, recoverable(ParserSGML, "header block carries no accession number")
	}
	if meta.AccessionNumber != "" && doc.AccessionNumber != "" && meta.AccessionNumber != doc.AccessionNumber {
		a.logger.Warn("header accession differs from envelope",
			"envelope", doc.AccessionNumber, "header", meta.AccessionNumber)
	}

	facts, docCount, err := embeddedFacts(ctx, doc.Content)
	if err != nil {
		return nil, recoverable(ParserSGML, "embedded document scan: %v", err)
	}
	if meta.DocumentCount == 0 {
		meta.DocumentCount = docCount
	}

	a.logger.Debug("sgml header parsed",
		"accession_number", meta.AccessionNumber,
		"form_type", meta.FormType, "documents", docCount, "facts", len(facts),
	)

	return &entity.ExtractionResult{
		AccessionNumber: doc.AccessionNumber,
		Metadata:        meta,
		Facts:           facts,
		Method:          ParserSGML,
		ParseDuration:   time.Since(start),
	}, nil
}

// headerBlock returns the SEC-HEADER section, or the leading portion of the
// document when the closing tag is missing (truncated filings are common in
// the older corpus).
func headerBlock(content []byte) ([]byte, bool) {
	upper := bytes.ToUpper(content)
	begin := bytes.Index(upper, []byte("<SEC-HEADER>"))
	if begin < 0 {
		// Some very old submissions ship the header fields bare.
		if bytes.Contains(upper, []byte("ACCESSION NUMBER:")) {
			return content, true
		}
		return nil, false
	}
	rest := content[begin:]
	if end := bytes.Index(bytes.ToUpper(rest), []byte("</SEC-HEADER>")); end >= 0 {
		return rest[:end], true
	}
	return rest, true
}

// parseHeader reads the KEY: value lines of a header block. Indentation marks
// filer sub-sections; the keys themselves are unique enough that a flat scan
// recovers everything this pipeline stores.
func parseHeader(header []byte) entity.FilingMetadata {
	var meta entity.FilingMetadata
	for _, line := range strings.Split(string(header), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "ACCESSION NUMBER":
			meta.AccessionNumber = value
		case "CONFORMED SUBMISSION TYPE":
			meta.FormType = value
		case "COMPANY CONFORMED NAME":
			if meta.CompanyName == "" {
				meta.CompanyName = value
			}
		case "CENTRAL INDEX KEY":
			if meta.CIK == "" {
				meta.CIK = strings.TrimLeft(value, "0")
			}
		case "FILED AS OF DATE":
			meta.FiledAt = parseHeaderDate(value)
		case "CONFORMED PERIOD OF REPORT":
			meta.PeriodOfReport = parseHeaderDate(value)
		case "STANDARD INDUSTRIAL CLASSIFICATION":
			meta.SIC = sicCode(value)
		case "STATE OF INCORPORATION":
			if meta.StateOfIncorporation == "" {
				meta.StateOfIncorporation = value
			}
		case "FISCAL YEAR END":
			if meta.FiscalYearEnd == "" {
				meta.FiscalYearEnd = value
			}
		case "PUBLIC DOCUMENT COUNT":
			if n, err := strconv.Atoi(value); err == nil {
				meta.DocumentCount = n
			}
		}
	}
	return meta
}

// parseHeaderDate reads the compact YYYYMMDD form used by header fields.
func parseHeaderDate(v string) *time.Time {
	if t, err := time.Parse("20060102", v); err == nil {
		return &t
	}
	return nil
}

// sicCode extracts the bracketed code from values like
// "INVESTMENT OFFICES [6722]".
func sicCode(v string) string {
	open := strings.IndexByte(v, '[')
	end := strings.IndexByte(v, ']')
	if open >= 0 && end > open {
		return strings.TrimSpace(v[open+1 : end])
	}
	return ""
}

// embeddedFacts walks the <DOCUMENT> sections of a submission and scans any
// fact-tagged ones for inline XBRL facts.
func embeddedFacts(ctx context.Context, content []byte) ([]entity.Fact, int, error) {
	var facts []entity.Fact
	count := 0
	rest := content
	for {
		begin := bytes.Index(bytes.ToUpper(rest), []byte("<DOCUMENT>"))
		if begin < 0 {
			break
		}
		rest = rest[begin+len("<DOCUMENT>"):]
		count++

		segment := rest
		if end := bytes.Index(bytes.ToUpper(rest), []byte("</DOCUMENT>")); end >= 0 {
			segment = rest[:end]
			rest = rest[end:]
		} else {
			rest = nil
		}

		if !hasInlineMarkers(segment) {
			if rest == nil {
				break
			}
			continue
		}
		segFacts, contexts, err := scanInlineFacts(ctx, segment)
		if err != nil {
			return nil, count, err
		}
		resolvePeriods(segFacts, contexts)
		facts = append(facts, segFacts...)
		if rest == nil {
			break
		}
	}
	return facts, count, nil
}

func hasInlineMarkers(segment []byte) bool {
	lower := bytes.ToLower(segment)
	return bytes.Contains(lower, []byte("xmlns:ix=")) ||
		bytes.Contains(lower, []byte("<ix:")) ||
		bytes.Contains(lower, []byte("xbrl.org"))
}
