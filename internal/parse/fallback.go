package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/edgarlab/filings-extractor/internal/entity"
)

// GenericAdapter is the last-resort tier: a dialect-free text scan that
// recovers labelled numeric facts from whatever markup or plain text it is
// handed. Its output is validated against a JSON schema before it is accepted
// as a success, so a degenerate scan cannot masquerade as an extraction.
type GenericAdapter struct {
	logger *slog.Logger
	schema *jsonschema.Schema
}

// Labelled money and percentage lines, e.g.
// "Total Net Assets ... $1,234,567" or "Expense Ratio: 0.45%".
var (
	reMoneyLine   = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z0-9 ,./()&'-]{2,80}?)[\s.:]*\$\s?(-?[\d,]+(?:\.\d+)?)\s*$`)
	rePercentLine = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z0-9 ,./()&'-]{2,80}?)[\s.:]*(-?\d+(?:\.\d+)?)\s?%\s*$`)
	reTags        = regexp.MustCompile(`(?s)<[^>]*>`)
)

func NewGenericAdapter(logger *slog.Logger) *GenericAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileResultSchema()
	if err != nil {
		// Extract reports this as a fatal engine failure; construction
		// stays infallible so wiring code does not need an error path.
		logger.Error("generic adapter schema compile failed", "error", err)
		schema = nil
	}
	return &GenericAdapter{logger: logger, schema: schema}
}

func (a *GenericAdapter) Name() string { return ParserGeneric }

func (a *GenericAdapter) Extract(ctx context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error) {
	start := time.Now()
	if a.schema == nil {
		return nil, fatal(ParserGeneric, "result schema unavailable")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	text := stripMarkup(doc.Content)
	if !extractableText(text) {
		return nil, recoverable(ParserGeneric, "no extractable text")
	}

	var facts []entity.Fact
	for _, m := range reMoneyLine.FindAllStringSubmatch(text, -1) {
		facts = append(facts, entity.Fact{
			Concept: normalizeLabel(m[1]),
			Value:   strings.ReplaceAll(m[2], ",", ""),
			UnitRef: "USD",
		})
	}
	for _, m := range rePercentLine.FindAllStringSubmatch(text, -1) {
		facts = append(facts, entity.Fact{
			Concept: normalizeLabel(m[1]),
			Value:   m[2],
			UnitRef: "pure",
		})
	}

	result := &entity.ExtractionResult{
		AccessionNumber: doc.AccessionNumber,
		Metadata:        entity.FilingMetadata{AccessionNumber: doc.AccessionNumber},
		Facts:           facts,
		Method:          ParserGeneric,
		ParseDuration:   time.Since(start),
	}
	if err := a.validate(result); err != nil {
		return nil, recoverable(ParserGeneric, "result failed validation: %v", err)
	}

	a.logger.Debug("generic extraction",
		"accession_number", doc.AccessionNumber, "facts", len(facts), "text_bytes", len(text),
	)
	return result, nil
}

func (a *GenericAdapter) validate(result *entity.ExtractionResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return a.schema.Validate(v)
}

// resultSchemaMap is the shape contract for generic extractions: the filing
// identity must survive, and every fact must carry a concept and a value.
func resultSchemaMap() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"accession_number", "facts"},
		"properties": map[string]any{
			"accession_number": map[string]any{"type": "string", "minLength": 1},
			"facts": map[string]any{
				"type": []any{"array", "null"},
				"items": map[string]any{
					"type":     "object",
					"required": []any{"concept", "value"},
					"properties": map[string]any{
						"concept": map[string]any{"type": "string", "minLength": 1},
						"value":   map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
		},
	}
}

func compileResultSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(resultSchemaMap())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("result.json")
}

// stripMarkup drops tags and collapses entities enough for line-oriented
// matching. It is deliberately crude; the generic tier trades precision for
// never depending on document structure.
func stripMarkup(content []byte) string {
	text := reTags.ReplaceAllString(string(content), " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	return text
}

// extractableText rejects empty and mostly-binary buffers.
func extractableText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if !utf8.ValidString(trimmed) {
		return false
	}
	printable := 0
	total := 0
	for _, r := range trimmed {
		total++
		if r == '\n' || r == '\t' || (r >= 0x20 && r != 0xFFFD) {
			printable++
		}
	}
	return total > 0 && printable*10 >= total*9
}

func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}
