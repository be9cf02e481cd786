package parse

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/edgarlab/filings-extractor/internal/entity"
)

// XBRLAdapter extracts tagged facts from inline XBRL documents. It wraps a
// tolerant token scan rather than a validating XML parse: filings are HTML
// first and XML second, and a well-formedness error halfway through must not
// discard the facts already seen.
type XBRLAdapter struct {
	logger *slog.Logger
}

func NewXBRLAdapter(logger *slog.Logger) *XBRLAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &XBRLAdapter{logger: logger}
}

func (a *XBRLAdapter) Name() string { return ParserXBRL }

func (a *XBRLAdapter) Extract(ctx context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error) {
	start := time.Now()
	if len(doc.Content) == 0 {
		return nil, recoverable(ParserXBRL, "empty document")
	}

	facts, contexts, err := scanInlineFacts(ctx, doc.Content)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, recoverable(ParserXBRL, "no inline facts found")
	}
	resolvePeriods(facts, contexts)

	meta := entity.FilingMetadata{AccessionNumber: doc.AccessionNumber}
	applyDEIFacts(&meta, facts)

	a.logger.Debug("inline xbrl extracted",
		"accession_number", doc.AccessionNumber,
		"facts", len(facts), "contexts", len(contexts),
	)

	return &entity.ExtractionResult{
		AccessionNumber: doc.AccessionNumber,
		Metadata:        meta,
		Facts:           facts,
		Method:          ParserXBRL,
		ParseDuration:   time.Since(start),
	}, nil
}

// xbrlPeriod is the reporting period of one xbrli:context element.
type xbrlPeriod struct {
	start    *time.Time
	end      *time.Time
	instant  *time.Time
	entityID string
}

// scanInlineFacts walks the token stream collecting ix:nonFraction,
// ix:nonNumeric and ix:fraction elements plus xbrli:context periods.
// A malformed tail ends the scan without failing it.
func scanInlineFacts(ctx context.Context, content []byte) ([]entity.Fact, map[string]xbrlPeriod, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var facts []entity.Fact
	contexts := make(map[string]xbrlPeriod)

	for n := 0; ; n++ {
		if n%1024 == 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			default:
			}
		}

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		local := strings.ToLower(se.Name.Local)
		switch {
		case isInlineNamespace(se.Name.Space) && (local == "nonfraction" || local == "nonnumeric" || local == "fraction"):
			if f, ok := factFromElement(dec, se); ok {
				facts = append(facts, f)
			}
		case local == "context":
			id, p := contextFromElement(dec, se)
			if id != "" {
				contexts[id] = p
			}
		}
	}
	return facts, contexts, nil
}

func isInlineNamespace(space string) bool {
	if space == "ix" {
		return true
	}
	return strings.Contains(strings.ToLower(space), "inlinexbrl")
}

// factFromElement reads one ix fact element, including nested markup, and
// returns it with the text content as the value.
func factFromElement(dec *xml.Decoder, se xml.StartElement) (entity.Fact, bool) {
	var f entity.Fact
	var sign string
	for _, attr := range se.Attr {
		switch strings.ToLower(attr.Name.Local) {
		case "name":
			f.Concept = attr.Value
		case "contextref":
			f.ContextRef = attr.Value
		case "unitref":
			f.UnitRef = attr.Value
		case "decimals":
			if v, err := strconv.Atoi(attr.Value); err == nil {
				f.Decimals = &v
			}
		case "scale":
			if v, err := strconv.Atoi(attr.Value); err == nil {
				f.Scale = &v
			}
		case "sign":
			sign = attr.Value
		}
	}

	var text strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			text.Write(t)
		}
	}

	f.Value = strings.TrimSpace(text.String())
	if sign == "-" && f.Value != "" {
		f.Value = "-" + f.Value
	}
	return f, f.Concept != ""
}

// contextFromElement reads one xbrli:context element and returns its id and
// period. Unrecognized children are skipped.
func contextFromElement(dec *xml.Decoder, se xml.StartElement) (string, xbrlPeriod) {
	var id string
	for _, attr := range se.Attr {
		if strings.ToLower(attr.Name.Local) == "id" {
			id = attr.Value
		}
	}

	var p xbrlPeriod
	current := ""
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			current = strings.ToLower(t.Name.Local)
		case xml.EndElement:
			depth--
			current = ""
		case xml.CharData:
			v := strings.TrimSpace(string(t))
			if v == "" {
				continue
			}
			switch current {
			case "startdate":
				p.start = parseXBRLDate(v)
			case "enddate":
				p.end = parseXBRLDate(v)
			case "instant":
				p.instant = parseXBRLDate(v)
			case "identifier":
				p.entityID = v
			}
		}
	}
	return id, p
}

func parseXBRLDate(v string) *time.Time {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

func resolvePeriods(facts []entity.Fact, contexts map[string]xbrlPeriod) {
	for i := range facts {
		p, ok := contexts[facts[i].ContextRef]
		if !ok {
			continue
		}
		facts[i].PeriodStart = p.start
		facts[i].PeriodEnd = p.end
		facts[i].PeriodInstant = p.instant
	}
}

// applyDEIFacts fills document-level metadata from the standard dei concepts
// when present.
func applyDEIFacts(meta *entity.FilingMetadata, facts []entity.Fact) {
	for _, f := range facts {
		name := f.Concept
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		switch {
		case strings.EqualFold(name, "EntityRegistrantName") && meta.CompanyName == "":
			meta.CompanyName = f.Value
		case strings.EqualFold(name, "EntityCentralIndexKey") && meta.CIK == "":
			meta.CIK = strings.TrimLeft(f.Value, "0")
		case strings.EqualFold(name, "DocumentType") && meta.FormType == "":
			meta.FormType = f.Value
		case strings.EqualFold(name, "DocumentPeriodEndDate") && meta.PeriodOfReport == nil:
			meta.PeriodOfReport = parseXBRLDate(f.Value)
		case strings.EqualFold(name, "CurrentFiscalYearEndDate") && meta.FiscalYearEnd == "":
			meta.FiscalYearEnd = f.Value
		}
	}
}
