package parse

import (
	"context"
	"errors"
	"testing"

	"github.com/edgarlab/filings-extractor/internal/entity"
)

func TestGenericExtractLabelledLines(t *testing.T) {
	content := `SCHEDULE OF INVESTMENTS

Total Net Assets   $1,234,567
Management Fee: 0.45%
Total Liabilities . . . $89,000
`
	a := NewGenericAdapter(nil)
	result, err := a.Extract(context.Background(), entity.RawDocument{
		AccessionNumber: "0000912057-94-000123",
		Content:         []byte(content),
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Method != ParserGeneric {
		t.Errorf("method = %q", result.Method)
	}
	if len(result.Facts) != 3 {
		t.Fatalf("got %d facts, want 3: %+v", len(result.Facts), result.Facts)
	}

	byConcept := map[string]entity.Fact{}
	for _, f := range result.Facts {
		byConcept[f.Concept] = f
	}
	if f := byConcept["Total Net Assets"]; f.Value != "1234567" || f.UnitRef != "USD" {
		t.Errorf("net assets = %+v, want commas stripped and USD unit", f)
	}
	if f := byConcept["Management Fee"]; f.Value != "0.45" || f.UnitRef != "pure" {
		t.Errorf("management fee = %+v", f)
	}
	if _, ok := byConcept["Total Liabilities"]; !ok {
		t.Errorf("dotted leader line not matched: %+v", result.Facts)
	}
}

func TestGenericExtractStripsMarkup(t *testing.T) {
	content := "<html><body>\n<b>Total Assets</b> $5,000\n</body></html>"
	a := NewGenericAdapter(nil)
	result, err := a.Extract(context.Background(), entity.RawDocument{
		AccessionNumber: "x",
		Content:         []byte(content),
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(result.Facts) != 1 || result.Facts[0].Concept != "Total Assets" {
		t.Fatalf("facts = %+v", result.Facts)
	}
}

func TestGenericExtractNoFactsStillSucceeds(t *testing.T) {
	// Plain prose with no labelled numbers is a valid, empty extraction;
	// the last tier accepting it is what keeps readable documents out of
	// the dead-letter queue.
	a := NewGenericAdapter(nil)
	result, err := a.Extract(context.Background(), entity.RawDocument{
		AccessionNumber: "x",
		Content:         []byte("This letter confirms receipt of your correspondence."),
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(result.Facts) != 0 {
		t.Errorf("facts = %+v, want none", result.Facts)
	}
}

func TestGenericExtractRejects(t *testing.T) {
	a := NewGenericAdapter(nil)
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"whitespace only", []byte("   \n\t  ")},
		{"invalid utf8", []byte{0xff, 0xfe, 0x80, 0x81, 'a'}},
		{"mostly binary", append([]byte("ok"), make([]byte, 200)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Extract(context.Background(), entity.RawDocument{Content: tt.content})
			var re *RecoverableError
			if !errors.As(err, &re) {
				t.Errorf("error = %v, want recoverable", err)
			}
		})
	}
}

func TestGenericExtractMissingAccessionFailsValidation(t *testing.T) {
	// The schema contract requires the filing identity to survive.
	a := NewGenericAdapter(nil)
	_, err := a.Extract(context.Background(), entity.RawDocument{
		Content: []byte("Total Net Assets $100"),
	})
	var re *RecoverableError
	if !errors.As(err, &re) {
		t.Errorf("error = %v, want recoverable validation failure", err)
	}
}

func TestCompileResultSchema(t *testing.T) {
	if _, err := compileResultSchema(); err != nil {
		t.Fatalf("compileResultSchema() error = %v", err)
	}
}
