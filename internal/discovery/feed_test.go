package discovery

import (
	"strings"
	"testing"
	"time"
)

const sampleIndex = `Description:           Daily Index of EDGAR Dissemination Feed
Last Data Received:    August 1, 2025

CIK|Company Name|Form Type|Date Filed|Filename
--------------------------------------------------------------------------------
320193|Apple Inc.|10-K|2025-08-01|edgar/data/320193/0000320193-25-000073.txt
789019|MICROSOFT CORP|8-K|2025-08-01|edgar/data/789019/0001564590-25-001234.txt
1018724|AMAZON COM INC|4|2025-08-01|edgar/data/1018724/0001018724-25-000456.txt
bogus line without pipes
12345|Broken Filename Co|10-Q|2025-08-01|edgar/data/12345/not-an-accession.txt
`

func TestParseMasterIndex(t *testing.T) {
	filings, err := ParseMasterIndex([]byte(sampleIndex), "https://www.sec.gov", nil)
	if err != nil {
		t.Fatalf("ParseMasterIndex() error = %v", err)
	}
	// Malformed row and non-accession filename are skipped.
	if len(filings) != 3 {
		t.Fatalf("got %d filings, want 3", len(filings))
	}

	first := filings[0]
	if first.AccessionNumber != "0000320193-25-000073" {
		t.Errorf("accession = %q", first.AccessionNumber)
	}
	if first.CIK != "320193" {
		t.Errorf("cik = %q", first.CIK)
	}
	if first.CompanyName != "Apple Inc." {
		t.Errorf("company = %q", first.CompanyName)
	}
	if first.FormType != "10-K" {
		t.Errorf("form = %q", first.FormType)
	}
	wantURL := "https://www.sec.gov/Archives/edgar/data/320193/0000320193-25-000073.txt"
	if first.DocumentURL != wantURL {
		t.Errorf("url = %q, want %q", first.DocumentURL, wantURL)
	}
	if first.FiledAt.Format("2006-01-02") != "2025-08-01" {
		t.Errorf("filed at = %v", first.FiledAt)
	}
}

func TestParseMasterIndexFormFilter(t *testing.T) {
	filings, err := ParseMasterIndex([]byte(sampleIndex), "https://www.sec.gov", []string{"10-K", "10-Q"})
	if err != nil {
		t.Fatalf("ParseMasterIndex() error = %v", err)
	}
	if len(filings) != 1 {
		t.Fatalf("got %d filings, want 1", len(filings))
	}
	if filings[0].FormType != "10-K" {
		t.Errorf("form = %q", filings[0].FormType)
	}
}

func TestParseMasterIndexMissingHeader(t *testing.T) {
	_, err := ParseMasterIndex([]byte("no separator here\njust text\n"), "https://www.sec.gov", nil)
	if err == nil {
		t.Fatal("expected error for index without header separator")
	}
}

func TestIndexURL(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-08-01", "https://www.sec.gov/Archives/edgar/daily-index/2025/QTR3/master.20250801.idx"},
		{"2025-01-15", "https://www.sec.gov/Archives/edgar/daily-index/2025/QTR1/master.20250115.idx"},
		{"2025-12-31", "https://www.sec.gov/Archives/edgar/daily-index/2025/QTR4/master.20251231.idx"},
	}
	for _, tt := range tests {
		day, err := time.Parse("2006-01-02", tt.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := IndexURL("https://www.sec.gov/", day); got != tt.want {
			t.Errorf("IndexURL(%s) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestLooksLikeAccession(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0000320193-25-000073", true},
		{"0000320193-25-00007", false},
		{"0000320193x25-000073", false},
		{"000032019a-25-000073", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeAccession(tt.in); got != tt.want {
			t.Errorf("looksLikeAccession(%q) = %t, want %t", tt.in, got, tt.want)
		}
	}
}

func TestAccessionFromPath(t *testing.T) {
	got := AccessionFromPath("/drop/0000320193-25-000073.txt")
	if got != "0000320193-25-000073" {
		t.Errorf("AccessionFromPath() = %q", got)
	}
	// Non-accession names keep the base name so re-drops stay idempotent.
	if got := AccessionFromPath("/drop/quarterly-report.htm"); got != "quarterly-report" {
		t.Errorf("AccessionFromPath() = %q", got)
	}
}

func TestParseMasterIndexZeroPaddedCIK(t *testing.T) {
	index := strings.Join([]string{
		"CIK|Company Name|Form Type|Date Filed|Filename",
		"----------------",
		"0000320193|Apple Inc.|10-K|2025-08-01|edgar/data/320193/0000320193-25-000073.txt",
		"",
	}, "\n")
	filings, err := ParseMasterIndex([]byte(index), "https://www.sec.gov", nil)
	if err != nil {
		t.Fatalf("ParseMasterIndex() error = %v", err)
	}
	if len(filings) != 1 || filings[0].CIK != "320193" {
		t.Fatalf("cik not normalized: %+v", filings)
	}
}
