package entity

import "time"

// Fact is one extracted structured data point: a tagged concept with its value,
// unit and reporting context. Order within a filing is preserved.
type Fact struct {
	Concept       string     `json:"concept"`
	Value         string     `json:"value"`
	UnitRef       string     `json:"unit_ref,omitempty"`
	ContextRef    string     `json:"context_ref,omitempty"`
	Decimals      *int       `json:"decimals,omitempty"`
	Scale         *int       `json:"scale,omitempty"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
	PeriodInstant *time.Time `json:"period_instant,omitempty"`
}

// FilingMetadata is the envelope information recovered from the document itself.
type FilingMetadata struct {
	AccessionNumber      string     `json:"accession_number,omitempty"`
	CIK                  string     `json:"cik,omitempty"`
	CompanyName          string     `json:"company_name,omitempty"`
	FormType             string     `json:"form_type,omitempty"`
	FiledAt              *time.Time `json:"filed_at,omitempty"`
	PeriodOfReport       *time.Time `json:"period_of_report,omitempty"`
	SIC                  string     `json:"sic,omitempty"`
	StateOfIncorporation string     `json:"state_of_incorporation,omitempty"`
	FiscalYearEnd        string     `json:"fiscal_year_end,omitempty"`
	DocumentCount        int        `json:"document_count,omitempty"`
}

// ExtractionResult is the durable outcome of a successful parse.
type ExtractionResult struct {
	AccessionNumber string         `json:"accession_number"`
	Metadata        FilingMetadata `json:"metadata"`
	Facts           []Fact         `json:"facts"`
	Method          string         `json:"method"` // name of the winning parser
	ParseDuration   time.Duration  `json:"parse_duration"`
}
