package entity

import "time"

// Filing identifies one submission from the discovery feed. Immutable; the
// accession number is the stable key for everything this pipeline persists.
type Filing struct {
	AccessionNumber string    `json:"accession_number"`
	CIK             string    `json:"cik"`
	CompanyName     string    `json:"company_name"`
	FormType        string    `json:"form_type"`
	FiledAt         time.Time `json:"filed_at"`
	DocumentURL     string    `json:"document_url,omitempty"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
}

// RawDocument is the byte content of a filing for the duration of one
// processing attempt. Not persisted.
type RawDocument struct {
	AccessionNumber string
	Content         []byte
}
