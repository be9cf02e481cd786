package constants

// DocumentFormat is the structural format detected for a raw filing document.
type DocumentFormat string

// Stable values (store these exact strings in DB).
const (
	FormatSGML       DocumentFormat = "SGML"        // legacy SEC-HEADER structured submission
	FormatInlineXBRL DocumentFormat = "INLINE_XBRL" // fact-tagged inline XBRL document
	FormatUnknown    DocumentFormat = "UNKNOWN"     // neither signature found; routed to generic tier
)
