// Package detect classifies raw filing documents by structural signature,
// independent of any parser. Detection is a pure function of the bytes: it
// performs no I/O and never fails — unclassifiable input is FormatUnknown,
// which routes the document to the generic tier.
package detect

import (
	"bytes"

	"github.com/edgarlab/filings-extractor/constants"
)

// sniffWindow bounds how far into the document signatures are searched.
// Both dialects announce themselves near the top; scanning whole multi-MB
// submissions would only slow classification down.
const sniffWindow = 64 * 1024

// Signatures of the legacy SGML submission envelope.
var sgmlSignatures = [][]byte{
	[]byte("<SEC-DOCUMENT>"),
	[]byte("<SEC-HEADER>"),
	[]byte("ACCESSION NUMBER:"),
	[]byte("CONFORMED SUBMISSION TYPE:"),
	[]byte("<DOCUMENT>"),
}

// Signatures of fact-tagged inline XBRL content (lowercase; matched
// case-insensitively).
var xbrlSignatures = [][]byte{
	[]byte("xmlns:ix="),
	[]byte("<ix:nonfraction"),
	[]byte("<ix:nonnumeric"),
	[]byte("<ix:fraction"),
	[]byte("xbrl.org"),
}

// Detect classifies a raw document buffer. The SGML envelope wins when both
// signature families are present: an SGML submission routinely embeds inline
// XBRL documents, and the SGML tier knows how to reach them.
func Detect(content []byte) constants.DocumentFormat {
	if len(content) == 0 {
		return constants.FormatUnknown
	}
	window := content
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}

	upper := bytes.ToUpper(window)
	for _, sig := range sgmlSignatures {
		if bytes.Contains(upper, sig) {
			return constants.FormatSGML
		}
	}

	lower := bytes.ToLower(window)
	for _, sig := range xbrlSignatures {
		if bytes.Contains(lower, sig) {
			return constants.FormatInlineXBRL
		}
	}

	return constants.FormatUnknown
}
