package detect

import (
	"bytes"
	"testing"

	"github.com/edgarlab/filings-extractor/constants"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    constants.DocumentFormat
	}{
		{
			name:    "sgml envelope",
			content: "<SEC-DOCUMENT>0000320193-25-000073.txt : 20250801\n<SEC-HEADER>...",
			want:    constants.FormatSGML,
		},
		{
			name:    "bare header fields",
			content: "ACCESSION NUMBER:  0000320193-25-000073\nCONFORMED SUBMISSION TYPE: 10-K\n",
			want:    constants.FormatSGML,
		},
		{
			name:    "inline xbrl namespace declaration",
			content: `<html xmlns:ix="http://www.xbrl.org/2013/inlineXBRL"><body>...</body></html>`,
			want:    constants.FormatInlineXBRL,
		},
		{
			name:    "inline xbrl fact tag",
			content: `<html><body><ix:nonFraction name="us-gaap:Revenues">5</ix:nonFraction></body></html>`,
			want:    constants.FormatInlineXBRL,
		},
		{
			name:    "mixed case signatures still classify",
			content: `<Html XMLNS:IX="http://www.XBRL.org/2013/inlineXBRL">`,
			want:    constants.FormatInlineXBRL,
		},
		{
			name:    "sgml wins when both families present",
			content: "<SEC-DOCUMENT>\n<DOCUMENT>\n<html xmlns:ix=\"http://www.xbrl.org/2013/inlineXBRL\">",
			want:    constants.FormatSGML,
		},
		{
			name:    "plain html is unknown",
			content: "<html><body><p>Annual report to shareholders</p></body></html>",
			want:    constants.FormatUnknown,
		},
		{
			name:    "empty document is unknown",
			content: "",
			want:    constants.FormatUnknown,
		},
		{
			name:    "binary junk is unknown",
			content: "\x00\x01\x02\x03\xff\xfe",
			want:    constants.FormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect([]byte(tt.content)); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSignatureBeyondSniffWindow(t *testing.T) {
	// A signature past the sniff window must not classify the document.
	content := append(bytes.Repeat([]byte("x"), sniffWindow+10), []byte("<SEC-HEADER>")...)
	if got := Detect(content); got != constants.FormatUnknown {
		t.Errorf("Detect() = %q, want %q for signature beyond window", got, constants.FormatUnknown)
	}
}

func TestDetectSignatureInsideSniffWindow(t *testing.T) {
	content := append([]byte("<SEC-HEADER>\n"), bytes.Repeat([]byte("x"), sniffWindow*2)...)
	if got := Detect(content); got != constants.FormatSGML {
		t.Errorf("Detect() = %q, want %q", got, constants.FormatSGML)
	}
}
