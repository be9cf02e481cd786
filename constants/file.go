package constants

import "strings"

// AllowedExtensions holds the file extensions accepted by the drop-directory
// discovery source. Filings arrive as raw submission text or inline-XBRL HTML.
var AllowedExtensions = map[string]struct{}{
	"txt":  {},
	"htm":  {},
	"html": {},
	"xml":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
