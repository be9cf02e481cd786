// Package discovery finds filings to process: parsing EDGAR master index
// feeds, downloading documents under the archive's rate-limit etiquette, and
// watching a local drop directory for offline batches.
package discovery

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/edgarlab/filings-extractor/internal/common"
	"github.com/edgarlab/filings-extractor/internal/entity"
)

// master.idx rows are pipe-delimited:
//
//	CIK|Company Name|Form Type|Date Filed|Filename
//
// preceded by a free-text preamble and a dashed separator line.
const indexColumns = 5

// IndexURL builds the daily master index URL for a given date.
func IndexURL(baseURL string, day time.Time) string {
	quarter := (int(day.Month())-1)/3 + 1
	return fmt.Sprintf("%s/Archives/edgar/daily-index/%d/QTR%d/master.%s.idx",
		strings.TrimRight(baseURL, "/"), day.Year(), quarter, day.Format("20060102"))
}

// DocumentURL resolves an index filename column to a fetchable URL.
func DocumentURL(baseURL, filename string) string {
	return strings.TrimRight(baseURL, "/") + "/Archives/" + strings.TrimLeft(filename, "/")
}

// ParseMasterIndex extracts filings from a master index feed. formTypes
// filters by exact form (10-K, 10-Q, 8-K, ...); empty means all forms.
// Malformed rows are skipped, not fatal: one bad line in a daily feed must
// not block the rest of the day.
func ParseMasterIndex(data []byte, baseURL string, formTypes []string) ([]entity.Filing, error) {
	wanted := make(map[string]struct{}, len(formTypes))
	for _, f := range formTypes {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f != "" {
			wanted[f] = struct{}{}
		}
	}

	var filings []entity.Filing
	seenHeader := false

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !seenHeader {
			if strings.HasPrefix(line, "---") {
				seenHeader = true
			}
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) != indexColumns {
			continue
		}

		form := strings.ToUpper(strings.TrimSpace(cols[2]))
		if len(wanted) > 0 {
			if _, ok := wanted[form]; !ok {
				continue
			}
		}

		filename := strings.TrimSpace(cols[4])
		accession := accessionFromFilename(filename)
		if accession == "" {
			continue
		}

		filing := entity.Filing{
			AccessionNumber: accession,
			CIK:             strings.TrimLeft(strings.TrimSpace(cols[0]), "0"),
			CompanyName:     strings.TrimSpace(cols[1]),
			FormType:        form,
			DocumentURL:     DocumentURL(baseURL, filename),
		}
		if filed, err := time.Parse("2006-01-02", strings.TrimSpace(cols[3])); err == nil {
			filing.FiledAt = filed
		}
		filings = append(filings, filing)
	}
	if err := sc.Err(); err != nil {
		return filings, common.WrapError(err, "scan master index")
	}
	if !seenHeader {
		return nil, common.NewAppError("INDEX_FORMAT", "master index header separator not found", common.ErrInvalidInput)
	}
	return filings, nil
}

// accessionFromFilename pulls the accession number out of an index filename
// like edgar/data/320193/0000320193-25-000073.txt.
func accessionFromFilename(filename string) string {
	base := path.Base(filename)
	ext := path.Ext(base)
	acc := strings.TrimSuffix(base, ext)
	if !looksLikeAccession(acc) {
		return ""
	}
	return acc
}

func looksLikeAccession(s string) bool {
	// NNNNNNNNNN-NN-NNNNNN
	if len(s) != 20 || s[10] != '-' || s[13] != '-' {
		return false
	}
	for i, c := range s {
		if i == 10 || i == 13 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
