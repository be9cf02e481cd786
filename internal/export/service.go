// Package export turns stored extraction results into XLSX workbooks for
// analysts who live in spreadsheets rather than SQL.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/edgarlab/filings-extractor/internal/repository"
)

// Service is a tiny façade over the result store that produces XLSX bytes.
type Service struct {
	results *repository.ResultStore
	logger  *slog.Logger
}

func NewService(results *repository.ResultStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, logger: logger}
}

// ExportFactsXLSX returns a workbook with one row per fact for every
// processed filing filed in [from, to]. formType narrows to one form;
// empty exports all forms.
func (s *Service) ExportFactsXLSX(ctx context.Context, from, to time.Time, formType string) ([]byte, error) {
	start := time.Now()

	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	summaries, err := s.results.ListByDateRange(ctx, from, to, formType)
	if err != nil {
		return nil, fmt.Errorf("query filings: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Facts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Accession Number",
		"Company",
		"Form",
		"Filed",
		"Concept",
		"Value",
		"Unit",
		"Context",
		"Period Start",
		"Period End",
		"Period Instant",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	factTotal := 0
	for _, sum := range summaries {
		facts, err := s.results.ListFacts(ctx, sum.AccessionNumber)
		if err != nil {
			return nil, fmt.Errorf("query facts for %s: %w", sum.AccessionNumber, err)
		}
		factTotal += len(facts)

		filed := ""
		if sum.FiledAt != nil {
			filed = sum.FiledAt.Format("2006-01-02")
		}

		for _, fact := range facts {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, sum.AccessionNumber)
			write(2, sum.CompanyName)
			write(3, sum.FormType)
			write(4, filed)
			write(5, fact.Concept)
			write(6, fact.Value)
			write(7, fact.UnitRef)
			write(8, fact.ContextRef)
			write(9, formatDate(fact.PeriodStart))
			write(10, formatDate(fact.PeriodEnd))
			write(11, formatDate(fact.PeriodInstant))
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 24)
	_ = f.SetColWidth(sheet, "B", "B", 36)
	_ = f.SetColWidth(sheet, "C", "D", 12)
	_ = f.SetColWidth(sheet, "E", "E", 48)
	_ = f.SetColWidth(sheet, "F", "F", 20)
	_ = f.SetColWidth(sheet, "G", "H", 16)
	_ = f.SetColWidth(sheet, "I", "K", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"filings", len(summaries),
		"facts", factTotal,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportFilingXLSX exports one filing's facts, for spot checks.
func (s *Service) ExportFilingXLSX(ctx context.Context, accession string) ([]byte, error) {
	result, err := s.results.GetByAccession(ctx, accession)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Facts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Concept", "Value", "Unit", "Context", "Period Start", "Period End", "Period Instant"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, fact := range result.Facts {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, fact.Concept)
		write(2, fact.Value)
		write(3, fact.UnitRef)
		write(4, fact.ContextRef)
		write(5, formatDate(fact.PeriodStart))
		write(6, formatDate(fact.PeriodEnd))
		write(7, formatDate(fact.PeriodInstant))
	}

	_ = f.SetColWidth(sheet, "A", "A", 48)
	_ = f.SetColWidth(sheet, "B", "B", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
