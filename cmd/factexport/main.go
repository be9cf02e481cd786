package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/edgarlab/filings-extractor/internal/common"
	"github.com/edgarlab/filings-extractor/internal/export"
	repo "github.com/edgarlab/filings-extractor/internal/repository"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		fromStr   = flag.String("from", "", "from date YYYY-MM-DD")
		toStr     = flag.String("to", "", "to date YYYY-MM-DD (defaults to today)")
		form      = flag.String("form", "", "filter by form type (10-K, 10-Q, ...)")
		accession = flag.String("accession", "", "export a single filing instead of a date range")
		out       = flag.String("out", "facts.xlsx", "output XLSX file path")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		printError("Error: DB_URL env var is required\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer repo.Close(pool, logger)

	results := repo.NewResultStore(pool, logger)
	svc := export.NewService(results, logger)

	var xlsxBytes []byte
	switch {
	case *accession != "":
		xlsxBytes, err = svc.ExportFilingXLSX(ctx, *accession)

	case *fromStr != "":
		from, perr := time.Parse("2006-01-02", *fromStr)
		if perr != nil {
			printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", perr)
			os.Exit(1)
		}
		to := time.Now().UTC()
		if *toStr != "" {
			to, perr = time.Parse("2006-01-02", *toStr)
			if perr != nil {
				printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", perr)
				os.Exit(1)
			}
		}
		xlsxBytes, err = svc.ExportFactsXLSX(ctx, from, to, *form)

	default:
		printError("Error: either --accession or --from is required\n")
		os.Exit(1)
	}
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Export complete: %s\n", *out)
}
