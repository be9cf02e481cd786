// dlqctl inspects and manages the dead-letter queue from the command line.
//
//	dlqctl list [-class parsing] [-limit 50]
//	dlqctl show <accession>
//	dlqctl requeue <accession>
//	dlqctl remove <accession>
//	dlqctl stats
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/edgarlab/filings-extractor/constants"
	"github.com/edgarlab/filings-extractor/internal/common"
	repo "github.com/edgarlab/filings-extractor/internal/repository"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dlqctl <list|show|requeue|remove|stats> [args]")
	os.Exit(2)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
	}
	cmd := os.Args[1]

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "DB_URL env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer repo.Close(pool, logger)

	dlq := repo.NewDeadLetterRepository(pool,
		cfg.Pipeline.DLQMaxAttempts, cfg.Pipeline.DLQRetryAfter, logger)

	switch cmd {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		class := fs.String("class", "", "filter by failure class")
		limit := fs.Int("limit", 50, "max rows")
		_ = fs.Parse(os.Args[2:])

		recs, err := dlq.List(ctx, constants.FailureClass(*class), *limit)
		if err != nil {
			fatal(err)
		}
		for _, rec := range recs {
			fmt.Printf("%s\t%s\tattempts=%d\tretryable=%t\tlast=%s\n",
				rec.AccessionNumber, rec.FailureClass, rec.AttemptCount,
				rec.RetryEligible, rec.LastFailedAt.Format("2006-01-02 15:04:05"))
		}

	case "show":
		acc := requireArg()
		rec, err := dlq.Get(ctx, acc)
		if err != nil {
			fatal(err)
		}
		out, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(out))

	case "requeue":
		acc := requireArg()
		filing, err := dlq.Requeue(ctx, acc)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("eligible for reprocessing: %s (%s)\n", filing.AccessionNumber, filing.DocumentURL)
		fmt.Println("run extractord with --retry-dlq to pick it up")

	case "remove":
		acc := requireArg()
		if err := dlq.Remove(ctx, acc); err != nil {
			fatal(err)
		}
		fmt.Printf("removed %s\n", acc)

	case "stats":
		stats, err := dlq.Stats(ctx)
		if err != nil {
			fatal(err)
		}
		total := 0
		for class, n := range stats {
			fmt.Printf("%-16s %d\n", class, n)
			total += n
		}
		fmt.Printf("%-16s %d\n", "total", total)

	default:
		usage()
	}
}

func requireArg() string {
	if len(os.Args) < 3 {
		usage()
	}
	return os.Args[2]
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
