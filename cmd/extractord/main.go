package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgarlab/filings-extractor/internal/common"
	"github.com/edgarlab/filings-extractor/internal/discovery"
	"github.com/edgarlab/filings-extractor/internal/parse"
	"github.com/edgarlab/filings-extractor/internal/pipeline"
	repo "github.com/edgarlab/filings-extractor/internal/repository"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dateStr   = flag.String("date", "", "process one day's index YYYY-MM-DD")
		fromStr   = flag.String("from", "", "backfill start date YYYY-MM-DD")
		toStr     = flag.String("to", "", "backfill end date YYYY-MM-DD (inclusive)")
		backfill  = flag.Int("backfill", 0, "process the last N days of indexes")
		accession = flag.String("accession", "", "comma-separated accession numbers to reprocess (must be dead-lettered)")
		forms     = flag.String("forms", "10-K,10-Q,8-K", "comma-separated form types; empty for all")
		dropDir   = flag.String("drop-dir", "", "process files from a local drop directory instead of the index feed")
		watch     = flag.Bool("watch", false, "with --drop-dir: keep watching for new files")
		retryDLQ  = flag.Bool("retry-dlq", false, "requeue retry-eligible dead letters before new work")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *dropDir != "" {
		cfg.Discovery.DropDir = *dropDir
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	from, to, err := resolveWindow(*dateStr, *fromStr, *toStr, *backfill)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Discovery.DropDir == "" && from.IsZero() && !*retryDLQ && *accession == "" {
		printError("Error: one of --date, --from/--to, --backfill, --accession, --drop-dir or --retry-dlq is required\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer repo.Close(dbPool, logger)

	if err := repo.Migrate(ctx, dbPool, logger); err != nil {
		os.Exit(1)
	}

	results := repo.NewResultStore(dbPool, logger)
	deadLetters := repo.NewDeadLetterRepository(dbPool,
		cfg.Pipeline.DLQMaxAttempts, cfg.Pipeline.DLQRetryAfter, logger)
	client := discovery.NewClient(cfg.Discovery, logger)

	manager := parse.NewManager(parse.ManagerConfig{
		Timeout: cfg.Pipeline.ParseTimeout,
		SGML:    parse.NewSGMLAdapter(logger),
		XBRL:    parse.NewXBRLAdapter(logger),
		Generic: parse.NewGenericAdapter(logger),
	}, logger)

	proc := pipeline.NewProcessor(manager, results, deadLetters, cfg.Pipeline.StorageMaxRetries, logger)
	pool := pipeline.NewPool(proc, client, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
	)

	g, gctx := errgroup.WithContext(ctx)

	if *retryDLQ {
		g.Go(func() error { return requeueDeadLetters(gctx, deadLetters, pool, logger) })
	}
	if *accession != "" {
		accessions := splitList(*accession)
		g.Go(func() error { return requeueAccessions(gctx, accessions, deadLetters, pool, logger) })
	}
	if !from.IsZero() {
		formTypes := splitList(*forms)
		g.Go(func() error { return runBackfill(gctx, client, pool, from, to, formTypes, logger) })
	}
	if cfg.Discovery.DropDir != "" {
		root := cfg.Discovery.DropDir
		keepWatching := *watch
		g.Go(func() error { return runDropDir(gctx, root, keepWatching, pool, logger) })
	}

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Pipeline.ParseTimeout)
	defer cancel()
	pool.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run finished with error", "error", err)
		os.Exit(1)
	}
	logger.Info("run complete")
}

func resolveWindow(dateStr, fromStr, toStr string, backfill int) (time.Time, time.Time, error) {
	if dateStr != "" {
		day, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --date, use YYYY-MM-DD: %w", err)
		}
		return day, day, nil
	}
	if backfill > 0 {
		now := time.Now().UTC()
		to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return to.AddDate(0, 0, -(backfill - 1)), to, nil
	}
	if fromStr == "" && toStr == "" {
		return time.Time{}, time.Time{}, nil
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from, use YYYY-MM-DD: %w", err)
	}
	to := from
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to, use YYYY-MM-DD: %w", err)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	return from, to, nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// runBackfill walks the date window one daily index at a time. Days without
// an index (weekends, holidays) are skipped, not fatal.
func runBackfill(ctx context.Context, client *discovery.Client, pool *pipeline.Pool, from, to time.Time, formTypes []string, logger *slog.Logger) error {
	queued := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		filings, err := client.FetchIndex(ctx, day, formTypes)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				logger.Info("no index for date, skipping", "date", day.Format("2006-01-02"))
				continue
			}
			return fmt.Errorf("index for %s: %w", day.Format("2006-01-02"), err)
		}
		for _, filing := range filings {
			if err := pool.Enqueue(ctx, pipeline.Job{Filing: filing}); err != nil {
				return err
			}
			queued++
		}
	}
	logger.Info("backfill producer done", "queued", queued)
	return nil
}

func runDropDir(ctx context.Context, root string, watch bool, pool *pipeline.Pool, logger *slog.Logger) error {
	enqueuePath := func(path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Error("cannot read dropped file", "path", path, "error", err)
			return
		}
		job := pipeline.Job{Content: content}
		job.Filing.AccessionNumber = discovery.AccessionFromPath(path)
		job.Filing.DocumentURL = "file://" + path
		_ = pool.Enqueue(ctx, job)
	}

	paths, err := discovery.ScanDirectory(root)
	if err != nil {
		return fmt.Errorf("scan drop directory: %w", err)
	}
	for _, p := range paths {
		enqueuePath(p)
	}
	logger.Info("drop directory scanned", "root", root, "files", len(paths))

	if !watch {
		return nil
	}

	evCh, errCh, err := discovery.StartWatcher(ctx, discovery.WatchConfig{
		Root:     root,
		Debounce: 500 * time.Millisecond,
	}, logger)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-evCh:
			if !ok {
				return nil
			}
			enqueuePath(path)
		case werr, ok := <-errCh:
			if ok && werr != nil {
				logger.Warn("watcher reported error", "error", werr)
			}
		}
	}
}

func requeueDeadLetters(ctx context.Context, dlq *repo.DeadLetterRepository, pool *pipeline.Pool, logger *slog.Logger) error {
	recs, err := dlq.ListRetryable(ctx, 1000)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		filing, err := dlq.Requeue(ctx, rec.AccessionNumber)
		if err != nil {
			logger.Warn("skipping dead letter", "accession_number", rec.AccessionNumber, "error", err)
			continue
		}
		if err := pool.Enqueue(ctx, pipeline.Job{Filing: filing}); err != nil {
			return err
		}
	}
	logger.Info("dead letters requeued", "count", len(recs))
	return nil
}

// requeueAccessions resubmits specific dead-lettered filings by accession.
// The stored document URL is the fetch token; filings never dead-lettered
// have nothing to refetch from and are reported, not guessed at.
func requeueAccessions(ctx context.Context, accessions []string, dlq *repo.DeadLetterRepository, pool *pipeline.Pool, logger *slog.Logger) error {
	for _, acc := range accessions {
		filing, err := dlq.Requeue(ctx, acc)
		if err != nil {
			logger.Error("cannot requeue accession", "accession_number", acc, "error", err)
			continue
		}
		if err := pool.Enqueue(ctx, pipeline.Job{Filing: filing}); err != nil {
			return err
		}
	}
	return nil
}
