package pipeline

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/edgarlab/filings-extractor/constants"
	"github.com/edgarlab/filings-extractor/internal/entity"
)

// Job is one filing queued for processing. Content may carry pre-fetched
// bytes (drop-directory source); when nil the pool asks the discovery
// collaborator for them.
type Job struct {
	Filing      entity.Filing
	Content     []byte
	SubmittedAt time.Time
	TraceID     string
}

// Pool runs N processors concurrently over a bounded queue. Producers block
// when the queue is full; that backpressure is the intake contract. At most
// one in-flight attempt per accession number is guaranteed by a keyed lock,
// so duplicate submissions serialize instead of racing the stores.
type Pool struct {
	proc    *Processor
	fetcher DocumentFetcher
	logger  *slog.Logger
	workers int

	ch       chan Job
	wg       sync.WaitGroup
	once     sync.Once
	inflight *keyedMutex

	mu     sync.Mutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan Job, n)
		}
	}
}

func NewPool(proc *Processor, fetcher DocumentFetcher, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		proc:     proc,
		fetcher:  fetcher,
		logger:   logger,
		workers:  4,
		ch:       make(chan Job, 256),
		inflight: newKeyedMutex(),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Info("worker started", "worker_id", workerID)

				for job := range p.ch {
					p.handle(workerID, job)
				}

				p.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) handle(workerID int, job Job) {
	acc := job.Filing.AccessionNumber
	p.inflight.lock(acc)
	defer p.inflight.unlock(acc)

	ctx := context.Background()

	content := job.Content
	if content == nil {
		var err error
		content, err = p.fetcher.FetchDocument(ctx, job.Filing)
		if err != nil {
			p.logger.Error("document fetch failed",
				"worker_id", workerID, "accession_number", acc, "error", err)
			p.deadLetterFetchFailure(ctx, job.Filing, err)
			return
		}
	}

	outcome, err := p.proc.Process(ctx, job.Filing, content)
	if err != nil {
		p.logger.Error("processing failed",
			"worker_id", workerID, "accession_number", acc, "trace_id", job.TraceID, "error", err)
		return
	}
	p.logger.Info("filing reached terminal state",
		"worker_id", workerID, "accession_number", acc,
		"state", string(outcome.State), "trace_id", job.TraceID,
	)
}

// deadLetterFetchFailure records a network-class failure so a filing whose
// bytes never arrived is still never silently dropped.
func (p *Pool) deadLetterFetchFailure(ctx context.Context, filing entity.Filing, fetchErr error) {
	now := time.Now().UTC()
	rec := &entity.DeadLetterRecord{
		AccessionNumber: filing.AccessionNumber,
		FailureClass:    constants.FailureNetwork,
		Attempts: []entity.ParseAttempt{{
			Parser:     "download",
			StartedAt:  now,
			FinishedAt: now,
			Outcome:    constants.OutcomeRecoverable,
			Detail:     fetchErr.Error(),
		}},
		AttemptCount:  1,
		FirstFailedAt: now,
		LastFailedAt:  now,
		DocumentURL:   filing.DocumentURL,
	}
	if err := p.proc.deadLetters.Record(ctx, rec); err != nil {
		p.logger.Error("dead letter write failed after fetch failure",
			"accession_number", filing.AccessionNumber, "error", err)
	}
}

// Enqueue submits a job, blocking for queue space. A TraceID is assigned
// when the producer did not set one.
func (p *Pool) Enqueue(_ context.Context, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("cannot enqueue: pool is shutting down",
			"accession_number", job.Filing.AccessionNumber)
		return nil
	}
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	select {
	case p.ch <- job:
		p.logger.Info("queued filing",
			"accession_number", job.Filing.AccessionNumber, "trace_id", job.TraceID)
	default:
		p.logger.Warn("queue full, applying backpressure",
			"accession_number", job.Filing.AccessionNumber)
		p.ch <- job
	}
	return nil
}

// Shutdown closes intake and waits for in-flight filings to finish their
// terminal writes, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
	}
}

// keyedMutex serializes work per accession number.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.ch <- struct{}{}
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	<-e.ch
}
