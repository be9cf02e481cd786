package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/edgarlab/filings-extractor/constants"
	"github.com/edgarlab/filings-extractor/internal/entity"
	"github.com/edgarlab/filings-extractor/internal/parse"
)

type fakeFetcher struct {
	err     error
	content []byte
}

func (f *fakeFetcher) FetchDocument(context.Context, entity.Filing) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

func TestPoolProcessesAllJobs(t *testing.T) {
	results := &fakeResults{}
	m := newTestManager(acceptAll(parse.ParserSGML), nil, nil, time.Second)
	proc := NewProcessor(m, results, &fakeDLQ{}, 0, nil)
	pool := NewPool(proc, &fakeFetcher{}, nil, WithWorkers(4), WithQueueSize(8))

	const n = 20
	for i := 0; i < n; i++ {
		job := Job{Content: sgmlContent}
		job.Filing.AccessionNumber = fmt.Sprintf("0000320193-25-%06d", i)
		if err := pool.Enqueue(context.Background(), job); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool.Shutdown(ctx)

	if results.count() != n {
		t.Errorf("stored %d results, want %d", results.count(), n)
	}
}

func TestPoolPerAccessionExclusivity(t *testing.T) {
	var mu sync.Mutex
	active := map[string]int{}
	overlapped := false

	adapter := &scriptedAdapter{name: parse.ParserSGML, fn: func(_ context.Context, doc entity.RawDocument) (*entity.ExtractionResult, error) {
		mu.Lock()
		active[doc.AccessionNumber]++
		if active[doc.AccessionNumber] > 1 {
			overlapped = true
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active[doc.AccessionNumber]--
		mu.Unlock()
		return &entity.ExtractionResult{AccessionNumber: doc.AccessionNumber, Method: parse.ParserSGML}, nil
	}}

	results := &fakeResults{}
	m := newTestManager(adapter, nil, nil, time.Second)
	proc := NewProcessor(m, results, &fakeDLQ{}, 0, nil)
	pool := NewPool(proc, &fakeFetcher{}, nil, WithWorkers(4), WithQueueSize(32))

	// The same filing submitted many times while a distinct one interleaves.
	for i := 0; i < 10; i++ {
		dup := Job{Content: sgmlContent}
		dup.Filing.AccessionNumber = "0000320193-25-000073"
		_ = pool.Enqueue(context.Background(), dup)

		other := Job{Content: sgmlContent}
		other.Filing.AccessionNumber = fmt.Sprintf("0000999999-25-%06d", i)
		_ = pool.Enqueue(context.Background(), other)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	if overlapped {
		t.Error("two attempts for the same accession ran concurrently")
	}
	if results.count() != 20 {
		t.Errorf("stored %d results, want 20", results.count())
	}
}

func TestPoolFetchFailureDeadLetters(t *testing.T) {
	results := &fakeResults{}
	dlq := &fakeDLQ{}
	m := newTestManager(acceptAll(parse.ParserSGML), nil, nil, time.Second)
	proc := NewProcessor(m, results, dlq, 0, nil)
	pool := NewPool(proc, &fakeFetcher{err: errors.New("connection reset")}, nil, WithWorkers(1))

	// No Content forces the pool to ask the fetcher.
	if err := pool.Enqueue(context.Background(), Job{Filing: testFiling}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool.Shutdown(ctx)

	rec := dlq.last()
	if rec == nil {
		t.Fatal("fetch failure must be dead-lettered, not dropped")
	}
	if rec.FailureClass != constants.FailureNetwork {
		t.Errorf("failure class = %q", rec.FailureClass)
	}
	if len(rec.Attempts) != 1 || rec.Attempts[0].Parser != "download" {
		t.Errorf("attempts = %+v", rec.Attempts)
	}
	if results.count() != 0 {
		t.Error("unfetched filing must not be stored")
	}
}

func TestPoolPrefetchedContentSkipsFetcher(t *testing.T) {
	results := &fakeResults{}
	m := newTestManager(acceptAll(parse.ParserSGML), nil, nil, time.Second)
	proc := NewProcessor(m, results, &fakeDLQ{}, 0, nil)
	// A fetcher that always fails proves it is never consulted.
	pool := NewPool(proc, &fakeFetcher{err: errors.New("must not be called")}, nil, WithWorkers(1))

	job := Job{Filing: testFiling, Content: sgmlContent}
	_ = pool.Enqueue(context.Background(), job)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool.Shutdown(ctx)

	if results.count() != 1 {
		t.Errorf("stored %d results, want 1", results.count())
	}
}

func TestPoolEnqueueAfterShutdown(t *testing.T) {
	m := newTestManager(acceptAll(parse.ParserSGML), nil, nil, time.Second)
	proc := NewProcessor(m, &fakeResults{}, &fakeDLQ{}, 0, nil)
	pool := NewPool(proc, &fakeFetcher{}, nil, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Shutdown(ctx)

	// Must not panic on the closed channel.
	if err := pool.Enqueue(context.Background(), Job{Filing: testFiling, Content: sgmlContent}); err != nil {
		t.Errorf("Enqueue() after shutdown error = %v", err)
	}
}
