package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/importop"
	"github.com/patrondata/importar/internal/queue"
	qmemory "github.com/patrondata/importar/internal/queue/memory"
	"github.com/patrondata/importar/internal/record"
)

type recordCollector struct {
	mu       sync.Mutex
	records  []record.Record
	finished int
	failed   int
}

func (c *recordCollector) handler() importop.Handler {
	return &importop.FuncHandler{
		RecordFunc: func(_ context.Context, _ *importop.Operation, rec record.Record) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.records = append(c.records, rec)
			return nil
		},
		FinishedFunc: func(context.Context, *importop.Operation) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.finished++
			return nil
		},
		FailedFunc: func(context.Context, *importop.Operation) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.failed++
			return nil
		},
	}
}

func (c *recordCollector) snapshot() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records), c.finished, c.failed
}

func newTestCoordinator(collector *recordCollector) *importop.Coordinator {
	registry := importop.NewRegistry()
	registry.Subscribe(func(_ context.Context, op *importop.Operation) error {
		op.AttachHandler(collector.handler())
		return nil
	})
	return importop.NewCoordinator(registry, importop.CoordinatorConfig{})
}

// TestWorkerRunsInlineJob drives one inline job through the full pipeline.
func TestWorkerRunsInlineJob(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &recordCollector{}
	q := qmemory.NewQueue(4)
	w := New(q, newTestCoordinator(collector), Config{}, zap.NewNop())

	go w.Run(ctx)

	job := queue.ImportJob{
		JobID:      "job-1",
		RecordType: "patron",
		ImportType: "full_sync",
		Records: []record.Record{
			record.New([]record.ID{{Type: "crsid", Value: "abc1"}}, []byte(`{"name":"ada"}`)),
			record.New([]record.ID{{Type: "crsid", Value: "abc2"}}, nil),
		},
	}
	require.NoError(t, q.Enqueue(ctx, job))

	require.Eventually(t, func() bool {
		records, finished, _ := collector.snapshot()
		return records == 2 && finished == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWorkerSkipsInvalidImportType drops malformed jobs without crashing.
func TestWorkerSkipsInvalidImportType(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &recordCollector{}
	q := qmemory.NewQueue(4)
	w := New(q, newTestCoordinator(collector), Config{}, zap.NewNop())

	go w.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, queue.ImportJob{
		JobID:      "job-bad",
		RecordType: "patron",
		ImportType: "bogus",
	}))
	require.NoError(t, q.Enqueue(ctx, queue.ImportJob{
		JobID:      "job-good",
		RecordType: "patron",
		ImportType: "partial_update",
		Records: []record.Record{
			record.New([]record.ID{{Type: "crsid", Value: "abc1"}}, []byte(`{}`)),
		},
	}))

	require.Eventually(t, func() bool {
		records, finished, failed := collector.snapshot()
		return records == 1 && finished == 1 && failed == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWorkerUsesSourceFactory routes jobs through a custom source and reports
// failures from it.
func TestWorkerUsesSourceFactory(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &recordCollector{}
	q := qmemory.NewQueue(4)
	cfg := Config{
		SourceFactory: func(queue.ImportJob) (importop.RecordSource, error) {
			return &erroringSource{}, nil
		},
	}
	w := New(q, newTestCoordinator(collector), cfg, zap.NewNop())

	go w.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, queue.ImportJob{
		JobID:      "job-feed",
		RecordType: "patron",
		ImportType: "full_sync",
		FeedURL:    "http://feed.invalid/records",
	}))

	require.Eventually(t, func() bool {
		_, _, failed := collector.snapshot()
		return failed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type erroringSource struct{}

func (erroringSource) Next(context.Context) (record.Record, error) {
	return record.Record{}, errors.New("feed unavailable")
}
