// Package worker implements the import execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/importop"
	"github.com/patrondata/importar/internal/queue"
	"github.com/patrondata/importar/internal/record"
	"github.com/patrondata/importar/internal/source/feed"
)

// Config controls Worker behavior.
type Config struct {
	// FeedUserAgent is sent on feed requests.
	FeedUserAgent string
	// FeedTimeout bounds each feed page request.
	FeedTimeout time.Duration
	// FeedMaxPages bounds feed pagination.
	FeedMaxPages int
	// FeedLimiter paces feed page fetches across all workers. Optional.
	FeedLimiter feed.Waiter
	// SourceFactory overrides how record sources are built from jobs.
	// Leave nil for the default feed/inline behavior.
	SourceFactory func(job queue.ImportJob) (importop.RecordSource, error)
}

// Worker consumes import jobs and runs them through the coordinator.
type Worker struct {
	queue  queue.Queue
	coord  *importop.Coordinator
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(q queue.Queue, coord *importop.Coordinator, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  q,
		coord:  coord,
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks, consuming jobs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued import job", zap.String("job_id", job.JobID))
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.ImportJob) {
	importType, err := record.ParseImportType(job.ImportType)
	if err != nil {
		w.logger.Error("invalid import job",
			zap.String("job_id", job.JobID),
			zap.Error(err),
		)
		return
	}

	src, err := w.buildSource(job)
	if err != nil {
		w.logger.Error("build record source failed",
			zap.String("job_id", job.JobID),
			zap.Error(err),
		)
		return
	}

	op, err := w.coord.Perform(ctx, record.Type(job.RecordType), importType, src)
	if err != nil {
		fields := []zap.Field{
			zap.String("job_id", job.JobID),
			zap.String("record_type", job.RecordType),
			zap.Error(err),
		}
		if op != nil {
			fields = append(fields, zap.String("op_id", op.ID().String()))
		}
		w.logger.Error("import operation failed", fields...)
		return
	}
	w.logger.Info("import operation finished",
		zap.String("job_id", job.JobID),
		zap.String("op_id", op.ID().String()),
		zap.String("record_type", job.RecordType),
		zap.String("import_type", job.ImportType),
	)
}

func (w *Worker) buildSource(job queue.ImportJob) (importop.RecordSource, error) {
	if w.cfg.SourceFactory != nil {
		return w.cfg.SourceFactory(job)
	}
	if job.FeedURL != "" {
		src, err := feed.New(job.FeedURL, feed.Config{
			UserAgent: w.cfg.FeedUserAgent,
			Timeout:   w.cfg.FeedTimeout,
			MaxPages:  w.cfg.FeedMaxPages,
			Limiter:   w.cfg.FeedLimiter,
		})
		if err != nil {
			return nil, fmt.Errorf("feed source: %w", err)
		}
		return src, nil
	}
	return importop.NewSliceSource(job.Records...), nil
}
