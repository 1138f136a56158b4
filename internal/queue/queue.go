// Package queue defines the import job queue shared by the API and workers.
// The abstraction allows the application to be independent of a specific
// queue implementation.
package queue

import (
	"context"

	"github.com/patrondata/importar/internal/record"
)

// ImportJob describes one requested import operation.
type ImportJob struct {
	// JobID identifies the submission for logging and tracing.
	JobID string
	// RecordType names the kind of record the producer pushes.
	RecordType string
	// ImportType is the wire form of record.ImportType.
	ImportType string
	// FeedURL points at a paginated JSON record feed. When set, records are
	// pulled from the feed; otherwise Records is used as-is.
	FeedURL string
	// Records carries inline records for submissions without a feed.
	Records []record.Record
}

// Queue defines the common interface for the import job queue.
type Queue interface {
	// Enqueue pushes a job or returns if the context ends.
	Enqueue(ctx context.Context, job ImportJob) error
	// Dequeue pops the next job, respecting context cancellation.
	Dequeue(ctx context.Context) (ImportJob, error)
	// Close releases queue resources; pending jobs may be dropped.
	Close()
}
