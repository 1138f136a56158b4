// Package store declares interfaces for persisting import operation progress.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested row does not exist.
var ErrNotFound = errors.New("operation record not found")

// OperationStatus mirrors the import_runs status column.
type OperationStatus string

// Operation statuses persisted in import_runs.status.
const (
	StatusRunning   OperationStatus = "running"
	StatusSucceeded OperationStatus = "succeeded"
	StatusFailed    OperationStatus = "failed"
)

// OperationRun models the import_runs table for API responses.
type OperationRun struct {
	// OpID is the import operation identifier shared with the coordinator.
	OpID uuid.UUID
	// RecordType names the kind of record the operation imported.
	RecordType string
	// ImportType is full_sync or partial_update.
	ImportType string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked succeeded/failed.
	FinishedAt *time.Time
	// Status is running/succeeded/failed.
	Status OperationStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// RecordStats captures per-record-type aggregation for one operation.
type RecordStats struct {
	// OpID is the owning import operation.
	OpID uuid.UUID
	// RecordType labels the aggregated records.
	RecordType string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Records counts delivered records, deletions included.
	Records int64
	// Deleted counts delivered deletion records.
	Deleted int64
	// BytesTotal accumulates record payload bytes.
	BytesTotal int64
}

// OperationRepository persists incremental import operation progress.
type OperationRepository interface {
	// UpsertOperationStart inserts (or idempotently updates) the run row.
	UpsertOperationStart(ctx context.Context, opID uuid.UUID, recordType, importType string, startedAt time.Time) error
	// CompleteOperation marks the run finished with the provided status and error.
	CompleteOperation(ctx context.Context, opID uuid.UUID, finishedAt time.Time, status OperationStatus, errMsg *string) error
	// UpsertRecordStats applies record/deleted/byte deltas per (operation, recordType).
	UpsertRecordStats(
		ctx context.Context,
		opID uuid.UUID,
		recordType string,
		deltaRecords int64,
		deltaDeleted int64,
		deltaBytes int64,
		at time.Time,
	) error

	// GetOperation loads a single run or returns ErrNotFound.
	GetOperation(ctx context.Context, opID uuid.UUID) (OperationRun, error)
	// ListOperations returns runs filtered by optional status plus limit/offset.
	ListOperations(ctx context.Context, status *OperationStatus, limit, offset int) ([]OperationRun, error)
	// ListOperationStats returns aggregated record stats for one operation.
	ListOperationStats(ctx context.Context, opID uuid.UUID, limit, offset int) ([]RecordStats, error)
}
