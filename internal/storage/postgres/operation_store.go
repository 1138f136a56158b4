// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrondata/importar/internal/store"
)

// Config controls the Postgres connection pool used for operation rows.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// OperationStore implements store.OperationRepository using Postgres.
type OperationStore struct {
	pool pgxPool
}

// NewOperationStore connects a pool using the provided config.
func NewOperationStore(ctx context.Context, cfg Config) (*OperationStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &OperationStore{pool: pool}, nil
}

// NewOperationStoreWithPool wires an existing pool; used by tests to inject
// pgxmock.
func NewOperationStoreWithPool(pool pgxPool) (*OperationStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &OperationStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *OperationStore) Close() {
	s.pool.Close()
}

// UpsertOperationStart inserts or idempotently updates an operation's run row.
func (s *OperationStore) UpsertOperationStart(
	ctx context.Context,
	opID uuid.UUID,
	recordType, importType string,
	startedAt time.Time,
) error {
	query := `
		INSERT INTO import_runs (op_id, record_type, import_type, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (op_id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query, opID, recordType, importType, startedAt, store.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to upsert operation start: %w", err)
	}
	return nil
}

// CompleteOperation marks a run as finished with a status and optional error message.
func (s *OperationStore) CompleteOperation(
	ctx context.Context,
	opID uuid.UUID,
	finishedAt time.Time,
	status store.OperationStatus,
	errMsg *string,
) error {
	query := `
		UPDATE import_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE op_id = $4;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, opID)
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}
	return nil
}

// UpsertRecordStats applies per-record-type deltas for an operation.
func (s *OperationStore) UpsertRecordStats(
	ctx context.Context,
	opID uuid.UUID,
	recordType string,
	deltaRecords, deltaDeleted, deltaBytes int64,
	at time.Time,
) error {
	query := `
		INSERT INTO record_stats (op_id, record_type, last_update, records, deleted, bytes_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (op_id, record_type) DO UPDATE
		SET records = record_stats.records + EXCLUDED.records,
			deleted = record_stats.deleted + EXCLUDED.deleted,
			bytes_total = record_stats.bytes_total + EXCLUDED.bytes_total,
			last_update = GREATEST(record_stats.last_update, EXCLUDED.last_update);
	`
	_, err := s.pool.Exec(ctx, query, opID, recordType, at, deltaRecords, deltaDeleted, deltaBytes)
	if err != nil {
		return fmt.Errorf("failed to upsert record stats: %w", err)
	}
	return nil
}

// GetOperation retrieves a single run by its operation ID.
func (s *OperationStore) GetOperation(ctx context.Context, opID uuid.UUID) (store.OperationRun, error) {
	query := `
		SELECT op_id, record_type, import_type, started_at, finished_at, status, error_message
		FROM import_runs
		WHERE op_id = $1;
	`
	var run store.OperationRun
	err := s.pool.QueryRow(ctx, query, opID).Scan(
		&run.OpID,
		&run.RecordType,
		&run.ImportType,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OperationRun{}, store.ErrNotFound
		}
		return store.OperationRun{}, fmt.Errorf("failed to get operation: %w", err)
	}
	return run, nil
}

// ListOperations retrieves runs, newest first, with optional status filtering.
func (s *OperationStore) ListOperations(
	ctx context.Context,
	status *store.OperationStatus,
	limit, offset int,
) ([]store.OperationRun, error) {
	query := `
		SELECT op_id, record_type, import_type, started_at, finished_at, status, error_message
		FROM import_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var runs []store.OperationRun
	for rows.Next() {
		var run store.OperationRun
		err := rows.Scan(
			&run.OpID,
			&run.RecordType,
			&run.ImportType,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListOperationStats retrieves aggregated record statistics for one operation.
func (s *OperationStore) ListOperationStats(
	ctx context.Context,
	opID uuid.UUID,
	limit, offset int,
) ([]store.RecordStats, error) {
	query := `
		SELECT op_id, record_type, last_update, records, deleted, bytes_total
		FROM record_stats
		WHERE op_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, opID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operation stats: %w", err)
	}
	defer rows.Close()

	var stats []store.RecordStats
	for rows.Next() {
		var stat store.RecordStats
		err := rows.Scan(
			&stat.OpID,
			&stat.RecordType,
			&stat.LastUpdate,
			&stat.Records,
			&stat.Deleted,
			&stat.BytesTotal,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
