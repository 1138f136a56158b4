package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/progress"
	"github.com/patrondata/importar/internal/store"
)

// StoreSink persists progress deltas via a store.OperationRepository. It
// collapses record-level counters per operation and record type to reduce
// write amplification.
type StoreSink struct {
	repo   store.OperationRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.OperationRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses record deltas and forwards them to the repository. It
// respects ctx deadlines and returns any repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*statsDelta)

	for _, evt := range batch {
		opID := evt.OpUUID()
		switch evt.Stage {
		case progress.StageOpStart, progress.StageOpDone, progress.StageOpError:
			if err := s.handleOpEvent(ctx, opID, evt); err != nil {
				return err
			}
		case progress.StageOpRecord:
			s.recordStats(stats, opID, evt)
		}
	}

	for key, delta := range stats {
		if delta.records == 0 && delta.deleted == 0 && delta.bytes == 0 {
			continue
		}
		if err := s.repo.UpsertRecordStats(
			ctx,
			key.opID,
			key.recordType,
			delta.records,
			delta.deleted,
			delta.bytes,
			delta.at,
		); err != nil {
			return fmt.Errorf("upsert record stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleOpEvent(ctx context.Context, opID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageOpStart:
		if err := s.repo.UpsertOperationStart(ctx, opID, evt.RecordType, evt.ImportType, evt.TS); err != nil {
			return fmt.Errorf("upsert operation start: %w", err)
		}
	case progress.StageOpDone:
		if err := s.repo.CompleteOperation(ctx, opID, evt.TS, store.StatusSucceeded, nil); err != nil {
			return fmt.Errorf("complete operation: %w", err)
		}
	case progress.StageOpError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteOperation(ctx, opID, evt.TS, store.StatusFailed, note); err != nil {
			return fmt.Errorf("complete operation: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) recordStats(stats map[statsKey]*statsDelta, opID uuid.UUID, evt progress.Event) {
	if evt.RecordType == "" {
		return
	}
	key := statsKey{
		opID:       opID,
		recordType: evt.RecordType,
	}
	stat := stats[key]
	if stat == nil {
		stat = &statsDelta{}
		stats[key] = stat
	}
	stat.records += evt.Records
	stat.deleted += evt.Deleted
	stat.bytes += evt.Bytes
	if evt.TS.After(stat.at) || stat.at.IsZero() {
		stat.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	opID       uuid.UUID
	recordType string
}

type statsDelta struct {
	records int64
	deleted int64
	bytes   int64
	at      time.Time
}
