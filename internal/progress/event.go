// Package progress defines the event structures emitted during import operations.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageOpStart  Stage = "OP_START"
	StageOpRecord Stage = "OP_RECORD"
	StageOpDone   Stage = "OP_DONE"
	StageOpError  Stage = "OP_ERROR"
)

// Event captures a single milestone of import operation progress.
type Event struct {
	// OpID uniquely identifies an import operation using the 16-byte UUID form.
	OpID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or record milestone occurred.
	Stage Stage
	// RecordType labels the kind of record being imported.
	RecordType string
	// ImportType is the operation scope (full_sync or partial_update).
	ImportType string
	// Records increments by one for each record delivered to handlers.
	Records int64
	// Deleted increments by one when the delivered record is a deletion.
	Deleted int64
	// Bytes carries the payload size delta for the record.
	Bytes int64
	// Dur captures wall time for completed operations.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.OpID == [16]byte{} {
		return errors.New("operation id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageOpStart, StageOpDone, StageOpError:
	case StageOpRecord:
		if e.RecordType == "" {
			return errors.New("record event requires record type")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Records < 0 || e.Deleted < 0 || e.Bytes < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}

// OpUUID converts the binary operation ID to uuid.UUID for repositories.
func (e Event) OpUUID() uuid.UUID {
	return uuid.UUID(e.OpID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
