package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/importop"
	"github.com/patrondata/importar/internal/record"
)

// Publisher pushes record and lifecycle envelopes to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordMessage is the JSON envelope published for each imported record.
type RecordMessage struct {
	OpID       string          `json:"op_id"`
	RecordType string          `json:"record_type"`
	ImportType string          `json:"import_type"`
	IDs        []RecordID      `json:"ids"`
	Deleted    bool            `json:"deleted"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// RecordID mirrors record.ID on the wire.
type RecordID struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// StatusMessage is published once per operation when it reaches a terminal state.
type StatusMessage struct {
	OpID       string    `json:"op_id"`
	RecordType string    `json:"record_type"`
	ImportType string    `json:"import_type"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
}

// PublishHandler forwards every record and the terminal outcome of an import
// operation to a message topic so downstream consumers outside this process
// can react to imports.
type PublishHandler struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishHandler constructs a PublishHandler for the given topic.
func NewPublishHandler(publisher Publisher, topic string, logger *zap.Logger) (*PublishHandler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishHandler{publisher: publisher, topic: topic, logger: logger}, nil
}

// OnRecordAvailable publishes a RecordMessage envelope for the record.
func (h *PublishHandler) OnRecordAvailable(ctx context.Context, op *importop.Operation, rec record.Record) error {
	msg := RecordMessage{
		OpID:       op.ID().String(),
		RecordType: string(op.RecordType()),
		ImportType: op.ImportType().String(),
		IDs:        wireIDs(rec.IDs()),
		Deleted:    rec.IsDeleted(),
	}
	if data := rec.Data(); json.Valid(data) {
		msg.Data = json.RawMessage(data)
	}
	id, err := h.publisher.Publish(ctx, h.topic, msg)
	if err != nil {
		return fmt.Errorf("publish record %s: %w", rec, err)
	}
	h.logger.Debug("published record",
		zap.String("op_id", msg.OpID),
		zap.String("message_id", id),
	)
	return nil
}

// OnImportFinished publishes a terminal status message for the operation.
func (h *PublishHandler) OnImportFinished(ctx context.Context, op *importop.Operation) error {
	return h.publishStatus(ctx, op, "finished")
}

// OnImportFailed publishes a terminal status message for the operation.
func (h *PublishHandler) OnImportFailed(ctx context.Context, op *importop.Operation) error {
	return h.publishStatus(ctx, op, "failed")
}

func (h *PublishHandler) publishStatus(ctx context.Context, op *importop.Operation, status string) error {
	msg := StatusMessage{
		OpID:       op.ID().String(),
		RecordType: string(op.RecordType()),
		ImportType: op.ImportType().String(),
		Status:     status,
		At:         time.Now().UTC(),
	}
	if _, err := h.publisher.Publish(ctx, h.topic, msg); err != nil {
		return fmt.Errorf("publish %s status: %w", status, err)
	}
	return nil
}

func wireIDs(ids []record.ID) []RecordID {
	out := make([]RecordID, len(ids))
	for i, id := range ids {
		out[i] = RecordID{Type: id.Type, Value: id.Value}
	}
	return out
}
