package handlers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/archive"
	"github.com/patrondata/importar/internal/importop"
	"github.com/patrondata/importar/internal/record"
)

// ArchiveHandler writes each imported record payload to a blob store so raw
// producer data can be replayed or audited later. Deletion records carry no
// payload and are skipped.
type ArchiveHandler struct {
	store       archive.BlobStore
	prefix      string
	contentType string
	logger      *zap.Logger
}

// ArchiveConfig tunes where and how record payloads are stored.
type ArchiveConfig struct {
	// Prefix is prepended to every object path, e.g. "imports".
	Prefix string
	// ContentType is stamped on stored objects; defaults to application/json.
	ContentType string
	Logger      *zap.Logger
}

// NewArchiveHandler constructs an ArchiveHandler over the given blob store.
func NewArchiveHandler(store archive.BlobStore, cfg ArchiveConfig) (*ArchiveHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ArchiveHandler{
		store:       store,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		contentType: cfg.ContentType,
		logger:      cfg.Logger,
	}, nil
}

// OnRecordAvailable stores the record payload under a path derived from the
// operation and the record's first identifier.
func (h *ArchiveHandler) OnRecordAvailable(ctx context.Context, op *importop.Operation, rec record.Record) error {
	if rec.IsDeleted() {
		return nil
	}
	path := h.objectPath(op, rec)
	uri, err := h.store.PutObject(ctx, path, h.contentType, bytes.NewReader(rec.Data()))
	if err != nil {
		return fmt.Errorf("archive record %s: %w", rec, err)
	}
	h.logger.Debug("archived record",
		zap.String("op_id", op.ID().String()),
		zap.String("uri", uri),
	)
	return nil
}

// OnImportFinished implements importop.Handler; nothing to flush.
func (h *ArchiveHandler) OnImportFinished(context.Context, *importop.Operation) error {
	return nil
}

// OnImportFailed implements importop.Handler. Archived payloads from a failed
// operation are kept; partial archives are still useful for diagnosis.
func (h *ArchiveHandler) OnImportFailed(_ context.Context, op *importop.Operation) error {
	h.logger.Warn("import failed, keeping partial archive",
		zap.String("op_id", op.ID().String()),
	)
	return nil
}

func (h *ArchiveHandler) objectPath(op *importop.Operation, rec record.Record) string {
	name := "record"
	if ids := rec.IDs(); len(ids) > 0 {
		name = sanitizeSegment(ids[0].String())
	}
	parts := []string{string(op.RecordType()), op.ID().String(), name + ".json"}
	if h.prefix != "" {
		parts = append([]string{h.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// sanitizeSegment keeps object names safe for path-based stores.
func sanitizeSegment(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	return replacer.Replace(s)
}
