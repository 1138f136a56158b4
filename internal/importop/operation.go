package importop

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patrondata/importar/internal/record"
)

// Operation identifies a unique, in-flight import session which results in
// zero or more records being pushed to its attached handlers. Operations are
// created by the Coordinator and handed to registry listeners, which attach
// handlers before any records flow.
type Operation struct {
	id         uuid.UUID
	recordType record.Type
	importType record.ImportType
	startedAt  time.Time

	mu       sync.Mutex
	handlers []Handler
}

func newOperation(id uuid.UUID, recordType record.Type, importType record.ImportType, startedAt time.Time) *Operation {
	return &Operation{
		id:         id,
		recordType: recordType,
		importType: importType,
		startedAt:  startedAt,
	}
}

// ID returns the unique identifier of this operation.
func (o *Operation) ID() uuid.UUID {
	return o.id
}

// RecordType names the kind of record this operation imports.
func (o *Operation) RecordType() record.Type {
	return o.recordType
}

// ImportType reports the operation scope (full sync or partial update).
func (o *Operation) ImportType() record.ImportType {
	return o.importType
}

// StartedAt returns when the operation was created.
func (o *Operation) StartedAt() time.Time {
	return o.startedAt
}

// AttachHandler registers a handler to receive this operation's events.
// Attaching the same handler twice is a no-op. Safe for concurrent use.
func (o *Operation) AttachHandler(h Handler) {
	if h == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.handlers {
		if existing == h {
			return
		}
	}
	o.handlers = append(o.handlers, h)
}

// DetachHandler removes a previously attached handler. Detaching a handler
// that was never attached is a no-op.
func (o *Operation) DetachHandler(h Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.handlers {
		if existing == h {
			o.handlers = append(o.handlers[:i], o.handlers[i+1:]...)
			return
		}
	}
}

// Handlers returns a snapshot of the attached handlers in attach order.
func (o *Operation) Handlers() []Handler {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Handler(nil), o.handlers...)
}

// String renders a compact representation for logs.
func (o *Operation) String() string {
	return fmt.Sprintf("Operation(%s, %s, %s)", o.id, o.recordType, o.importType)
}
