package importop

import (
	"context"
	"fmt"

	"github.com/patrondata/importar/internal/record"
)

// Handler receives the events of one or more import operations. Implementations
// are invoked synchronously and in attach order; a record callback error fails
// the operation, while terminal callback errors are collected so every handler
// still receives its terminal callback.
type Handler interface {
	// OnRecordAvailable is called once per record pushed by the producer.
	OnRecordAvailable(ctx context.Context, op *Operation, rec record.Record) error
	// OnImportFinished is called exactly once when the operation completes
	// successfully. Mutually exclusive with OnImportFailed.
	OnImportFinished(ctx context.Context, op *Operation) error
	// OnImportFailed is called exactly once when the operation aborts.
	OnImportFailed(ctx context.Context, op *Operation) error
}

// FuncHandler adapts plain functions to the Handler interface. Nil fields
// behave as no-ops, so consumers only implement the callbacks they care about.
type FuncHandler struct {
	RecordFunc   func(ctx context.Context, op *Operation, rec record.Record) error
	FinishedFunc func(ctx context.Context, op *Operation) error
	FailedFunc   func(ctx context.Context, op *Operation) error
}

// OnRecordAvailable invokes RecordFunc when set.
func (h *FuncHandler) OnRecordAvailable(ctx context.Context, op *Operation, rec record.Record) error {
	if h.RecordFunc == nil {
		return nil
	}
	return h.RecordFunc(ctx, op, rec)
}

// OnImportFinished invokes FinishedFunc when set.
func (h *FuncHandler) OnImportFinished(ctx context.Context, op *Operation) error {
	if h.FinishedFunc == nil {
		return nil
	}
	return h.FinishedFunc(ctx, op)
}

// OnImportFailed invokes FailedFunc when set.
func (h *FuncHandler) OnImportFailed(ctx context.Context, op *Operation) error {
	if h.FailedFunc == nil {
		return nil
	}
	return h.FailedFunc(ctx, op)
}

// OneOffHandler wraps a Handler and rejects events from any operation other
// than the one it was created for. Useful for consumers that keep per-operation
// state and must not be fed a stray operation's records.
type OneOffHandler struct {
	op    *Operation
	inner Handler
}

// NewOneOffHandler binds inner to a single operation.
func NewOneOffHandler(op *Operation, inner Handler) *OneOffHandler {
	return &OneOffHandler{op: op, inner: inner}
}

func (h *OneOffHandler) validateOperation(op *Operation) error {
	if op != h.op {
		return fmt.Errorf("received event from operation %s, bound to %s", op.ID(), h.op.ID())
	}
	return nil
}

// OnRecordAvailable forwards the record after validating operation identity.
func (h *OneOffHandler) OnRecordAvailable(ctx context.Context, op *Operation, rec record.Record) error {
	if err := h.validateOperation(op); err != nil {
		return err
	}
	return h.inner.OnRecordAvailable(ctx, op, rec)
}

// OnImportFinished forwards the callback after validating operation identity.
func (h *OneOffHandler) OnImportFinished(ctx context.Context, op *Operation) error {
	if err := h.validateOperation(op); err != nil {
		return err
	}
	return h.inner.OnImportFinished(ctx, op)
}

// OnImportFailed forwards the callback after validating operation identity.
func (h *OneOffHandler) OnImportFailed(ctx context.Context, op *Operation) error {
	if err := h.validateOperation(op); err != nil {
		return err
	}
	return h.inner.OnImportFailed(ctx, op)
}
