package importop

import (
	"fmt"

	"github.com/google/uuid"
)

// HandlerError pairs a handler with the error (or recovered panic) it raised
// during a callback.
type HandlerError struct {
	Handler Handler
	Err     error
}

// OperationError reports a failed or partially failed import operation. The
// failure contract still held when this error is returned: every attached
// handler received exactly one terminal callback.
type OperationError struct {
	// OpID identifies the operation, when one was created.
	OpID uuid.UUID
	// HandlerErrors collects per-handler callback failures, if any.
	HandlerErrors []HandlerError

	msg   string
	cause error
}

func newOperationError(op *Operation, msg string, cause error, handlerErrs []HandlerError) *OperationError {
	e := &OperationError{msg: msg, cause: cause, HandlerErrors: handlerErrs}
	if op != nil {
		e.OpID = op.ID()
	}
	return e
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("import operation %s: %s: %v", e.OpID, e.msg, e.cause)
	}
	return fmt.Sprintf("import operation %s: %s", e.OpID, e.msg)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *OperationError) Unwrap() error {
	return e.cause
}
