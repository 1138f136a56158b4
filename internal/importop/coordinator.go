package importop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/clock"
	"github.com/patrondata/importar/internal/id"
	iduuid "github.com/patrondata/importar/internal/id/uuid"
	"github.com/patrondata/importar/internal/progress"
	"github.com/patrondata/importar/internal/record"
)

// CoordinatorConfig carries the optional collaborators of a Coordinator.
// Zero values are replaced with safe defaults.
type CoordinatorConfig struct {
	// Emitter receives progress events for every operation.
	Emitter progress.Emitter
	// Clock supplies operation timestamps.
	Clock clock.Clock
	// IDs supplies operation identifiers.
	IDs id.Generator
	// Logger records handler failures during robust notification.
	Logger *zap.Logger
}

// Coordinator runs import operations on behalf of producers. It announces new
// operations through the Registry, pushes records to attached handlers, and
// enforces the terminal-callback contract.
type Coordinator struct {
	registry *Registry
	emitter  progress.Emitter
	clock    clock.Clock
	ids      id.Generator
	logger   *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewCoordinator builds a Coordinator over the given registry.
func NewCoordinator(registry *Registry, cfg CoordinatorConfig) *Coordinator {
	if registry == nil {
		registry = NewRegistry()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = systemClock{}
	}
	ids := cfg.IDs
	if ids == nil {
		ids = iduuid.NewUUIDGenerator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		registry: registry,
		emitter:  emitter,
		clock:    clk,
		ids:      ids,
		logger:   logger,
	}
}

// Registry returns the registry operations are announced through.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Perform runs one import operation: it announces the operation to every
// registry listener, pulls records from source until ErrEndOfFeed, and pushes
// each record to the handlers attached to the operation.
//
// Contract: every handler attached when the start announcement completes
// receives exactly one of OnImportFinished or OnImportFailed, even when other
// handlers error or panic during that notification. Failures other than
// argument validation are reported as *OperationError.
func (c *Coordinator) Perform(
	ctx context.Context,
	recordType record.Type,
	importType record.ImportType,
	source RecordSource,
) (*Operation, error) {
	if err := recordType.Validate(); err != nil {
		return nil, err
	}
	if !importType.Valid() {
		return nil, fmt.Errorf("import type is not a known ImportType: %q", importType)
	}
	if source == nil {
		return nil, errors.New("record source is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opID, err := c.ids.NewRawID()
	if err != nil {
		return nil, fmt.Errorf("generate operation id: %w", err)
	}

	start := c.clock.Now()
	op := newOperation(opID, recordType, importType, start)

	c.emitLifecycle(op, progress.StageOpStart, 0, "")

	if err := c.notifyStarted(ctx, op); err != nil {
		return op, c.failOperation(ctx, op, start, "import started listener raised error", err)
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return op, c.failOperation(ctx, op, start, "import canceled", ctxErr)
		}
		rec, err := source.Next(ctx)
		if errors.Is(err, ErrEndOfFeed) {
			break
		}
		if err != nil {
			return op, c.failOperation(ctx, op, start, "record source raised error", err)
		}
		if err := rec.Validate(); err != nil {
			return op, c.failOperation(ctx, op, start, "record source produced invalid record", err)
		}
		if err := c.deliverRecord(ctx, op, rec); err != nil {
			return op, c.failOperation(ctx, op, start, "handler rejected record", err)
		}
		c.emitRecord(op, rec)
	}

	handlerErrs := c.notifyTerminal(ctx, op, terminalFinished)
	c.emitLifecycle(op, progress.StageOpDone, c.clock.Now().Sub(start), "")
	if len(handlerErrs) > 0 {
		return op, newOperationError(op, "handler raised error from OnImportFinished", handlerErrs[0].Err, handlerErrs)
	}
	return op, nil
}

// deliverRecord pushes one record to every handler in attach order, stopping
// at the first error. A panicking handler is reported as an error.
func (c *Coordinator) deliverRecord(ctx context.Context, op *Operation, rec record.Record) error {
	for _, h := range op.Handlers() {
		handler := h
		if err := safeCall(func() error {
			return handler.OnRecordAvailable(ctx, op, rec)
		}); err != nil {
			return err
		}
	}
	return nil
}

// failOperation robustly notifies every handler of the failure, emits the
// terminal progress event, and wraps the cause.
func (c *Coordinator) failOperation(
	ctx context.Context,
	op *Operation,
	start time.Time,
	msg string,
	cause error,
) *OperationError {
	handlerErrs := c.notifyTerminal(ctx, op, terminalFailed)
	c.emitLifecycle(op, progress.StageOpError, c.clock.Now().Sub(start), msg)
	return newOperationError(op, msg, cause, handlerErrs)
}

type terminalKind string

const (
	terminalFinished terminalKind = "OnImportFinished"
	terminalFailed   terminalKind = "OnImportFailed"
)

// notifyTerminal invokes the terminal callback on every attached handler,
// never stopping at a failure. Errors and recovered panics are logged and
// collected so callers can report them.
func (c *Coordinator) notifyTerminal(ctx context.Context, op *Operation, kind terminalKind) []HandlerError {
	var errs []HandlerError
	for _, h := range op.Handlers() {
		handler := h
		err := safeCall(func() error {
			if kind == terminalFailed {
				return handler.OnImportFailed(ctx, op)
			}
			return handler.OnImportFinished(ctx, op)
		})
		if err != nil {
			errs = append(errs, HandlerError{Handler: handler, Err: err})
			c.logger.Error("import handler terminal callback failed",
				zap.String("op_id", op.ID().String()),
				zap.String("callback", string(kind)),
				zap.Error(err),
			)
		}
	}
	return errs
}

// notifyStarted announces the operation to every listener in subscription
// order. All listeners run even when an earlier one fails; the first error is
// returned, the rest are logged.
func (c *Coordinator) notifyStarted(ctx context.Context, op *Operation) error {
	var first error
	for _, l := range c.registry.snapshot() {
		listener := l
		err := safeCall(func() error {
			return listener(ctx, op)
		})
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		} else {
			c.logger.Error("import started listener failed",
				zap.String("op_id", op.ID().String()),
				zap.Error(err),
			)
		}
	}
	return first
}

func (c *Coordinator) emitLifecycle(op *Operation, stage progress.Stage, dur time.Duration, note string) {
	c.emitter.Emit(progress.Event{
		OpID:       progress.UUIDToBytes(op.ID()),
		TS:         c.clock.Now(),
		Stage:      stage,
		RecordType: string(op.RecordType()),
		ImportType: op.ImportType().String(),
		Dur:        dur,
		Note:       note,
	})
}

func (c *Coordinator) emitRecord(op *Operation, rec record.Record) {
	evt := progress.Event{
		OpID:       progress.UUIDToBytes(op.ID()),
		TS:         c.clock.Now(),
		Stage:      progress.StageOpRecord,
		RecordType: string(op.RecordType()),
		ImportType: op.ImportType().String(),
		Records:    1,
		Bytes:      int64(len(rec.Data())),
	}
	if rec.IsDeleted() {
		evt.Deleted = 1
	}
	c.emitter.Emit(evt)
}

// safeCall runs fn and converts a panic into an error so a misbehaving
// handler cannot break the terminal-callback contract for its peers.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn()
}
