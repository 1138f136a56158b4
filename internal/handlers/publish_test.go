package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrondata/importar/internal/importop"
	pubmemory "github.com/patrondata/importar/internal/publisher/memory"
	"github.com/patrondata/importar/internal/record"
)

// TestPublishHandlerPublishesRecordsAndStatus verifies one envelope per
// record plus a terminal status message.
func TestPublishHandlerPublishesRecordsAndStatus(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	handler, err := NewPublishHandler(pub, "imports", nil)
	require.NoError(t, err)

	registry := importop.NewRegistry()
	registry.Subscribe(func(_ context.Context, op *importop.Operation) error {
		op.AttachHandler(handler)
		return nil
	})
	coord := importop.NewCoordinator(registry, importop.CoordinatorConfig{})

	records := []record.Record{
		record.New([]record.ID{{Type: "crsid", Value: "abc1"}}, []byte(`{"name":"ada"}`)),
		record.New([]record.ID{{Type: "crsid", Value: "abc2"}}, nil),
	}
	op, err := coord.Perform(
		context.Background(),
		record.Type("patron"),
		record.FullSync,
		importop.NewSliceSource(records...),
	)
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 3)

	first, ok := msgs[0].Payload.(RecordMessage)
	require.True(t, ok, "expected RecordMessage, got %T", msgs[0].Payload)
	require.Equal(t, op.ID().String(), first.OpID)
	require.Equal(t, "patron", first.RecordType)
	require.Equal(t, "full_sync", first.ImportType)
	require.False(t, first.Deleted)
	require.JSONEq(t, `{"name":"ada"}`, string(first.Data))

	second, ok := msgs[1].Payload.(RecordMessage)
	require.True(t, ok)
	require.True(t, second.Deleted)
	require.Empty(t, second.Data)

	status, ok := msgs[2].Payload.(StatusMessage)
	require.True(t, ok, "expected StatusMessage, got %T", msgs[2].Payload)
	require.Equal(t, "finished", status.Status)
	require.Equal(t, op.ID().String(), status.OpID)
}

// TestPublishHandlerReportsFailure publishes a failed status when the
// operation aborts.
func TestPublishHandlerReportsFailure(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	handler, err := NewPublishHandler(pub, "imports", nil)
	require.NoError(t, err)

	registry := importop.NewRegistry()
	registry.Subscribe(func(_ context.Context, op *importop.Operation) error {
		op.AttachHandler(handler)
		return nil
	})
	coord := importop.NewCoordinator(registry, importop.CoordinatorConfig{})

	_, err = coord.Perform(
		context.Background(),
		record.Type("patron"),
		record.FullSync,
		&failingSource{err: errors.New("feed unavailable")},
	)
	require.Error(t, err)

	msgs := pub.Messages()
	require.NotEmpty(t, msgs)
	status, ok := msgs[len(msgs)-1].Payload.(StatusMessage)
	require.True(t, ok)
	require.Equal(t, "failed", status.Status)
}

// TestPublishHandlerErrorFailsOperation propagates broker errors so the
// coordinator aborts the import.
func TestPublishHandlerErrorFailsOperation(t *testing.T) {
	t.Parallel()

	handler, err := NewPublishHandler(&failingPublisher{}, "imports", nil)
	require.NoError(t, err)

	registry := importop.NewRegistry()
	registry.Subscribe(func(_ context.Context, op *importop.Operation) error {
		op.AttachHandler(handler)
		return nil
	})
	coord := importop.NewCoordinator(registry, importop.CoordinatorConfig{})

	rec := record.New([]record.ID{{Type: "crsid", Value: "abc1"}}, []byte(`{}`))
	_, err = coord.Perform(
		context.Background(),
		record.Type("patron"),
		record.FullSync,
		importop.NewSliceSource(rec),
	)
	require.Error(t, err)

	var opErr *importop.OperationError
	require.ErrorAs(t, err, &opErr)
}

// TestNewPublishHandlerValidation rejects missing dependencies.
func TestNewPublishHandlerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPublishHandler(nil, "imports", nil)
	require.Error(t, err)

	_, err = NewPublishHandler(pubmemory.New(), "", nil)
	require.Error(t, err)
}

type failingSource struct {
	err error
}

func (s *failingSource) Next(context.Context) (record.Record, error) {
	return record.Record{}, s.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("broker unavailable")
}
