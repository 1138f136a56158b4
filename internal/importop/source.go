package importop

import (
	"context"
	"errors"
	"fmt"

	"github.com/patrondata/importar/internal/record"
)

// ErrEndOfFeed is returned by RecordSource.Next once the producer has pushed
// its final record.
var ErrEndOfFeed = errors.New("end of record feed")

// RecordSource supplies the records of one import operation in producer order.
// Implementations return ErrEndOfFeed after the last record; any other error
// fails the operation.
type RecordSource interface {
	Next(ctx context.Context) (record.Record, error)
}

// SliceSource serves records from an in-memory slice. Not safe for concurrent
// use; a source belongs to a single operation.
type SliceSource struct {
	records []record.Record
	idx     int
}

// NewSliceSource builds a SliceSource over the given records.
func NewSliceSource(records ...record.Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record or ErrEndOfFeed.
func (s *SliceSource) Next(ctx context.Context) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, fmt.Errorf("record source canceled: %w", err)
	}
	if s.idx >= len(s.records) {
		return record.Record{}, ErrEndOfFeed
	}
	rec := s.records[s.idx]
	s.idx++
	return rec, nil
}

// ChannelSource serves records from a channel until it is closed, letting
// producers push records from another goroutine.
type ChannelSource struct {
	ch <-chan record.Record
}

// NewChannelSource wraps a record channel.
func NewChannelSource(ch <-chan record.Record) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// Next blocks for the next record, ErrEndOfFeed on channel close, or a
// cancellation error when ctx finishes first.
func (s *ChannelSource) Next(ctx context.Context) (record.Record, error) {
	select {
	case <-ctx.Done():
		return record.Record{}, fmt.Errorf("record source canceled: %w", ctx.Err())
	case rec, ok := <-s.ch:
		if !ok {
			return record.Record{}, ErrEndOfFeed
		}
		return rec, nil
	}
}
