package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/patrondata/importar/internal/progress"
)

// PrometheusSink exports import progress metrics via Prometheus. It owns all
// collectors for operations started/completed/running and per-record-type
// throughput counters.
type PrometheusSink struct {
	opsStarted   prometheus.Counter
	opsCompleted *prometheus.CounterVec
	opsRunning   prometheus.Gauge
	opRuntime    *prometheus.HistogramVec

	recordsImported *prometheus.CounterVec
	recordsDeleted  *prometheus.CounterVec
	recordBytes     *prometheus.CounterVec

	tracker *opTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		opsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "importar_operations_started_total",
			Help: "Total import operations that have started.",
		}),
		opsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importar_operations_completed_total",
			Help: "Total import operations completed partitioned by result.",
		}, []string{"result"}),
		opsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importar_operations_running",
			Help: "Current number of running import operations.",
		}),
		opRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "importar_operation_runtime_seconds",
			Help:    "Wall time per completed import operation.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		recordsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importar_records_imported_total",
			Help: "Records delivered to handlers partitioned by record type.",
		}, []string{"record_type"}),
		recordsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importar_records_deleted_total",
			Help: "Deletion records delivered to handlers per record type.",
		}, []string{"record_type"}),
		recordBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "importar_record_bytes_total",
			Help: "Record payload bytes delivered per record type.",
		}, []string{"record_type"}),
		tracker: newOpTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.opsStarted,
		s.opsCompleted,
		s.opsRunning,
		s.opRuntime,
		s.recordsImported,
		s.recordsDeleted,
		s.recordBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageOpStart, progress.StageOpDone, progress.StageOpError:
		s.handleOpEvent(evt)
	case progress.StageOpRecord:
		s.handleRecordEvent(evt)
	}
}

func (s *PrometheusSink) handleOpEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageOpStart:
		s.opsStarted.Inc()
		if s.tracker.start(evt.OpID) {
			s.opsRunning.Inc()
		}
	case progress.StageOpDone:
		s.opsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageOpError:
		s.opsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageOpStart && s.tracker.complete(evt.OpID) {
		s.opsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.opRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleRecordEvent(evt progress.Event) {
	recordType := evt.RecordType
	if recordType == "" {
		recordType = "unknown"
	}
	if evt.Records > 0 {
		s.recordsImported.WithLabelValues(recordType).Add(float64(evt.Records))
	}
	if evt.Deleted > 0 {
		s.recordsDeleted.WithLabelValues(recordType).Add(float64(evt.Deleted))
	}
	if evt.Bytes > 0 {
		s.recordBytes.WithLabelValues(recordType).Add(float64(evt.Bytes))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type opTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newOpTracker() *opTracker {
	return &opTracker{running: make(map[[16]byte]struct{})}
}

func (t *opTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *opTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
