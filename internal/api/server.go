package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/config"
	"github.com/patrondata/importar/internal/dispatcher"
	"github.com/patrondata/importar/internal/queue"
	"github.com/patrondata/importar/internal/record"
	"github.com/patrondata/importar/internal/store"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	dispatcher *dispatcher.Dispatcher
	operations *OperationHandler
	registry   *prometheus.Registry
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	d *dispatcher.Dispatcher,
	repo store.OperationRepository,
	registry *prometheus.Registry,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dispatcher: d,
		operations: NewOperationHandler(repo, logger),
		registry:   registry,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	if registry != nil {
		if m, err := newHTTPMetrics(registry); err != nil {
			logger.Warn("http metrics registration failed", zap.Error(err))
		} else {
			r.Use(metricsMiddleware(m))
		}
	}
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", s.metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/imports", s.submitImport)
		r.Route("/operations", func(r chi.Router) {
			r.Get("/", s.operations.ListOperations)
			r.Route("/{op_id}", func(r chi.Router) {
				r.Get("/", s.operations.GetOperation)
				r.Get("/stats", s.operations.ListOperationStats)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// In-memory dependencies are always ready; in future check downstreams.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics registry unavailable")
		return
	}
	promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// submitRequest triggers an import either from a named standard feed or from
// explicit parameters. Name takes precedence when set.
type submitRequest struct {
	Name       string        `json:"name"`
	RecordType string        `json:"record_type"`
	ImportType string        `json:"import_type"`
	FeedURL    string        `json:"feed_url"`
	Records    []submitRecord `json:"records"`
}

type submitRecord struct {
	IDs  []submitID      `json:"ids"`
	Data json.RawMessage `json:"data"`
}

type submitID struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *Server) submitImport(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.toImportJob(req)
	if err != nil {
		if errors.Is(err, errFeedNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Enqueue(queueCtx, job); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
}

var errFeedNotFound = errors.New("standard feed not found")

func (s *Server) toImportJob(req submitRequest) (queue.ImportJob, error) {
	job := queue.ImportJob{JobID: uuid.NewString()}

	if req.Name != "" {
		feed, ok := s.cfg.StandardFeeds[req.Name]
		if !ok {
			return queue.ImportJob{}, errFeedNotFound
		}
		job.RecordType = feed.RecordType
		job.ImportType = feed.ImportType
		job.FeedURL = feed.URL
		if job.ImportType == "" {
			job.ImportType = record.FullSync.String()
		}
		return job, nil
	}

	if req.RecordType == "" {
		return queue.ImportJob{}, errors.New("record_type is required")
	}
	if _, err := record.ParseImportType(req.ImportType); err != nil {
		return queue.ImportJob{}, err
	}
	if req.FeedURL == "" && len(req.Records) == 0 {
		return queue.ImportJob{}, errors.New("feed_url or records required")
	}

	job.RecordType = req.RecordType
	job.ImportType = req.ImportType
	job.FeedURL = req.FeedURL

	for _, wire := range req.Records {
		ids := make([]record.ID, len(wire.IDs))
		for i, id := range wire.IDs {
			ids[i] = record.ID{Type: id.Type, Value: id.Value}
		}
		var data []byte
		if len(wire.Data) > 0 && string(wire.Data) != "null" {
			data = append([]byte(nil), wire.Data...)
		}
		rec := record.New(ids, data)
		if err := rec.Validate(); err != nil {
			return queue.ImportJob{}, fmt.Errorf("invalid record: %w", err)
		}
		job.Records = append(job.Records, rec)
	}
	return job, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
