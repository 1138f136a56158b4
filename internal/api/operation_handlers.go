package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrondata/importar/internal/store"
)

const (
	defaultOperationLimit = 50
	maxOperationLimit     = 500
	defaultStatsLimit     = 100
	maxStatsLimit         = 1000
	operationTimeout      = 3 * time.Second
)

// OperationHandler exposes read-only import operation endpoints.
type OperationHandler struct {
	repo    store.OperationRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewOperationHandler wires the repository and logger.
func NewOperationHandler(repo store.OperationRepository, logger *zap.Logger) *OperationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationHandler{
		repo:    repo,
		timeout: operationTimeout,
		logger:  logger,
	}
}

// ListOperations handles GET /v1/operations?status=&limit=&offset=. It returns
// a JSON object {"operations": [...]} on success, 400 for invalid filters, 503
// when the repo is unavailable, or 500 if the repository call fails.
func (h *OperationHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "operation repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := parseLimitOffset(r, defaultOperationLimit, maxOperationLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	statusParam := strings.TrimSpace(r.URL.Query().Get("status"))
	var status *store.OperationStatus
	if statusParam != "" {
		statusVal, parseErr := parseStatus(statusParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &statusVal
	}
	runs, err := h.repo.ListOperations(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list operations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": toOperationDTOs(runs),
	})
}

// GetOperation handles GET /v1/operations/{op_id}. It returns
// {"operation": {...}} on success, 400 for malformed IDs, 404 when the
// repository reports store.ErrNotFound, 503 if the repo is not initialized,
// or 500 otherwise.
func (h *OperationHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "operation repository unavailable")
		return
	}
	opID, err := parseOpID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetOperation(ctx, opID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "operation not found")
			return
		}
		h.logger.Error("get operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load operation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operation": toOperationDTO(run)})
}

// ListOperationStats handles GET /v1/operations/{op_id}/stats?limit=&offset=.
// It returns {"stats": [...]} on success, 400 for invalid query parameters,
// 503 when the repository is missing, or 500 for repository errors.
func (h *OperationHandler) ListOperationStats(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "operation repository unavailable")
		return
	}
	opID, err := parseOpID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultStatsLimit, maxStatsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.repo.ListOperationStats(ctx, opID, limit, offset)
	if err != nil {
		h.logger.Error("list operation stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list operation stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": toStatsDTOs(stats),
	})
}

func parseOpID(r *http.Request) (uuid.UUID, error) {
	opIDStr := chi.URLParam(r, "op_id")
	if opIDStr == "" {
		return uuid.UUID{}, errors.New("op_id is required")
	}
	opID, err := uuid.Parse(opIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid op_id")
	}
	return opID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.OperationStatus, error) {
	switch strings.ToLower(input) {
	case "", "running":
		return store.StatusRunning, nil
	case "success", "succeeded":
		return store.StatusSucceeded, nil
	case "error", "failed", "failure":
		return store.StatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toOperationDTOs(in []store.OperationRun) []operationDTO {
	out := make([]operationDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toOperationDTO(run))
	}
	return out
}

func toOperationDTO(run store.OperationRun) operationDTO {
	dto := operationDTO{
		OpID:       run.OpID.String(),
		RecordType: run.RecordType,
		ImportType: run.ImportType,
		StartedAt:  run.StartedAt,
		Status:     string(run.Status),
		Error:      run.ErrorMessage,
	}
	if run.FinishedAt != nil {
		dto.FinishedAt = run.FinishedAt
	}
	return dto
}

func toStatsDTOs(in []store.RecordStats) []statsDTO {
	out := make([]statsDTO, 0, len(in))
	for _, s := range in {
		out = append(out, statsDTO{
			RecordType: s.RecordType,
			LastUpdate: s.LastUpdate,
			Records:    s.Records,
			Deleted:    s.Deleted,
			BytesTotal: s.BytesTotal,
		})
	}
	return out
}

type operationDTO struct {
	OpID       string     `json:"op_id"`
	RecordType string     `json:"record_type"`
	ImportType string     `json:"import_type"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
}

type statsDTO struct {
	RecordType string    `json:"record_type"`
	LastUpdate time.Time `json:"last_update"`
	Records    int64     `json:"records"`
	Deleted    int64     `json:"deleted"`
	BytesTotal int64     `json:"bytes_total"`
}
