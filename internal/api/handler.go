package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/history"
)

// Scorer produces a verdict for one transaction.
type Scorer interface {
	Predict(ctx context.Context, in *domain.TransactionInput) (*domain.PredictionResult, error)
}

// ModelStatus reports which classifiers are loaded.
type ModelStatus interface {
	Loaded(mode domain.Mode) bool
}

// Handler holds dependencies for the prediction API handlers.
type Handler struct {
	scorer    Scorer
	models    ModelStatus
	history   domain.HistoryStore
	repo      domain.Repository
	threshold int64
	version   string
	validate  *validator.Validate
}

// NewHandler creates a prediction API handler. repo may be nil when the
// audit log is disabled.
func NewHandler(scorer Scorer, models ModelStatus, store domain.HistoryStore, repo domain.Repository, threshold int64, version string) *Handler {
	return &Handler{
		scorer:    scorer,
		models:    models,
		history:   store,
		repo:      repo,
		threshold: threshold,
		version:   version,
		validate:  newValidator(),
	}
}

// Predict handles POST /predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var req domain.PredictRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.scorer.Predict(r.Context(), req.ToInput())
	if err != nil {
		status, msg := statusForError(err)
		slog.Error("prediction failed",
			"upi_id", req.UPIID,
			"status", status,
			"error", err,
		)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "no fraud model is loaded"
	case errors.Is(err, domain.ErrPersistenceWrite):
		return http.StatusInternalServerError, "fraud history could not be saved"
	case errors.Is(err, domain.ErrPredictionFailed):
		return http.StatusInternalServerError, "prediction failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status              string `json:"status"`
	FastModelLoaded     bool   `json:"fast_model_loaded"`
	AccurateModelLoaded bool   `json:"accurate_model_loaded"`
	History             string `json:"history"`
	Version             string `json:"version"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:              "ok",
		FastModelLoaded:     h.models.Loaded(domain.ModeFast),
		AccurateModelLoaded: h.models.Loaded(domain.ModeAccurate),
		History:             "ok",
		Version:             h.version,
	}

	if err := h.history.Ping(r.Context()); err != nil {
		slog.Warn("history health check failed", "error", err)
		resp.History = "unavailable"
		resp.Status = "degraded"
	}
	if !resp.FastModelLoaded && !resp.AccurateModelLoaded {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether the server can score transactions.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := h.models.Loaded(domain.ModeFast) || h.models.Loaded(domain.ModeAccurate)
	if ready {
		if err := h.history.Ping(r.Context()); err != nil {
			ready = false
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": ready})
}

// HistoryResponse is the body of GET /history/{upiId}.
type HistoryResponse struct {
	UPIID          string    `json:"upiId"`
	FraudCount     int64     `json:"fraud_count"`
	LastSeen       time.Time `json:"last_seen"`
	RecurringFraud bool      `json:"recurring_fraud"`
}

// GetHistory returns the fraud history of one payment handle.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimSpace(chi.URLParam(r, "upiId"))
	if handle == "" {
		writeError(w, http.StatusBadRequest, "upiId is required")
		return
	}

	rec, err := h.history.Get(r.Context(), handle)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no history for handle")
			return
		}
		slog.Error("failed to read history", "upi_id", handle, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		UPIID:          handle,
		FraudCount:     rec.FraudCount,
		LastSeen:       rec.LastSeen,
		RecurringFraud: history.IsRecurring(rec.FraudCount, h.threshold),
	})
}

// GetPrediction returns an audited prediction by ID.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "prediction id is required")
		return
	}

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction audit log not enabled")
		return
	}

	rec, err := h.repo.GetPrediction(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prediction not found")
			return
		}
		slog.Error("failed to get prediction", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read prediction")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListPredictions returns the most recent audited predictions for a handle.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimSpace(chi.URLParam(r, "upiId"))
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction audit log not enabled")
		return
	}

	recs, err := h.repo.ListPredictionsByHandle(r.Context(), handle, 0)
	if err != nil {
		slog.Error("failed to list predictions", "upi_id", handle, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}
	if recs == nil {
		recs = []*domain.PredictionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": recs,
		"count":       len(recs),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
