package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/explain"
)

// ExplainHandler serves the explanation service.
type ExplainHandler struct {
	backend  explain.Backend
	name     string
	validate *validator.Validate
}

// NewExplainHandler creates a handler around backend. name is reported by
// the health endpoint.
func NewExplainHandler(backend explain.Backend, name string) *ExplainHandler {
	return &ExplainHandler{
		backend:  backend,
		name:     name,
		validate: newValidator(),
	}
}

// Explain handles POST /explain.
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var body domain.ExplainRequest
	if err := decodeAndValidate(w, r, h.validate, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := body.ToExplanationRequest()

	text, err := h.backend.Explain(r.Context(), req)
	if err != nil {
		slog.Error("explanation backend failed",
			"backend", h.name,
			"language", req.Language,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "explanation failed")
		return
	}

	writeJSON(w, http.StatusOK, domain.ExplanationResponse{Explanation: text})
}

// Health returns the service status and active backend.
func (h *ExplainHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": h.name,
	})
}
