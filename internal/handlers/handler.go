package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/workspace"
)

// Handler serves the HTTP API over one workspace.
type Handler struct {
	ws       *workspace.Workspace
	client   *http.Client // used for URL uploads
	maxBytes int64
	logger   *slog.Logger
}

func New(ws *workspace.Workspace, maxBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ws:       ws,
		client:   &http.Client{},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var f *apperr.Fail
	if errors.As(err, &f) {
		resp.Error = f.Message
		resp.Stage = string(f.Stage)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "err", err)
	} else {
		h.logger.Warn("request rejected", "status", status, "err", err)
	}
	h.writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrParse):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		h.writeError(w, apperr.Validation("Invalid JSON: %v", err))
		return false
	}
	return true
}
