package handlers

import (
	"net/http"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

var errValueRequired = apperr.Validation("value is required")

func (h *Handler) HandleWorkspace(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ws.View())
}

// HandleBeginEdit enters edit mode for one field.
func (h *Handler) HandleBeginEdit(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Section models.SectionName `json:"section"`
		Key     string             `json:"key"`
	}
	if !h.decode(w, r, &request) {
		return
	}
	value, err := h.ws.BeginEdit(request.Section, request.Key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"section": request.Section,
		"key":     request.Key,
		"value":   value,
	})
}

type valueRequest struct {
	Value *string `json:"value"`
}

// HandlePendingEdit updates the value being typed without committing it.
func (h *Handler) HandlePendingEdit(w http.ResponseWriter, r *http.Request) {
	var request valueRequest
	if !h.decode(w, r, &request) {
		return
	}
	if request.Value == nil {
		h.writeError(w, errValueRequired)
		return
	}
	if err := h.ws.SetPending(*request.Value); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.ws.View())
}

func (h *Handler) HandleCommitEdit(w http.ResponseWriter, r *http.Request) {
	var request valueRequest
	if !h.decode(w, r, &request) {
		return
	}
	if request.Value == nil {
		h.writeError(w, errValueRequired)
		return
	}
	if err := h.ws.CommitEdit(*request.Value); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.ws.View())
}

func (h *Handler) HandleCancelEdit(w http.ResponseWriter, r *http.Request) {
	h.ws.CancelEdit()
	h.writeJSON(w, http.StatusOK, h.ws.View())
}

// HandlePublish posts the working copy to the spreadsheet webhook.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ack, err := h.ws.Publish(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ack)
}

func (h *Handler) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	b, err := h.ws.ExportXLSX()
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="batch-record.xlsx"`)
	if _, err := w.Write(b); err != nil {
		h.logger.Error("Unable to write export", "err", err)
	}
}
