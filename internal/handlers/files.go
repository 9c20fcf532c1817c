package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/ingest"
	"github.com/suyaash/batchrec/internal/models"
)

type uploadResponse struct {
	Files  []*models.UploadedFile `json:"files"`
	Errors []string               `json:"errors,omitempty"`
}

// HandleUpload ingests the files of a multipart form. Files are read from the
// repeated "files" field, or a single "file".
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, apperr.Validation("Failed to read form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		h.writeError(w, apperr.Validation("no files in request"))
		return
	}

	raws := make([]ingest.RawFile, 0, len(headers))
	for _, fh := range headers {
		raws = append(raws, ingest.FromMultipart(fh))
	}
	h.respondUpload(w, raws)
}

// HandleURLUpload downloads one image and ingests it.
func (h *Handler) HandleURLUpload(w http.ResponseWriter, r *http.Request) {
	var request struct {
		URL string `json:"url"`
	}
	if !h.decode(w, r, &request) {
		return
	}
	if request.URL == "" {
		h.writeError(w, apperr.Validation("url is required"))
		return
	}

	raw, err := ingest.FromURL(r.Context(), h.client, request.URL, h.maxBytes)
	if err != nil {
		h.writeError(w, apperr.Validation("Failed to process image URL: %v", err))
		return
	}
	h.respondUpload(w, []ingest.RawFile{raw})
}

func (h *Handler) respondUpload(w http.ResponseWriter, raws []ingest.RawFile) {
	accepted, rejected := h.ws.Upload(raws)
	resp := uploadResponse{Files: accepted}
	if resp.Files == nil {
		resp.Files = []*models.UploadedFile{}
	}
	for _, err := range rejected {
		resp.Errors = append(resp.Errors, messageOf(err))
	}

	status := http.StatusCreated
	if len(accepted) == 0 {
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ws.Files())
}

func (h *Handler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Remove(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePreview serves the preview bytes of an image until it is released.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ws.Preview(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(p.Data); err != nil {
		h.logger.Error("Unable to write preview", "err", err)
	}
}

func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	st, err := h.ws.Select(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	st, err := h.ws.Extract(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, st)
}

func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	st, err := h.ws.Retry(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, st)
}

// HandleState returns a file's extraction state. With ?wait=true it blocks
// until a running extraction finishes or the client goes away.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		st  models.ExtractionState
		err error
	)
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		st, err = h.ws.Wait(r.Context(), id)
	} else {
		st, err = h.ws.State(id)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func messageOf(err error) string {
	if d := apperr.DetailOf(err); d.Message != "" {
		return d.Message
	}
	return err.Error()
}
