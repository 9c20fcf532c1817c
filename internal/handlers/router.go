package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every API route.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			h.logger.Error("Unable to write healthcheck", "err", err)
		}
	})

	r.Get("/previews/{id}", h.HandlePreview)

	r.Route("/api", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.Get("/", h.HandleListFiles)
			r.Post("/", h.HandleUpload)
			r.Post("/url", h.HandleURLUpload)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", h.HandleDeleteFile)
				r.Get("/state", h.HandleState)
				r.Post("/select", h.HandleSelect)
				r.Post("/extract", h.HandleExtract)
				r.Post("/retry", h.HandleRetry)
			})
		})

		r.Route("/workspace", func(r chi.Router) {
			r.Get("/", h.HandleWorkspace)
			r.Post("/edit", h.HandleBeginEdit)
			r.Patch("/edit", h.HandlePendingEdit)
			r.Put("/edit", h.HandleCommitEdit)
			r.Delete("/edit", h.HandleCancelEdit)
			r.Post("/publish", h.HandlePublish)
			r.Get("/export.xlsx", h.HandleExportXLSX)
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
