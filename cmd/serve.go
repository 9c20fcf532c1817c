package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/suyaash/batchrec/internal/extraction"
	"github.com/suyaash/batchrec/internal/handlers"
	"github.com/suyaash/batchrec/internal/ingest"
	"github.com/suyaash/batchrec/internal/ocr"
	"github.com/suyaash/batchrec/internal/sheets"
	"github.com/suyaash/batchrec/internal/storage"
	"github.com/suyaash/batchrec/internal/workspace"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the batch-record web API",
		Long: `Starts the batch-record API on the specified port.

Uploaded images are read with the configured OCR provider and their text is
turned into structured records by the configured extraction provider. Records
can be edited one field at a time and published to the spreadsheet web app.`,
		Example: `  # Start server on default port 8888
  batchrec serve

  # Start server on custom port, extracting only on request
  batchrec serve --port 3000 --auto-extract=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			recognizer, err := ocr.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			extractor, err := extraction.New(cfg, logger)
			if err != nil {
				return err
			}

			var publisher workspace.Publisher
			if cfg.Sheet.WebhookURL != "" {
				p, err := sheets.NewPublisher(cfg.Sheet.WebhookURL, cfg.Sheet.Timeout, logger)
				if err != nil {
					return err
				}
				publisher = p
			} else {
				logger.Warn("SHEET_WEBHOOK_URL not set, publishing is disabled")
			}

			previews := storage.NewPreviewStore()
			ingestor := ingest.New(cfg.Upload.MaxBytes, previews,
				ingest.WithAllowedTypes(cfg.Upload.AllowedTypes),
				ingest.WithLogger(logger),
			)
			ws := workspace.New(workspace.Config{
				Ingestor:    ingestor,
				Previews:    previews,
				Recognizer:  recognizer,
				Extractor:   extractor,
				Publisher:   publisher,
				AutoExtract: cfg.Upload.AutoExtract,
				Logger:      logger,
			})
			defer ws.Close()

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handlers.NewRouter(handlers.New(ws, cfg.Upload.MaxBytes, logger)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				logger.Info("batchrec API available",
					"addr", addr,
					"url", "http://localhost"+addr,
					"ocr_provider", cfg.OCR.Provider,
					"extraction_provider", cfg.Extraction.Provider,
					"auto_extract", cfg.Upload.AutoExtract,
				)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				logger.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("Server shutdown failed", "err", err)
					return err
				}
				logger.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringP("port", "p", "8888", "Port to listen on")
	cmd.Flags().Bool("auto-extract", true, "Start extraction when an image is uploaded or selected")
	cmd.Flags().String("webhook-url", "", "Spreadsheet web app URL")
	addProviderFlags(cmd)

	return cmd
}
