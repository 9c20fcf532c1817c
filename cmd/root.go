package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/suyaash/batchrec/internal/config"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batchrec",
		Short: "Batch-record intake with OCR and LLM-powered structured extraction",
		Long: `batchrec ingests scanned pharmaceutical batch-record pages, reads them with an
OCR provider and extracts document metadata, the mixing-ingredients step and the
pH-adjustment step with a generative-text model.

Extracted records can be edited through the web API and posted to a spreadsheet
web app, or processed in bulk from the command line.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newPublishCmd())

	return cmd
}

// loadConfig reads configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// addProviderFlags registers the flags shared by commands that run extractions.
func addProviderFlags(cmd *cobra.Command) {
	cmd.Flags().String("ocr-provider", "", "OCR provider (vision, ollama or openai)")
	cmd.Flags().String("extraction-provider", "", "Extraction provider (anthropic, gemini, openai or ollama)")
	cmd.Flags().String("model", "", "Extraction model name (defaults to provider's default)")
	cmd.Flags().Int64("max-upload-bytes", config.DefaultMaxUploadBytes, "Maximum size of one uploaded file")
}
