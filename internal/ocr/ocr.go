// Package ocr turns image bytes into plain text.
package ocr

import (
	"context"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/suyaash/batchrec/internal/config"
	"github.com/suyaash/batchrec/internal/ollama"
	"github.com/suyaash/batchrec/internal/openai"
)

// NoTextFound is returned when the provider finds nothing to read. It is a
// valid recognition result, not an error.
const NoTextFound = "No text found"

// Recognizer performs text recognition on a single image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// New builds the recognizer selected by cfg.OCR.Provider. Missing credentials
// are reported here, before any request is made.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Recognizer, error) {
	if err := cfg.RequireOCR(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.OCR.Provider {
	case "ollama":
		return NewLLMRecognizer(ollama.New(cfg.Providers.OllamaURL), cfg.OCR.Model, cfg.OCR.Timeout, logger), nil
	case "openai":
		return NewLLMRecognizer(openai.New(cfg.Providers.OpenAIAPIKey, cfg.OCR.Endpoint), cfg.OCR.Model, cfg.OCR.Timeout, logger), nil
	default:
		var opts []option.ClientOption
		if cfg.OCR.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.OCR.Endpoint))
		}
		return NewVisionRecognizer(ctx, cfg.OCR.APIKey, cfg.OCR.Timeout, logger, opts...)
	}
}
