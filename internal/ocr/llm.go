package ocr

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
	"github.com/suyaash/batchrec/internal/providers"
)

// LLMRecognizer performs OCR with a vision-capable language model. It is the
// offline alternative to Vision when pointed at a local Ollama.
type LLMRecognizer struct {
	provider providers.Provider
	model    string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewLLMRecognizer(p providers.Provider, model string, timeout time.Duration, logger *slog.Logger) *LLMRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMRecognizer{provider: p, model: model, timeout: timeout, logger: logger}
}

func (r *LLMRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", &apperr.Fail{Kind: apperr.ErrValidation, Stage: models.StageRecognition, Message: "image is empty"}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	text, err := r.provider.ExtractText(ctx, providers.Config{
		Model:       r.model,
		Temperature: 0.0, // exact transcription
		MaxTokens:   2000,
		Prompt:      buildOCRPrompt(),
		Images:      [][]byte{image},
	})
	if err != nil {
		return "", providers.Classify(err, models.StageRecognition, "text recognition")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return NoTextFound, nil
	}
	r.logger.Info("ocr.recognized", "provider", r.provider.Name(), "model", r.model, "length", len(text))
	return text, nil
}

func buildOCRPrompt() string {
	return `You are performing OCR (Optical Character Recognition) on a scanned page of a pharmaceutical batch record.

Your task is to extract ALL visible text from the image exactly as it appears, preserving:
- Line breaks and table rows
- Numbers, units and decimal points
- Capitalization and punctuation
- Order of text elements

INSTRUCTIONS:
1. Read the image carefully from top to bottom
2. Transcribe every piece of visible text, including handwritten entries
3. Preserve the original line breaks
4. Do not add any interpretation, commentary, or explanations
5. If text is partially obscured or unclear, transcribe what you can see and use [?] for illegible portions

OUTPUT FORMAT:
Provide ONLY the extracted text. Do not include phrases like "Here is the text:" or "The image contains:".
If the image contains no text at all, reply with nothing.`
}
