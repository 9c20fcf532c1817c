package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/vision/v1"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

// VisionRecognizer reads text with the Google Cloud Vision TEXT_DETECTION feature.
type VisionRecognizer struct {
	svc     *vision.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewVisionRecognizer creates a Vision client authenticated with apiKey.
func NewVisionRecognizer(ctx context.Context, apiKey string, timeout time.Duration, logger *slog.Logger, opts ...option.ClientOption) (*VisionRecognizer, error) {
	if apiKey == "" {
		return nil, apperr.Configuration("GOOGLE_CLOUD_API_KEY is required for OCR_PROVIDER=vision")
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := vision.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision service: %w", err)
	}
	return &VisionRecognizer{svc: svc, timeout: timeout, logger: logger}, nil
}

// Recognize sends one annotate request and returns the full text annotation,
// or NoTextFound when the image has none.
func (v *VisionRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", &apperr.Fail{Kind: apperr.ErrValidation, Stage: models.StageRecognition, Message: "image is empty"}
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{{Type: "TEXT_DETECTION"}},
		}},
	}

	start := time.Now()
	resp, err := v.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			msg := gerr.Message
			if msg == "" {
				msg = fmt.Sprintf("HTTP error! status: %d", gerr.Code)
			}
			return "", apperr.Network(models.StageRecognition, err, "%s", msg)
		}
		return "", apperr.Transport(err, "text recognition")
	}

	if len(resp.Responses) == 0 {
		return NoTextFound, nil
	}
	first := resp.Responses[0]
	if first.Error != nil && first.Error.Message != "" {
		return "", apperr.Network(models.StageRecognition, nil, "%s", first.Error.Message)
	}
	if first.FullTextAnnotation == nil || strings.TrimSpace(first.FullTextAnnotation.Text) == "" {
		return NoTextFound, nil
	}

	text := first.FullTextAnnotation.Text
	v.logger.Info("ocr.recognized", "provider", "vision", "length", len(text), "duration", time.Since(start))
	return text, nil
}
