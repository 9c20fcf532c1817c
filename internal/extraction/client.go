// Package extraction turns recognized text into the three structured records
// of a batch-record page.
package extraction

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/api/option"

	"github.com/suyaash/batchrec/internal/anthropic"
	"github.com/suyaash/batchrec/internal/config"
	"github.com/suyaash/batchrec/internal/gemini"
	"github.com/suyaash/batchrec/internal/models"
	"github.com/suyaash/batchrec/internal/ollama"
	"github.com/suyaash/batchrec/internal/openai"
	"github.com/suyaash/batchrec/internal/providers"
)

// Client sends recognized text to a generative-text provider and parses the reply.
type Client struct {
	provider    providers.Provider
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

func NewClient(p providers.Provider, cfg config.ExtractionConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider:    p,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// New builds a Client for the provider selected in cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(p, cfg.Extraction, logger), nil
}

// NewProvider returns the generative-text provider named by EXTRACTION_PROVIDER.
func NewProvider(cfg *config.Config) (providers.Provider, error) {
	if err := cfg.RequireExtraction(); err != nil {
		return nil, err
	}
	endpoint := cfg.Extraction.Endpoint
	switch cfg.Extraction.Provider {
	case "gemini":
		var opts []option.ClientOption
		if endpoint != "" {
			opts = append(opts, option.WithEndpoint(endpoint))
		}
		return gemini.New(cfg.Providers.GeminiAPIKey, opts...), nil
	case "openai":
		return openai.New(cfg.Providers.OpenAIAPIKey, endpoint), nil
	case "ollama":
		return ollama.New(cfg.Providers.OllamaURL), nil
	default:
		return anthropic.New(cfg.Providers.AnthropicAPIKey, endpoint), nil
	}
}

// Extract sends one request and parses the reply. Errors are *apperr.Fail with
// stage extraction, network or parse.
func (c *Client) Extract(ctx context.Context, text string) (*models.RecordSet, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.provider.ExtractText(ctx, providers.Config{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		System:      systemPrompt,
		Prompt:      buildUserPrompt(text),
	})
	if err != nil {
		return nil, providers.Classify(err, models.StageExtraction, "structured extraction")
	}

	rs, strategy, err := parseWith(reply, DefaultStrategies)
	if err != nil {
		c.logger.Warn("extraction.unparseable", "provider", c.provider.Name(), "reply", providers.Truncate(reply, 200))
		return nil, err
	}
	c.logger.Info("extraction.parsed",
		"provider", c.provider.Name(),
		"strategy", strategy,
		"duration", time.Since(start),
	)
	return rs, nil
}
