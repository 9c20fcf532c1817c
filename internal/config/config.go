package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/suyaash/batchrec/internal/apperr"
)

// DefaultMaxUploadBytes is the per-file upload limit when MAX_UPLOAD_BYTES is unset.
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Upload     UploadConfig     `mapstructure:"upload"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Sheet      SheetConfig      `mapstructure:"sheet"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// UploadConfig holds ingestion settings.
type UploadConfig struct {
	MaxBytes     int64    `mapstructure:"max_bytes"`
	AutoExtract  bool     `mapstructure:"auto_extract"`
	AllowedTypes []string `mapstructure:"allowed_types"` // media types, "image/*" style wildcards allowed
}

// OCRConfig selects and configures the text recognition client.
type OCRConfig struct {
	Provider string        `mapstructure:"provider"` // vision, ollama or openai
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig selects and configures the structured extraction client.
type ExtractionConfig struct {
	Provider    string        `mapstructure:"provider"` // anthropic, gemini, openai or ollama
	Model       string        `mapstructure:"model"`
	Endpoint    string        `mapstructure:"endpoint"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig holds credentials for the generative-text providers.
type ProvidersConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OllamaURL       string `mapstructure:"ollama_url"`
}

// SheetConfig holds the spreadsheet webhook settings.
type SheetConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

var envBindings = map[string][]string{
	"server.port":                 {"PORT"},
	"server.shutdown_timeout":     {"SHUTDOWN_TIMEOUT"},
	"log.level":                   {"LOG_LEVEL"},
	"upload.max_bytes":            {"MAX_UPLOAD_BYTES"},
	"upload.auto_extract":         {"AUTO_EXTRACT"},
	"upload.allowed_types":        {"ALLOWED_UPLOAD_TYPES"},
	"ocr.provider":                {"OCR_PROVIDER"},
	"ocr.api_key":                 {"GOOGLE_CLOUD_API_KEY", "OCR_API_KEY"},
	"ocr.endpoint":                {"OCR_ENDPOINT"},
	"ocr.model":                   {"OCR_MODEL"},
	"ocr.timeout":                 {"OCR_TIMEOUT"},
	"extraction.provider":         {"EXTRACTION_PROVIDER"},
	"extraction.model":            {"EXTRACTION_MODEL"},
	"extraction.endpoint":         {"EXTRACTION_ENDPOINT"},
	"extraction.temperature":      {"EXTRACTION_TEMPERATURE"},
	"extraction.max_tokens":       {"EXTRACTION_MAX_TOKENS"},
	"extraction.timeout":          {"EXTRACTION_TIMEOUT"},
	"providers.anthropic_api_key": {"ANTHROPIC_API_KEY"},
	"providers.gemini_api_key":    {"GEMINI_API_KEY"},
	"providers.openai_api_key":    {"OPENAI_API_KEY"},
	"providers.ollama_url":        {"OLLAMA_URL", "OLLAMA_HOST"},
	"sheet.webhook_url":           {"SHEET_WEBHOOK_URL", "GOOGLE_SHEET_WEB_APP_URL"},
	"sheet.timeout":               {"SHEET_TIMEOUT"},
}

// Load reads configuration from the environment. Flags in fs, when non-nil,
// override the environment for the keys they are bound to.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", "8888")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("upload.max_bytes", DefaultMaxUploadBytes)
	v.SetDefault("upload.auto_extract", true)
	v.SetDefault("upload.allowed_types", []string{
		"image/*",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain",
	})
	v.SetDefault("ocr.provider", "vision")
	v.SetDefault("ocr.api_key", "")
	v.SetDefault("ocr.endpoint", "")
	v.SetDefault("ocr.model", "")
	v.SetDefault("ocr.timeout", "30s")
	v.SetDefault("extraction.provider", "anthropic")
	v.SetDefault("extraction.model", "")
	v.SetDefault("extraction.endpoint", "")
	v.SetDefault("extraction.temperature", 0.0)
	v.SetDefault("extraction.max_tokens", 4096)
	v.SetDefault("extraction.timeout", "60s")
	v.SetDefault("providers.anthropic_api_key", "")
	v.SetDefault("providers.gemini_api_key", "")
	v.SetDefault("providers.openai_api_key", "")
	v.SetDefault("providers.ollama_url", "http://localhost:11434")
	v.SetDefault("sheet.webhook_url", "")
	v.SetDefault("sheet.timeout", "30s")

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if fs != nil {
		for key, flag := range flagBindings {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.OCR.Provider = strings.ToLower(strings.TrimSpace(cfg.OCR.Provider))
	cfg.Extraction.Provider = strings.ToLower(strings.TrimSpace(cfg.Extraction.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var flagBindings = map[string]string{
	"server.port":         "port",
	"log.level":           "log-level",
	"upload.max_bytes":    "max-upload-bytes",
	"upload.auto_extract": "auto-extract",
	"ocr.provider":        "ocr-provider",
	"extraction.provider": "extraction-provider",
	"extraction.model":    "model",
	"sheet.webhook_url":   "webhook-url",
}

// Validate checks settings that every command depends on. Provider
// credentials are checked by the Require methods when a client is built.
func (c *Config) Validate() error {
	if c.Upload.MaxBytes <= 0 {
		return apperr.Configuration("MAX_UPLOAD_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.OCR.Timeout <= 0 {
		return apperr.Configuration("OCR_TIMEOUT must be positive")
	}
	if c.Extraction.Timeout <= 0 {
		return apperr.Configuration("EXTRACTION_TIMEOUT must be positive")
	}
	return nil
}

// RequireOCR fails fast when the selected text recognition provider is not usable.
func (c *Config) RequireOCR() error {
	switch c.OCR.Provider {
	case "vision":
		if c.OCR.APIKey == "" {
			return apperr.Configuration("GOOGLE_CLOUD_API_KEY is required for OCR_PROVIDER=vision")
		}
	case "ollama":
		if c.Providers.OllamaURL == "" {
			return apperr.Configuration("OLLAMA_URL is required for OCR_PROVIDER=ollama")
		}
	case "openai":
		if c.Providers.OpenAIAPIKey == "" {
			return apperr.Configuration("OPENAI_API_KEY is required for OCR_PROVIDER=openai")
		}
	default:
		return apperr.Configuration("unsupported OCR_PROVIDER %q", c.OCR.Provider)
	}
	return nil
}

// RequireExtraction fails fast when the selected generative-text provider is not usable.
func (c *Config) RequireExtraction() error {
	switch c.Extraction.Provider {
	case "anthropic":
		if c.Providers.AnthropicAPIKey == "" {
			return apperr.Configuration("ANTHROPIC_API_KEY is required for EXTRACTION_PROVIDER=anthropic")
		}
	case "gemini":
		if c.Providers.GeminiAPIKey == "" {
			return apperr.Configuration("GEMINI_API_KEY is required for EXTRACTION_PROVIDER=gemini")
		}
	case "openai":
		if c.Providers.OpenAIAPIKey == "" {
			return apperr.Configuration("OPENAI_API_KEY is required for EXTRACTION_PROVIDER=openai")
		}
	case "ollama":
		if c.Providers.OllamaURL == "" {
			return apperr.Configuration("OLLAMA_URL is required for EXTRACTION_PROVIDER=ollama")
		}
	default:
		return apperr.Configuration("unsupported EXTRACTION_PROVIDER %q", c.Extraction.Provider)
	}
	return nil
}

// RequireSheet fails fast when no webhook is configured.
func (c *Config) RequireSheet() error {
	if c.Sheet.WebhookURL == "" {
		return apperr.Configuration("SHEET_WEBHOOK_URL is required to publish")
	}
	return nil
}
