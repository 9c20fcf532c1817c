package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suyaash/batchrec/internal/apperr"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envBindings {
		for _, e := range envs {
			t.Setenv(e, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, DefaultMaxUploadBytes, cfg.Upload.MaxBytes)
	assert.True(t, cfg.Upload.AutoExtract)
	assert.Equal(t, "vision", cfg.OCR.Provider)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, "anthropic", cfg.Extraction.Provider)
	assert.Equal(t, 60*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, "http://localhost:11434", cfg.Providers.OllamaURL)
	assert.Contains(t, cfg.Upload.AllowedTypes, "image/*")
	assert.Contains(t, cfg.Upload.AllowedTypes, "application/pdf")
	assert.NotContains(t, cfg.Upload.AllowedTypes, "application/zip")
}

func TestLoadAllowedTypesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOWED_UPLOAD_TYPES", "image/*,text/csv")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"image/*", "text/csv"}, cfg.Upload.AllowedTypes)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLOUD_API_KEY", "vision-key")
	t.Setenv("EXTRACTION_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("MAX_UPLOAD_BYTES", "5242880")
	t.Setenv("AUTO_EXTRACT", "false")
	t.Setenv("OCR_TIMEOUT", "12s")
	t.Setenv("GOOGLE_SHEET_WEB_APP_URL", "https://script.example/exec")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "vision-key", cfg.OCR.APIKey)
	assert.Equal(t, "gemini", cfg.Extraction.Provider)
	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxBytes)
	assert.False(t, cfg.Upload.AutoExtract)
	assert.Equal(t, 12*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, "https://script.example/exec", cfg.Sheet.WebhookURL)

	assert.NoError(t, cfg.RequireOCR())
	assert.NoError(t, cfg.RequireExtraction())
	assert.NoError(t, cfg.RequireSheet())
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("port", "8888", "")
	require.NoError(t, fs.Parse([]string{"--port", "3000"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)
}

func TestLoadRejectsNonPositiveUploadLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_UPLOAD_BYTES", "0")

	_, err := Load(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestRequireMissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		require func(c *Config) error
		wantMsg string
	}{
		{
			name:    "vision without key",
			mutate:  func(c *Config) { c.OCR.Provider = "vision" },
			require: (*Config).RequireOCR,
			wantMsg: "GOOGLE_CLOUD_API_KEY",
		},
		{
			name:    "unknown ocr provider",
			mutate:  func(c *Config) { c.OCR.Provider = "tesseract" },
			require: (*Config).RequireOCR,
			wantMsg: "unsupported OCR_PROVIDER",
		},
		{
			name:    "anthropic without key",
			mutate:  func(c *Config) { c.Extraction.Provider = "anthropic" },
			require: (*Config).RequireExtraction,
			wantMsg: "ANTHROPIC_API_KEY",
		},
		{
			name:    "openai without key",
			mutate:  func(c *Config) { c.Extraction.Provider = "openai" },
			require: (*Config).RequireExtraction,
			wantMsg: "OPENAI_API_KEY",
		},
		{
			name:    "missing webhook",
			mutate:  func(c *Config) {},
			require: (*Config).RequireSheet,
			wantMsg: "SHEET_WEBHOOK_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := tt.require(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
