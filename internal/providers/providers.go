package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

// Config represents the configuration for one generative-text request
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
	Prompt      string
	Images      [][]byte // optional, for vision-capable models
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Name() string
	ExtractText(ctx context.Context, config Config) (string, error)
}

// ErrMalformedResponse marks a 2xx reply whose envelope could not be decoded.
var ErrMalformedResponse = errors.New("malformed provider response")

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Message)
}

// ReadStatusError builds a StatusError from a failed response. The message is
// taken from a structured {"error":{"message":...}} body when there is one.
func ReadStatusError(provider string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &StatusError{Provider: provider, Code: resp.StatusCode, Message: ErrorMessage(body, resp.StatusCode)}
}

// ErrorMessage extracts error.message from a provider error body, falling
// back to the raw body or the status text.
func ErrorMessage(body []byte, status int) string {
	var structured struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &structured); err == nil && structured.Error.Message != "" {
		return structured.Error.Message
	}
	if raw := strings.TrimSpace(string(body)); raw != "" {
		return Truncate(raw, 500)
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}

// Classify maps a provider error to a typed failure at stage. Status errors
// keep the provider's message; everything else is a transport failure.
func Classify(err error, stage models.Stage, what string) *apperr.Fail {
	var f *apperr.Fail
	if errors.As(err, &f) {
		return f
	}
	var se *StatusError
	if errors.As(err, &se) {
		return apperr.Network(stage, err, "%s", se.Message)
	}
	if errors.Is(err, ErrMalformedResponse) {
		return apperr.Parse(err, "%s returned an unreadable response", what)
	}
	return apperr.Transport(err, what)
}

// Truncate cuts s to at most maxLen bytes without splitting a rune.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
