package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/suyaash/batchrec/internal/providers"
)

const (
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
	defaultModel = "claude-sonnet-4-20250514"
)

// Anthropic is a provider for the Anthropic Messages API
type Anthropic struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// New returns a new Anthropic provider. An empty endpoint uses the public API.
func New(apiKey, endpoint string) *Anthropic {
	if endpoint == "" {
		endpoint = apiURL
	}
	return &Anthropic{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// ExtractText sends the system prompt and a single user turn, and returns the
// first content block's text
func (a *Anthropic) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	model := config.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var content []map[string]interface{}
	for _, img := range config.Images {
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": http.DetectContentType(img),
				"data":       base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	content = append(content, map[string]interface{}{
		"type": "text",
		"text": config.Prompt,
	})

	reqBody := map[string]interface{}{
		"model":       model,
		"max_tokens":  maxTokens,
		"temperature": config.Temperature,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": content,
			},
		},
	}
	if config.System != "" {
		reqBody["system"] = config.System
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return "", providers.ReadStatusError(a.Name(), resp)
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("%w: unmarshaling response: %v", providers.ErrMalformedResponse, err)
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("%w: empty response from anthropic API", providers.ErrMalformedResponse)
	}

	return response.Content[0].Text, nil
}
