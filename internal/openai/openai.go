package openai

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
	apiURL       = "https://api.openai.com/v1/chat/completions"
	defaultModel = "gpt-4o"
)

// OpenAI is a provider for OpenAI
type OpenAI struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// New returns a new OpenAI provider. An empty endpoint uses the public API.
func New(apiKey, endpoint string) *OpenAI {
	if endpoint == "" {
		endpoint = apiURL
	}
	return &OpenAI{apiKey: apiKey, endpoint: endpoint, client: &http.Client{}}
}

func (o *OpenAI) Name() string { return "openai" }

// ExtractText extracts text from the given prompt using OpenAI
func (o *OpenAI) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	model := config.Model
	if model == "" {
		model = defaultModel
	}

	var messages []map[string]interface{}
	if config.System != "" {
		messages = append(messages, map[string]interface{}{
			"role":    "system",
			"content": config.System,
		})
	}

	if len(config.Images) == 0 {
		messages = append(messages, map[string]interface{}{
			"role":    "user",
			"content": config.Prompt,
		})
	} else {
		content := []map[string]interface{}{
			{"type": "text", "text": config.Prompt},
		}
		for _, img := range config.Images {
			content = append(content, map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]string{
					"url": "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		messages = append(messages, map[string]interface{}{
			"role":    "user",
			"content": content,
		})
	}

	body := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": config.Temperature,
	}
	if config.MaxTokens > 0 {
		body["max_tokens"] = config.MaxTokens
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", providers.ReadStatusError(o.Name(), resp)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("%w: failed to decode response body: %v", providers.ErrMalformedResponse, err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned from OpenAI", providers.ErrMalformedResponse)
	}

	return response.Choices[0].Message.Content, nil
}
