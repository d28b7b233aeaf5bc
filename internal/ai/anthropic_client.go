package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

type AnthropicClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// AnthropicClient talks to the Messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

func NewAnthropicClient(config AnthropicClientConfig) *AnthropicClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &AnthropicClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		maxRetries: config.MaxRetries,
		httpClient: config.HTTPClient,
	}
}

func (c *AnthropicClient) Available() bool {
	return c.apiKey != ""
}

func (c *AnthropicClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if !c.Available() {
		return GenerateResult{}, ErrProviderUnavailable
	}
	if err := validateRequest(request); err != nil {
		return GenerateResult{}, err
	}
	maxTokens := request.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload := map[string]any{
		"model":      request.Model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": request.Input},
		},
	}
	if strings.TrimSpace(request.Instructions) != "" {
		payload["system"] = strings.TrimSpace(request.Instructions)
	}
	if request.Temperature > 0 {
		payload["temperature"] = request.Temperature
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal anthropic payload: %w", err)
	}

	return withRetries(ctx, "anthropic", c.maxRetries, func() (GenerateResult, error) {
		return c.callMessagesAPI(ctx, encoded, request.Model)
	})
}

func (c *AnthropicClient) callMessagesAPI(ctx context.Context, payload []byte, requestedModel string) (GenerateResult, error) {
	body, err := postJSON(ctx, c.httpClient, c.timeout, "anthropic", c.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, payload)
	if err != nil {
		return GenerateResult{}, err
	}

	var raw messagesAPIResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return GenerateResult{}, fmt.Errorf("decode anthropic response: %w", err)
	}

	fragments := make([]string, 0, len(raw.Content))
	for _, block := range raw.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			fragments = append(fragments, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(fragments, ""))
	if text == "" {
		return GenerateResult{}, errors.New("anthropic response without text output")
	}

	return GenerateResult{
		Text:    text,
		ModelID: firstNonEmpty(raw.Model, requestedModel),
		Usage: TokenUsage{
			InputTokens:  raw.Usage.InputTokens,
			OutputTokens: raw.Usage.OutputTokens,
			TotalTokens:  raw.Usage.InputTokens + raw.Usage.OutputTokens,
		},
	}, nil
}

type messagesAPIResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
