package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	NameAnthropic         = "anthropic"
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultAnthropicURL   = "https://api.anthropic.com/v1"
	anthropicVersion      = "2023-06-01"
)

// Anthropic calls the Messages API directly.
type Anthropic struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewAnthropic(apiKey, model, baseURL string, httpClient *http.Client) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Anthropic{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

func newAnthropicFromRule(credential string, o Options) (Provider, error) {
	return NewAnthropic(credential, o.model(NameAnthropic, defaultAnthropicModel), o.baseURL(NameAnthropic), o.HTTPClient), nil
}

func (p *Anthropic) Name() string { return NameAnthropic }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one Messages API request. Retries are left to the caller.
func (p *Anthropic) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p.apiKey == "" {
		return "", errors.New("Anthropic: API key not configured")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	reqBody := anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    req.SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: req.UserContent}},
	}
	if req.Temperature > 0 {
		t := req.Temperature
		reqBody.Temperature = &t
	}
	// No native JSON mode: prefill the assistant turn with the opening brace.
	if req.JSONMode {
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: "assistant", Content: "{"})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("Anthropic: failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("Anthropic: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("Anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("Anthropic: failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errors.New("Anthropic: rate limit exceeded (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Anthropic: API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", fmt.Errorf("Anthropic: failed to parse response: %w", err)
	}
	if anthropicResp.Error != nil {
		return "", fmt.Errorf("Anthropic: API error: %s", anthropicResp.Error.Message)
	}
	if len(anthropicResp.Content) == 0 {
		return "", errors.New("Anthropic: no completion returned")
	}
	if anthropicResp.StopReason == "max_tokens" {
		return "", errors.New("Anthropic: completion truncated (max_tokens)")
	}

	var result strings.Builder
	for _, content := range anthropicResp.Content {
		if content.Type == "text" {
			result.WriteString(content.Text)
		}
	}
	response := strings.TrimSpace(result.String())
	if req.JSONMode && response != "" {
		response = "{" + response
	}
	return response, nil
}
