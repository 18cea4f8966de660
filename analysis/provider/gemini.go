package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const (
	NameGemini         = "gemini"
	defaultGeminiModel = "gemini-2.5-flash"
)

// Gemini calls generateContent with a JSON response MIME type.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini: API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func newGeminiFromRule(credential string, o Options) (Provider, error) {
	return NewGemini(context.Background(), credential, o.model(NameGemini, defaultGeminiModel), o.baseURL(NameGemini), o.HTTPClient)
}

func (p *Gemini) Name() string { return NameGemini }

func (p *Gemini) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p.client == nil {
		return "", errors.New("Gemini: client is nil")
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.UserContent), cfg)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("Gemini: no candidates returned")
	}
	if fr := resp.Candidates[0].FinishReason; fr == genai.FinishReasonMaxTokens {
		return "", fmt.Errorf("Gemini: completion truncated (%s)", fr)
	}
	return strings.TrimSpace(resp.Text()), nil
}
