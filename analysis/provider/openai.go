package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const (
	NameOpenAI         = "openai"
	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI calls the Responses API with a strict JSON schema when one is supplied.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	// Retries belong to the caller; a second attempt here would blur the timeout contract.
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	client := openai.NewClient(append(base, opts...)...)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{client: &client, model: model}
}

func newOpenAIFromRule(credential string, o Options) (Provider, error) {
	var opts []option.RequestOption
	if u := o.baseURL(NameOpenAI); u != "" {
		opts = append(opts, option.WithBaseURL(u))
	}
	if o.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(o.HTTPClient))
	}
	return NewOpenAI(credential, o.model(NameOpenAI, defaultOpenAIModel), opts...), nil
}

func (p *OpenAI) Name() string { return NameOpenAI }

func (p *OpenAI) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if p.client == nil {
		return "", errors.New("OpenAI: client is nil")
	}

	params := responses.ResponseNewParams{
		Model:        p.model,
		Instructions: openai.String(req.SystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.UserContent, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.JSONMode && req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "Output"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        name,
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
					Description: openai.String(name + " JSON"),
					Type:        "json_schema",
				},
			},
		}
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	if resp.Status == responses.ResponseStatusIncomplete {
		return "", fmt.Errorf("OpenAI: response incomplete: %s", resp.IncompleteDetails.Reason)
	}
	return strings.TrimSpace(resp.OutputText()), nil
}
