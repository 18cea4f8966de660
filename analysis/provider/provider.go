// Package provider talks to hosted language models. A credential's shape picks the vendor;
// the Orchestrator bounds each call in time and turns the reply into JSON.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrTimeout means the call hit its deadline or was cancelled. No partial text is ever returned with it.
	ErrTimeout = errors.New("generation timed out")

	// ErrGeneration covers transport failures, API errors, empty or truncated completions.
	ErrGeneration = errors.New("generation failed")

	// ErrMalformed means the completion could not be decoded as a JSON object.
	ErrMalformed = errors.New("malformed model response")

	// ErrNoCredential means no configured credential matched a known provider.
	ErrNoCredential = errors.New("no usable provider credential")
)

// CompletionRequest is the provider-neutral model call.
type CompletionRequest struct {
	SystemPrompt string
	UserContent  string
	Temperature  float64
	MaxTokens    int
	JSONMode     bool

	// SchemaName and Schema are used by providers that support strict structured output.
	SchemaName string
	Schema     map[string]any
}

// Provider is one vendor adapter. Complete returns the raw completion text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
