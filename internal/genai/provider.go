// Package genai provides AI content generation through pluggable providers.
//
// Providers speak to a local llama.cpp server or to the OpenAI, Anthropic
// and Google Gemini APIs. The Service wraps the active provider with an
// in-memory response cache.
package genai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Generation defaults shared by all providers
const (
	DefaultMaxTokens           = 500
	DefaultGenerateTemperature = 0.7
	DefaultEditTemperature     = 0.5
	DefaultRequestTimeout      = 60 * time.Second
	healthCheckTimeout         = 5 * time.Second
)

// Default system prompts
const (
	generateSystemPrompt = "You are a social media content creator. " +
		"Create engaging, authentic content for professional platforms like Twitter and LinkedIn. " +
		"Keep responses concise and platform-appropriate."

	editSystemPrompt = "You are a professional content editor. " +
		"Edit the provided content according to the user's instructions while maintaining " +
		"the original tone and style. Make the requested changes precisely."
)

var (
	ErrEmptyResponse   = errors.New("provider returned empty content")
	ErrMissingAPIKey   = errors.New("provider API key is required")
	ErrUnknownProvider = errors.New("unknown provider")
)

// GenerateRequest carries one content-generation request. Zero-value
// MaxTokens and Temperature are replaced by the package defaults.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Platform     string
}

// withDefaults fills in the package defaults for unset fields.
func (r GenerateRequest) withDefaults() GenerateRequest {
	if r.SystemPrompt == "" {
		r.SystemPrompt = generateSystemPrompt
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultGenerateTemperature
	}
	return r
}

// Provider generates and edits text content.
type Provider interface {
	// GenerateContent produces content from a prompt.
	GenerateContent(ctx context.Context, req GenerateRequest) (string, error)
	// EditContent rewrites existing content per the instruction.
	EditContent(ctx context.Context, original, instruction string, temperature float64) (string, error)
	// CheckHealth reports whether the provider backend is reachable.
	CheckHealth(ctx context.Context) bool
	// Name returns the registry key, e.g. "llamacpp".
	Name() string
	// DisplayName returns a human-readable name, e.g. "Llama.cpp".
	DisplayName() string
}

// editPrompt builds the user prompt shared by every provider's EditContent.
func editPrompt(original, instruction string) string {
	return fmt.Sprintf("Original content:\n%s\n\nEdit instructions:\n%s\n\nProvide the edited version:", original, instruction)
}

// editViaGenerate implements EditContent in terms of GenerateContent.
func editViaGenerate(ctx context.Context, p Provider, original, instruction string, temperature float64) (string, error) {
	if temperature <= 0 {
		temperature = DefaultEditTemperature
	}
	return p.GenerateContent(ctx, GenerateRequest{
		Prompt:       editPrompt(original, instruction),
		SystemPrompt: editSystemPrompt,
		MaxTokens:    1000,
		Temperature:  temperature,
	})
}
