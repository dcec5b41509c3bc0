package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/postfarm/postfarm/internal/store"
)

// DefaultProviderName is used when no provider has been selected.
const DefaultProviderName = "llamacpp"

// Config holds per-provider settings, persisted as JSON in the store.
type Config struct {
	APIKey    string  `json:"api_key,omitempty"`
	Model     string  `json:"model,omitempty"`
	BaseURL   string  `json:"base_url,omitempty"`
	ServerURL string  `json:"server_url,omitempty"`
	ModelName string  `json:"model_name,omitempty"`
	Timeout   float64 `json:"timeout,omitempty"`
}

// ProviderInfo describes an available provider for API listings.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// ListProviders returns every provider this build supports.
func ListProviders() []ProviderInfo {
	return []ProviderInfo{
		{Name: "llamacpp", DisplayName: "Llama.cpp", Description: "Local llama.cpp server"},
		{Name: "openai", DisplayName: "OpenAI", Description: "OpenAI API (GPT-4, GPT-3.5, etc.)"},
		{Name: "anthropic", DisplayName: "Anthropic", Description: "Anthropic Claude API"},
		{Name: "google", DisplayName: "Google Gemini", Description: "Google Gemini API"},
	}
}

// NewProvider constructs the named provider from cfg.
func NewProvider(name string, cfg Config) (Provider, error) {
	switch name {
	case "llamacpp":
		return NewLlamaCppProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "google":
		return NewGoogleProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// LoadProvider constructs the named provider using its persisted config from
// the store. A missing or unreadable config falls back to defaults, which is
// enough for llamacpp but fails key-requiring providers with a clear error.
func LoadProvider(st store.Store, name string) (Provider, error) {
	if name == "" {
		name = DefaultProviderName
	}

	var cfg Config
	stored, err := st.GetProviderConfig(name)
	if err != nil {
		slog.Warn("LoadProvider: failed to load provider config, using defaults", "provider", name, "error", err)
	} else if stored != nil && stored.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(stored.ConfigJSON), &cfg); err != nil {
			slog.Warn("LoadProvider: invalid provider config JSON, using defaults", "provider", name, "error", err)
			cfg = Config{}
		}
	}

	p, err := NewProvider(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider %s: %w", name, err)
	}
	return p, nil
}
