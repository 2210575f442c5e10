package llm

import (
	"fmt"
)

const defaultOllamaHost = "http://localhost:11434"

// ProviderConfig is the explicit, immutable configuration a provider is
// built from. API keys are resolved by the caller; nothing is read from the
// environment here.
type ProviderConfig struct {
	Type    string
	Model   string
	APIKey  string
	BaseURL string
}

// NewProvider creates a new LLM provider based on the given configuration.
// Supported provider types: "google", "openai", "openrouter", "anthropic", "ollama".
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "google":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("google provider requires an API key")
		}
		p := NewGoogleProvider(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			p.baseURL = cfg.BaseURL
		}
		return p, nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter provider requires an API key")
		}
		return NewOpenRouterProvider(cfg.APIKey, cfg.Model), nil

	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		p := NewAnthropicProvider(cfg.APIKey, cfg.Model)
		if cfg.BaseURL != "" {
			p.url = cfg.BaseURL
		}
		return p, nil

	case "ollama":
		host := cfg.BaseURL
		if host == "" {
			host = defaultOllamaHost
		}
		return NewOllamaProvider(host, cfg.Model), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
