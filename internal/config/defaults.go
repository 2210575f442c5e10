package config

// DefaultConfigFile is the config file read when --config is not given.
const DefaultConfigFile = "atmo.yml"

// defaultModels maps each provider to the model used when none is set.
var defaultModels = map[ProviderType]string{
	ProviderGoogle:     "gemini-2.5-flash",
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderOpenRouter: "google/gemini-2.5-flash",
	ProviderAnthropic:  "claude-sonnet-4-5-20250929",
	ProviderOllama:     "llama3",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:    ProviderGoogle,
		Model:       defaultModels[ProviderGoogle],
		Temperature: 0.7,
		MaxTokens:   2048,
		DataDir:     "data",
		Server: ServerConfig{
			Port:                  8001,
			AllowAllOrigins:       true,
			RequestTimeoutSeconds: 0,
		},
		Chain: ChainConfig{
			HistoryLimit: 10,
		},
		Breaker: BreakerConfig{
			Enabled:          false,
			MaxRequests:      5,
			IntervalSeconds:  30,
			TimeoutSeconds:   60,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultModel returns the default model for provider, or "" if unknown.
func DefaultModel(provider ProviderType) string {
	return defaultModels[provider]
}
