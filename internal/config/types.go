package config

import "github.com/atmo-climate/atmo/internal/prompts"

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderGoogle     ProviderType = "google"
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOllama     ProviderType = "ollama"
)

// Config is the top-level atmo configuration, corresponding to atmo.yml.
type Config struct {
	Provider    ProviderType    `yaml:"provider" koanf:"provider"`
	Model       string          `yaml:"model" koanf:"model"`
	APIKey      string          `yaml:"api_key,omitempty" koanf:"api_key"`
	BaseURL     string          `yaml:"base_url,omitempty" koanf:"base_url"`
	Temperature float64         `yaml:"temperature" koanf:"temperature"`
	MaxTokens   int             `yaml:"max_tokens" koanf:"max_tokens"`
	DataDir     string          `yaml:"data_dir" koanf:"data_dir"`
	Server      ServerConfig    `yaml:"server" koanf:"server"`
	Chain       ChainConfig     `yaml:"chain" koanf:"chain"`
	Region      *prompts.Region `yaml:"region,omitempty" koanf:"region"`
	RegionFile  string          `yaml:"region_file,omitempty" koanf:"region_file"`
	Limits      LimitsConfig    `yaml:"limits" koanf:"limits"`
	Breaker     BreakerConfig   `yaml:"breaker" koanf:"breaker"`
	Log         LogConfig       `yaml:"log" koanf:"log"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Port                  int    `yaml:"port" koanf:"port"`
	AllowAllOrigins       bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	StaticDir             string `yaml:"static_dir,omitempty" koanf:"static_dir"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
}

// ChainConfig holds prompt-chain settings.
type ChainConfig struct {
	HistoryLimit int `yaml:"history_limit" koanf:"history_limit"`
}

// LimitsConfig bounds outbound model traffic. Zero disables limiting.
type LimitsConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// BreakerConfig configures the circuit breaker around the model provider.
type BreakerConfig struct {
	Enabled          bool    `yaml:"enabled" koanf:"enabled"`
	MaxRequests      uint32  `yaml:"max_requests" koanf:"max_requests"`
	IntervalSeconds  int     `yaml:"interval_seconds" koanf:"interval_seconds"`
	TimeoutSeconds   int     `yaml:"timeout_seconds" koanf:"timeout_seconds"`
	FailureThreshold float64 `yaml:"failure_threshold" koanf:"failure_threshold"`
	MinRequests      uint32  `yaml:"min_requests" koanf:"min_requests"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
