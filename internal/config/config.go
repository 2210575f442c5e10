// Package config loads atmo settings from defaults, atmo.yml and ATMO_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/atmo-climate/atmo/internal/llm"
	"github.com/atmo-climate/atmo/internal/prompts"
)

const envPrefix = "ATMO_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (ATMO_*). A double underscore selects a
// nested key: ATMO_SERVER__PORT sets server.port.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// A provider switch without an explicit model picks that provider's default.
	if !k.Exists("model") && k.Exists("provider") {
		if m := DefaultModel(cfg.Provider); m != "" {
			cfg.Model = m
		}
	}

	return cfg, nil
}

// envKey maps ATMO_SERVER__PORT to server.port.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderGoogle:     true,
	ProviderOpenAI:     true,
	ProviderOpenRouter: true,
	ProviderAnthropic:  true,
	ProviderOllama:     true,
}

var validLogFormats = map[string]bool{"json": true, "console": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of google, openai, openrouter, anthropic, ollama", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}

	if c.Server.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("server.request_timeout_seconds must be non-negative")
	}

	if c.Chain.HistoryLimit < 0 {
		return fmt.Errorf("chain.history_limit must be non-negative")
	}

	if c.Limits.RequestsPerMinute < 0 {
		return fmt.Errorf("limits.requests_per_minute must be non-negative")
	}

	if c.Breaker.Enabled && (c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1) {
		return fmt.Errorf("breaker.failure_threshold must be in (0, 1]")
	}

	if c.Log.Format != "" && !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log.format %q: must be json or console", c.Log.Format)
	}

	return nil
}

// APIKeyEnvVars returns the conventional environment variable names for
// the API key of the given provider, in lookup order.
func APIKeyEnvVars(provider ProviderType) []string {
	switch provider {
	case ProviderGoogle:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ProviderOpenAI:
		return []string{"OPENAI_API_KEY"}
	case ProviderOpenRouter:
		return []string{"OPENROUTER_API_KEY"}
	case ProviderAnthropic:
		return []string{"ANTHROPIC_API_KEY"}
	default:
		return nil
	}
}

// ResolveAPIKey returns the explicit api_key, or the first non-empty
// conventional environment variable for the provider.
func (c *Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	for _, name := range APIKeyEnvVars(c.Provider) {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ProviderConfig builds the immutable provider configuration.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Type:    string(c.Provider),
		Model:   c.Model,
		APIKey:  c.ResolveAPIKey(),
		BaseURL: c.BaseURL,
	}
}

// ClientOptions returns the generation parameters for llm.NewClient.
func (c *Config) ClientOptions() llm.ClientOptions {
	return llm.ClientOptions{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

// BreakerSettings converts the breaker section.
func (c *Config) BreakerSettings() llm.BreakerSettings {
	return llm.BreakerSettings{
		MaxRequests:      c.Breaker.MaxRequests,
		Interval:         time.Duration(c.Breaker.IntervalSeconds) * time.Second,
		Timeout:          time.Duration(c.Breaker.TimeoutSeconds) * time.Second,
		FailureThreshold: c.Breaker.FailureThreshold,
		MinRequests:      c.Breaker.MinRequests,
	}
}

// RequestTimeout returns the per-request HTTP deadline, zero for none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ResolveRegion picks the regional context: region_file first, then the
// inline region section, then the built-in default.
func (c *Config) ResolveRegion() (*prompts.Region, error) {
	if c.RegionFile != "" {
		r, err := prompts.LoadRegion(c.RegionFile)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, fmt.Errorf("region file %s is missing or empty", c.RegionFile)
		}
		return r, nil
	}
	if c.Region != nil && c.Region.Name != "" {
		return c.Region, nil
	}
	return prompts.DefaultRegion(), nil
}

// RegionFileName is the region file written next to the config file.
const RegionFileName = "region.json"

// WriteRegion saves region as JSON beside configPath and points
// region_file at it. The inline region section is cleared.
func (c *Config) WriteRegion(region *prompts.Region, configPath string) error {
	path := filepath.Join(filepath.Dir(configPath), RegionFileName)
	if err := region.Save(path); err != nil {
		return err
	}
	c.RegionFile = path
	c.Region = nil
	return nil
}
