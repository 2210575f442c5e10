package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"

	"github.com/atmo-climate/atmo/internal/prompts"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to atmo! Let's configure your climate assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"google", "openai", "openrouter", "anthropic", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)

	modelPrompt := promptui.Prompt{
		Label:   "Model",
		Default: DefaultModel(cfg.Provider),
	}
	cfg.Model, err = modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	if cfg.Provider == ProviderOllama {
		hostPrompt := promptui.Prompt{
			Label:   "Ollama host",
			Default: "http://localhost:11434",
		}
		cfg.BaseURL, err = hostPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("ollama host: %w", err)
		}
	}

	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Server.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	fmt.Println()
	region, err := prompts.CollectInteractive(prompts.DefaultRegion())
	if err != nil {
		return nil, fmt.Errorf("region: %w", err)
	}
	if region.Name != "" {
		if err := cfg.WriteRegion(region, path); err != nil {
			return nil, fmt.Errorf("saving region: %w", err)
		}
		fmt.Printf("Region saved to %s\n", cfg.RegionFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if vars := APIKeyEnvVars(cfg.Provider); len(vars) > 0 && cfg.ResolveAPIKey() == "" {
		fmt.Printf("\nNote: Set %s in your environment before running atmo.\n", vars[0])
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}
