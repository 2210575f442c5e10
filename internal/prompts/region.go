package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Region is static local context injected into the decomposer and
// synthesizer prompts. It is configuration, never derived from requests.
type Region struct {
	Name       string   `json:"name" koanf:"name" yaml:"name"`
	Stressors  []string `json:"stressors,omitempty" koanf:"stressors" yaml:"stressors,omitempty"`
	Adaptation []string `json:"adaptation,omitempty" koanf:"adaptation" yaml:"adaptation,omitempty"`
}

// DefaultRegion returns the Ghana context the assistant ships with.
func DefaultRegion() *Region {
	return &Region{
		Name: "Ghana",
		Stressors: []string{
			"Harmattan (dry dusty winds/drought risk)",
			"Coastal erosion in Keta and Ada",
			"Flooding in Accra due to poor drainage",
			"Cocoa crop vulnerability to shifting rainfall",
		},
		Adaptation: []string{
			"Climate-smart cocoa farming",
			"Sea defense projects",
			"Borehole drilling for drought resilience",
		},
	}
}

// LoadRegion reads a Region from a JSON file. Returns nil and no error if
// the file does not exist.
func LoadRegion(path string) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading region file: %w", err)
	}

	var r Region
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing region file: %w", err)
	}

	if r.IsEmpty() {
		return nil, nil
	}
	return &r, nil
}

// Save writes the Region to a JSON file, creating parent directories as
// needed.
func (r *Region) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating region directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling region: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing region file: %w", err)
	}
	return nil
}

// IsEmpty returns true if the region carries no usable context.
func (r *Region) IsEmpty() bool {
	return r == nil || (len(r.Stressors) == 0 && len(r.Adaptation) == 0)
}

// ToPromptSection formats the stressors and adaptation strategies as
// bullet lists.
func (r *Region) ToPromptSection() string {
	if r.IsEmpty() {
		return ""
	}

	var b strings.Builder
	if len(r.Stressors) > 0 {
		b.WriteString("Stressors:\n")
		for _, s := range r.Stressors {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(r.Adaptation) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Adaptation Strategies:\n")
		for _, a := range r.Adaptation {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
