package prompts

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// CollectInteractive asks for a region name and its stressors and
// adaptation strategies. Lists are entered comma-separated; pressing Enter
// keeps the defaults from base.
func CollectInteractive(base *Region) (*Region, error) {
	if base == nil {
		base = &Region{}
	}
	fmt.Println("Describe the region the assistant should prioritise.")
	fmt.Println("Separate list items with commas. Press Enter to keep the default.")
	fmt.Println()

	r := &Region{}

	name, err := askOptional("Region name", base.Name)
	if err != nil {
		return nil, fmt.Errorf("region name prompt: %w", err)
	}
	r.Name = name

	stressors, err := askOptional("Climate stressors", strings.Join(base.Stressors, ", "))
	if err != nil {
		return nil, fmt.Errorf("stressors prompt: %w", err)
	}
	r.Stressors = splitList(stressors)

	adaptation, err := askOptional("Adaptation strategies", strings.Join(base.Adaptation, ", "))
	if err != nil {
		return nil, fmt.Errorf("adaptation prompt: %w", err)
	}
	r.Adaptation = splitList(adaptation)

	return r, nil
}

// askOptional displays a prompt prefilled with def and returns the input.
func askOptional(label, def string) (string, error) {
	p := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
	}
	return p.Run()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
