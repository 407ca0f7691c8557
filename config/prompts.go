package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts carries per-stage prompt overrides. An empty field means the
// package's built-in prompt is used.
type Prompts struct {
	Detect   string `yaml:"detect"`
	Analyze  string `yaml:"analyze"`
	Evaluate string `yaml:"evaluate"`
}

// LoadPrompts reads prompt overrides from a YAML file. An empty path returns
// the zero value so every stage falls back to its built-in prompt.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return &Prompts{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var prompts Prompts
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}
	return &prompts, nil
}
