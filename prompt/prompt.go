// Package prompt loads the agent's instruction text from prompt files.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlPrompt is the shape of a YAML prompt file.
type yamlPrompt struct {
	Instructions string `yaml:"instructions"`
}

// LoadYAML reads a YAML prompt file and returns its instructions field.
func LoadYAML(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}

	var p yamlPrompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("failed to parse prompt file %s: %w", path, err)
	}
	return p.Instructions, nil
}

// LoadMarkdown reads a Markdown prompt file as plain instruction text.
func LoadMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	return string(data), nil
}

// Load picks the loader from the file extension. YAML files contribute
// their instructions field, anything else is read verbatim.
func Load(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	default:
		return LoadMarkdown(path)
	}
}
