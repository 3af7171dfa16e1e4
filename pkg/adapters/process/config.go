package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillConfig represents the configuration for an external skill command.
type SkillConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of skills.yaml.
type ConfigFile struct {
	Skills []SkillConfig `yaml:"skills" json:"skills"`
}

// LoadSkills reads a configuration file (YAML or JSON) and returns a map
// of skill names to configs. A missing file means "no skills configured".
func LoadSkills(path string) (map[string]SkillConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]SkillConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read skills config: %w", err)
	}

	var cfg ConfigFile
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse skills.json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse skills.yaml: %w", err)
		}
	}

	skillMap := make(map[string]SkillConfig)
	for _, s := range cfg.Skills {
		if s.Name == "" {
			continue
		}
		skillMap[s.Name] = s
	}

	return skillMap, nil
}
