package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultSeedLabel is the App Configuration label the seeded keys live under.
const DefaultSeedLabel = "AzdPipelines"

// SeedConfig describes what the migration worker must make exist.
type SeedConfig struct {
	// Label scopes every seeded setting.
	Label string `yaml:"label"`
	// Settings maps key to the default value written when the key is absent.
	Settings map[string]string `yaml:"settings"`
	// People lists the well-known person ids that must exist exactly once.
	People []string `yaml:"people"`
}

// LoadSeedConfigFromPath loads the seed configuration from a YAML file.
func LoadSeedConfigFromPath(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed config: %w", err)
	}

	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse seed config: %w", err)
	}

	if strings.TrimSpace(cfg.Label) == "" {
		cfg.Label = DefaultSeedLabel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSeedConfigOrDefault loads path when set and falls back to the built-in
// defaults otherwise. A file that is set but unreadable is an error.
func LoadSeedConfigOrDefault(path string) (*SeedConfig, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSeedConfig(), nil
	}
	return LoadSeedConfigFromPath(path)
}

// DefaultSeedConfig returns the seed data shipped with the sample.
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Label: DefaultSeedLabel,
		Settings: map[string]string{
			"TestKey": "<<default-value-TestKey>>",
			"NewKey":  "<<default-value-NewKey>>",
		},
		People: []string{
			"549b8034-909d-4f25-abed-48a9fdb24276",
			"7e3f0f92-c31f-4735-b733-7b82e8c7f187",
			"653a2397-f046-4d1c-9774-815fc7ec29f9",
		},
	}
}

// Validate checks the label, keys and person ids.
func (c *SeedConfig) Validate() error {
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("seed config: label is required")
	}
	for key := range c.Settings {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("seed config: setting key must not be empty")
		}
	}
	if _, err := c.WellKnownIDs(); err != nil {
		return err
	}
	return nil
}

// WellKnownIDs parses People. Duplicates are collapsed, order is preserved.
func (c *SeedConfig) WellKnownIDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(c.People))
	seen := make(map[uuid.UUID]struct{}, len(c.People))
	for _, raw := range c.People {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("seed config: person id %q: %w", raw, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
