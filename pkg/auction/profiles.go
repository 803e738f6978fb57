package auction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WeightProfile is a named preference-weight preset, e.g. "cost_sensitive"
// or "speed_first". Issuers pick a profile instead of hand-tuning weights.
type WeightProfile struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Weights     Weights `yaml:"weights" json:"weights"`
}

// LoadProfile loads profile_<name>.yaml from the profiles directory.
func LoadProfile(profilesDir, name string) (*WeightProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load weight profile %q: %w", name, err)
	}

	var profile WeightProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse weight profile %q: %w", name, err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	if err := profile.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("weight profile %q: %w", name, err)
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml in the directory, keyed by name.
func LoadAllProfiles(profilesDir string) (map[string]*WeightProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*WeightProfile, len(matches))
	for _, path := range matches {
		base := strings.TrimSuffix(filepath.Base(path), ".yaml")
		name := strings.TrimPrefix(base, "profile_")
		profile, err := LoadProfile(profilesDir, name)
		if err != nil {
			return nil, err
		}
		profiles[profile.Name] = profile
	}
	return profiles, nil
}
