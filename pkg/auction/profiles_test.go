package auction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "cost_sensitive", `
name: cost_sensitive
description: favors the cheapest bid
weights:
  price: 3
  performance: 1
  speed: 1
  reputation: 1
`)

	profile, err := LoadProfile(dir, "cost_sensitive")
	require.NoError(t, err)
	assert.Equal(t, "cost_sensitive", profile.Name)
	assert.Equal(t, 3.0, profile.Weights.Price)
	assert.Equal(t, 1.0, profile.Weights.Reputation)
}

func TestLoadProfileInvalidWeights(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "broken", `
name: broken
weights:
  price: -1
`)
	_, err := LoadProfile(dir, "broken")
	assert.Error(t, err)
}

func TestLoadProfileMissing(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "absent")
	assert.Error(t, err)
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "default", `
weights:
  price: 1
  performance: 1
  speed: 1
  reputation: 1
`)
	writeProfile(t, dir, "speed_first", `
name: speed_first
weights:
  speed: 5
  price: 1
`)

	profiles, err := LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Contains(t, profiles, "default")
	assert.Contains(t, profiles, "speed_first")
	assert.Equal(t, 5.0, profiles["speed_first"].Weights.Speed)
}
