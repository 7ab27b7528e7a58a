package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, `
attacker:
  apiKey: ak
  defaultModel: claude-3-opus-20240229
target:
  apiKey: tk
  defaultModel: gpt-4o-mini
scorer:
  apiKey: sk
  defaultModel: claude-3-opus-20240229
defaults:
  injectVar: objective
  maxTurns: 5
  maxBacktracks: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ak", cfg.Attacker.APIKey)
	assert.Equal(t, 5, cfg.Defaults.MaxTurns)
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeConfigFile(t, `
attacker:
  defaultModel: claude-3-opus-20240229
target:
  apiKey: tk
  defaultModel: gpt-4o-mini
scorer:
  apiKey: sk
  defaultModel: claude-3-opus-20240229
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMaxRoundsAliasUsedWhenMaxTurnsUnset(t *testing.T) {
	path := writeConfigFile(t, `
attacker:
  apiKey: ak
  defaultModel: claude-3-opus-20240229
target:
  apiKey: tk
  defaultModel: gpt-4o-mini
scorer:
  apiKey: sk
  defaultModel: claude-3-opus-20240229
defaults:
  injectVar: objective
  maxRounds: 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Defaults.MaxTurns)
}

func TestLoadMaxTurnsWinsWhenBothSet(t *testing.T) {
	path := writeConfigFile(t, `
attacker:
  apiKey: ak
  defaultModel: claude-3-opus-20240229
target:
  apiKey: tk
  defaultModel: gpt-4o-mini
scorer:
  apiKey: sk
  defaultModel: claude-3-opus-20240229
defaults:
  injectVar: objective
  maxTurns: 5
  maxRounds: 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Defaults.MaxTurns)
}

func TestLoadMaxTurnsDefaultsWhenNeitherSet(t *testing.T) {
	path := writeConfigFile(t, `
attacker:
  apiKey: ak
  defaultModel: claude-3-opus-20240229
target:
  apiKey: tk
  defaultModel: gpt-4o-mini
scorer:
  apiKey: sk
  defaultModel: claude-3-opus-20240229
defaults:
  injectVar: objective
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Defaults.MaxTurns)
}
