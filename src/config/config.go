// Package config loads and validates the orchestrator's configuration:
// provider credentials and the default attack-loop options, read from a
// viper-backed YAML file plus environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/perplext/redteam-core/src/provider/anthropic"
	"github.com/perplext/redteam-core/src/provider/openai"
)

// ProviderConfig is the subset of provider wiring common to every backend.
type ProviderConfig struct {
	APIKey       string `mapstructure:"apiKey" validate:"required"`
	BaseURL      string `mapstructure:"baseURL"`
	DefaultModel string `mapstructure:"defaultModel" validate:"required"`
	TimeoutMS    int    `mapstructure:"timeoutMs" validate:"gte=0"`
}

// AttackDefaults mirrors attackloop.Options' recognized configuration, kept
// as plain fields here so it can be decoded directly by viper/mapstructure.
// MaxRounds is an accepted alias for MaxTurns; MaxTurns wins if both are set.
type AttackDefaults struct {
	InjectVar            string `mapstructure:"injectVar" validate:"required"`
	MaxTurns             int    `mapstructure:"maxTurns" validate:"gte=0"`
	MaxRounds            int    `mapstructure:"maxRounds" validate:"gte=0"`
	MaxBacktracks        int    `mapstructure:"maxBacktracks" validate:"gte=0"`
	Stateful             bool   `mapstructure:"stateful"`
	ContinueAfterSuccess bool   `mapstructure:"continueAfterSuccess"`
}

const defaultMaxTurns = 10

// Config is the top-level orchestrator configuration.
type Config struct {
	Attacker ProviderConfig `mapstructure:"attacker" validate:"required"`
	Target   ProviderConfig `mapstructure:"target" validate:"required"`
	Scorer   ProviderConfig `mapstructure:"scorer" validate:"required"`
	Defaults AttackDefaults `mapstructure:"defaults" validate:"required"`
}

// Load reads configuration from path (if non-empty) and the
// REDTEAM_-prefixed environment, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REDTEAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("defaults.injectVar", "objective")
	v.SetDefault("defaults.maxBacktracks", 10)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	switch {
	case v.IsSet("defaults.maxTurns"):
		// maxTurns wins if both are set; decoded value already in cfg.
	case v.IsSet("defaults.maxRounds"):
		cfg.Defaults.MaxTurns = cfg.Defaults.MaxRounds
	default:
		cfg.Defaults.MaxTurns = defaultMaxTurns
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewAnthropicProvider builds an anthropic.Provider from a ProviderConfig.
func NewAnthropicProvider(pc ProviderConfig) (*anthropic.Provider, error) {
	return anthropic.New(anthropic.Config{
		APIKey:       pc.APIKey,
		BaseURL:      pc.BaseURL,
		DefaultModel: pc.DefaultModel,
		Timeout:      time.Duration(pc.TimeoutMS) * time.Millisecond,
	})
}

// NewOpenAIProvider builds an openai.Provider from a ProviderConfig.
func NewOpenAIProvider(pc ProviderConfig) (*openai.Provider, error) {
	return openai.New(openai.Config{
		APIKey:       pc.APIKey,
		BaseURL:      pc.BaseURL,
		DefaultModel: pc.DefaultModel,
		Timeout:      time.Duration(pc.TimeoutMS) * time.Millisecond,
	})
}
