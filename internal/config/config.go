// Package config holds all adforge configuration. Configuration is loaded
// from a YAML file, then overridden by ADFORGE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all adforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM / generation provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Generation pipeline settings
	Generation GenerationConfig `yaml:"generation"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Prompt template settings
	Prompts PromptConfig `yaml:"prompts"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Name:       "adforge",
		Version:    "0.1.0",
		LLM:        DefaultLLMConfig(),
		Generation: DefaultGenerationConfig(),
		Storage:    DefaultStorageConfig(),
		Prompts:    DefaultPromptConfig(),
		Logging:    DefaultLoggingConfig(),
	}
}

// Load reads configuration from path (if it exists), applies environment
// overrides, and validates the result. A missing file is not an error; the
// defaults plus environment carry a fresh install.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	return nil
}

// WriteDefault writes the default configuration as YAML to path, creating
// parent directories. Used by `adforge config init`.
func WriteDefault(path string) error {
	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// PromptConfig configures the prompt template registry.
type PromptConfig struct {
	// TemplateDir is an optional directory of *.tmpl overrides. When set,
	// templates are hot-reloaded on change.
	TemplateDir string `yaml:"template_dir" env:"ADFORGE_PROMPT_TEMPLATE_DIR"`
	// WatchTemplates enables fsnotify reload of the template directory.
	WatchTemplates bool `yaml:"watch_templates" env:"ADFORGE_PROMPT_WATCH"`
}

// DefaultPromptConfig returns sensible defaults.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{WatchTemplates: false}
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Dir     string `yaml:"dir" env:"ADFORGE_LOG_DIR"`
	Debug   bool   `yaml:"debug" env:"ADFORGE_DEBUG"`
	Console bool   `yaml:"console" env:"ADFORGE_LOG_CONSOLE"`
}

// DefaultLoggingConfig returns sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Console: true}
}
