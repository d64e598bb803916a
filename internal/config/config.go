// Package config loads and validates the YAML batch configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"trawl"
)

// Duration accepts Go duration strings such as "60s" or "1m30s" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Config contains the batch settings applied when the command line does not
// override them. A nil Concurrency falls back to the default cap; an explicit
// 0 removes the cap.
type Config struct {
	Targets         []string `yaml:"targets"`
	Timeout         Duration `yaml:"timeout,omitempty"`
	Concurrency     *int     `yaml:"concurrency,omitempty"`
	UserAgent       string   `yaml:"user_agent,omitempty"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes,omitempty"`
	SkipStatusCheck bool     `yaml:"skip_status_check,omitempty"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Timeout == 0 {
		config.Timeout = Duration(trawl.DefaultTimeout)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateDefaultConfig writes the default configuration to path.
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	for _, target := range config.Targets {
		u, err := url.Parse(target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("target %q is not an absolute URL", target)
		}
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}

	if config.Concurrency != nil && *config.Concurrency < 0 {
		return fmt.Errorf("concurrency must be greater or equal to 0")
	}

	if config.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be greater or equal to 0")
	}

	return nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".trawl", "config.yaml")
	}
	return filepath.Join(home, ".trawl", "config.yaml")
}

// GetDefaultConfig returns a configuration with a demonstration batch: three
// well-known pages and one host that cannot resolve.
func GetDefaultConfig() *Config {
	concurrency := trawl.DefaultMaxConcurrency

	return &Config{
		Targets: []string{
			"https://www.example.com/",
			"https://www.example.org/",
			"https://www.example.net/",
			"http://nonexistent.invalid/",
		},
		Timeout:     Duration(trawl.DefaultTimeout),
		Concurrency: &concurrency,
	}
}
