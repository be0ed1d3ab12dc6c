package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProvidersConfig describes the model providers a deployment offers.
type ProvidersConfig struct {
	Providers       map[string]ProviderEntry `yaml:"providers"`
	DefaultProvider string                   `yaml:"default_provider"`
	DefaultModel    string                   `yaml:"default_model"`
}

// ProviderEntry is one provider's server-side configuration. Key may be a
// ${ENV_VAR} reference resolved at load time.
type ProviderEntry struct {
	Enabled bool     `yaml:"enabled"`
	Key     string   `yaml:"key"`
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
}

// LoadProviders reads providers.yaml. An absent file yields an empty
// config; the settings store is then the only key source.
func LoadProviders(path string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ProvidersConfig{Providers: map[string]ProviderEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.resolveEnvVars()
	return &cfg, nil
}

// resolveEnvVars replaces ${ENV_VAR} key references with the environment's
// values. Unset variables resolve to empty, which disables the provider.
func (c *ProvidersConfig) resolveEnvVars() {
	for name, p := range c.Providers {
		if strings.HasPrefix(p.Key, "${") && strings.HasSuffix(p.Key, "}") {
			p.Key = os.Getenv(strings.TrimSuffix(strings.TrimPrefix(p.Key, "${"), "}"))
			c.Providers[name] = p
		}
	}
}

// Resolve picks the key and model for a provider name, falling back to the
// config's defaults when name is empty.
func (c *ProvidersConfig) Resolve(name string) (provider, key, model string, err error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return "", "", "", fmt.Errorf("provider %q not configured", name)
	}
	if !p.Enabled || p.Key == "" {
		return "", "", "", fmt.Errorf("provider %q is not available", name)
	}
	model = c.DefaultModel
	if len(p.Models) > 0 {
		model = p.Models[0]
	}
	return name, p.Key, model, nil
}
