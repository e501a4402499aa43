// Package config loads provider-layer settings: endpoints, models,
// credentials, retry and breaker parameters, and the request-queue delay.
// Files go through environment-variable substitution before parsing, so
// secrets stay out of the file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/loomworks/loom/internal/recovery"
	"github.com/loomworks/loom/pkg/llm"
)

// ProviderSettings configures one provider entry.
type ProviderSettings struct {
	APIKey     string         `mapstructure:"api_key"`
	Endpoint   string         `mapstructure:"endpoint"`
	Model      string         `mapstructure:"model"`
	Deployment string         `mapstructure:"deployment"`
	APIVersion string         `mapstructure:"api_version"`
	MaxTokens  int            `mapstructure:"max_tokens"`
	Extra      map[string]any `mapstructure:"extra"`
}

// RetrySettings configures the recovery manager.
type RetrySettings struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	Multiplier       float64       `mapstructure:"multiplier"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// Config is the full provider-layer configuration.
type Config struct {
	Providers  map[string]ProviderSettings `mapstructure:"providers"`
	Retry      RetrySettings               `mapstructure:"retry"`
	QueueDelay *time.Duration              `mapstructure:"queue_delay"`
}

// Load reads a YAML config file, substituting ${env://VAR} references
// first. A missing path yields an empty config, not an error; everything
// then comes from defaults and explicit code.
func Load(path string) (*Config, error) {
	cfg := &Config{Providers: map[string]ProviderSettings{}}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	substituted, err := SubstituteEnvVars(string(raw))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(substituted)); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderSettings{}
	}
	return cfg, nil
}

// ClientConfig resolves the llm.Config for one provider name.
func (c *Config) ClientConfig(provider string) (llm.Config, error) {
	settings, ok := c.Providers[provider]
	if !ok {
		return llm.Config{}, fmt.Errorf("provider %s not configured", provider)
	}
	return llm.Config{
		Provider:   provider,
		APIKey:     settings.APIKey,
		Endpoint:   settings.Endpoint,
		Model:      settings.Model,
		Deployment: settings.Deployment,
		APIVersion: settings.APIVersion,
		MaxTokens:  settings.MaxTokens,
		Extra:      settings.Extra,
	}, nil
}

// RetryConfig resolves the recovery retry parameters, filling unset fields
// from defaults.
func (c *Config) RetryConfig() recovery.RetryConfig {
	rc := recovery.DefaultRetryConfig()
	if c.Retry.MaxRetries > 0 {
		rc.MaxRetries = c.Retry.MaxRetries
	}
	if c.Retry.BaseDelay > 0 {
		rc.BaseDelay = c.Retry.BaseDelay
	}
	if c.Retry.MaxDelay > 0 {
		rc.MaxDelay = c.Retry.MaxDelay
	}
	if c.Retry.Multiplier > 0 {
		rc.Multiplier = c.Retry.Multiplier
	}
	if c.Retry.Timeout > 0 {
		rc.Timeout = c.Retry.Timeout
	}
	return rc
}

// BreakerConfig resolves the circuit-breaker parameters, filling unset
// fields from defaults.
func (c *Config) BreakerConfig() recovery.BreakerConfig {
	bc := recovery.DefaultBreakerConfig()
	if c.Retry.FailureThreshold > 0 {
		bc.FailureThreshold = c.Retry.FailureThreshold
	}
	if c.Retry.Cooldown > 0 {
		bc.Cooldown = c.Retry.Cooldown
	}
	return bc
}
