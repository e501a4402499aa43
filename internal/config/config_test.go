package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_CONF_KEY", "secret-value")
	os.Unsetenv("TEST_CONF_MISSING")

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "set variable",
			content: "api_key: ${env://TEST_CONF_KEY}",
			want:    "api_key: secret-value",
		},
		{
			name:    "unset with default",
			content: "endpoint: ${env://TEST_CONF_MISSING:-http://localhost:11434}",
			want:    "endpoint: http://localhost:11434",
		},
		{
			name:    "set beats default",
			content: "api_key: ${env://TEST_CONF_KEY:-fallback}",
			want:    "api_key: secret-value",
		},
		{
			name:    "unset without default fails",
			content: "api_key: ${env://TEST_CONF_MISSING}",
			wantErr: true,
		},
		{
			name:    "plain content untouched",
			content: "model: gpt-4o",
			want:    "model: gpt-4o",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubstituteEnvVars(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_AZURE_KEY", "azure-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yml")
	content := `
providers:
  azure:
    api_key: ${env://TEST_AZURE_KEY}
    endpoint: https://example.openai.azure.com
    deployment: gpt4-prod
    api_version: "2024-06-01"
  ollama:
    endpoint: ${env://TEST_OLLAMA_HOST:-http://localhost:11434}
    model: llama3
retry:
  max_retries: 5
  base_delay: 250ms
  failure_threshold: 2
  cooldown: 10s
queue_delay: 50ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	azure, err := cfg.ClientConfig("azure")
	if err != nil {
		t.Fatalf("ClientConfig(azure): %v", err)
	}
	if azure.APIKey != "azure-secret" {
		t.Errorf("APIKey = %q", azure.APIKey)
	}
	if azure.Deployment != "gpt4-prod" {
		t.Errorf("Deployment = %q", azure.Deployment)
	}

	ollama, err := cfg.ClientConfig("ollama")
	if err != nil {
		t.Fatalf("ClientConfig(ollama): %v", err)
	}
	if ollama.Endpoint != "http://localhost:11434" {
		t.Errorf("Endpoint = %q", ollama.Endpoint)
	}
	if ollama.Provider != "ollama" {
		t.Errorf("Provider = %q", ollama.Provider)
	}

	if _, err := cfg.ClientConfig("xai"); err == nil {
		t.Error("unconfigured provider resolved")
	}

	rc := cfg.RetryConfig()
	if rc.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", rc.MaxRetries)
	}
	if rc.BaseDelay != 250*time.Millisecond {
		t.Errorf("BaseDelay = %v", rc.BaseDelay)
	}
	if rc.MaxDelay != 30*time.Second {
		t.Errorf("unset MaxDelay should keep the default, got %v", rc.MaxDelay)
	}

	bc := cfg.BreakerConfig()
	if bc.FailureThreshold != 2 || bc.Cooldown != 10*time.Second {
		t.Errorf("breaker = %+v", bc)
	}

	if cfg.QueueDelay == nil || *cfg.QueueDelay != 50*time.Millisecond {
		t.Errorf("QueueDelay = %v", cfg.QueueDelay)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(cfg.Providers) != 0 {
		t.Errorf("providers = %+v", cfg.Providers)
	}

	rc := cfg.RetryConfig()
	if rc.MaxRetries != 3 {
		t.Errorf("default MaxRetries = %d", rc.MaxRetries)
	}
}
