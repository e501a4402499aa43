// Package factory resolves provider names to adapter constructors through
// a static table, fixed at compile time.
package factory

import (
	"fmt"
	"sort"

	"github.com/loomworks/loom/pkg/llm"
	"github.com/loomworks/loom/pkg/llm/anthropic"
	"github.com/loomworks/loom/pkg/llm/azure"
	"github.com/loomworks/loom/pkg/llm/ollama"
	"github.com/loomworks/loom/pkg/llm/openai"
	"github.com/loomworks/loom/pkg/llm/openrouter"
	"github.com/loomworks/loom/pkg/llm/xai"
)

// Provider names accepted by New.
const (
	ProviderOpenAI     = "openai"
	ProviderAzure      = "azure"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderXAI        = "xai"
	ProviderOllama     = "ollama"
)

var constructors = map[string]func() llm.Provider{
	ProviderOpenAI:     func() llm.Provider { return openai.New() },
	ProviderAzure:      func() llm.Provider { return azure.New() },
	ProviderAnthropic:  func() llm.Provider { return anthropic.New() },
	ProviderOpenRouter: func() llm.Provider { return openrouter.New() },
	ProviderXAI:        func() llm.Provider { return xai.New() },
	ProviderOllama:     func() llm.Provider { return ollama.New() },
}

// New constructs the adapter for a provider name.
func New(name string) (llm.Provider, error) {
	construct, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s (supported: %v)", name, SupportedProviders())
	}
	return construct(), nil
}

// NewClient constructs a client for a provider name with the given client
// options. The caller still runs Initialize.
func NewClient(name string, opts ...llm.ClientOption) (*llm.Client, error) {
	provider, err := New(name)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(provider, opts...), nil
}

// SupportedProviders lists the registered provider names, sorted.
func SupportedProviders() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
