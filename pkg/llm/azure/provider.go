// Package azure implements the provider adapter for Azure-hosted OpenAI
// deployments. The body is the chat-completions shape; what differs is the
// deployment-scoped URL, the api-key header, and a strict requirement that
// every tool result directly follows the assistant turn that invoked it.
package azure

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/loomworks/loom/internal/transport"
	"github.com/loomworks/loom/pkg/llm"
	"github.com/loomworks/loom/pkg/llm/openai"
)

const defaultAPIVersion = "2024-06-01"

// Provider is the Azure OpenAI adapter.
type Provider struct {
	cfg  llm.Config
	url  string
	http *http.Client
}

// New creates an uninitialized Azure adapter.
func New() *Provider {
	return &Provider{http: transport.NewHTTPClient()}
}

func (p *Provider) Name() string { return "azure" }

// InitializeProvider requires an endpoint, a deployment and an API key
// (fallback AZURE_OPENAI_API_KEY). The request URL is fixed here.
func (p *Provider) InitializeProvider(_ context.Context, cfg llm.Config) error {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing API key"}
	}
	if cfg.Endpoint == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing endpoint"}
	}
	if cfg.Deployment == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing deployment"}
	}
	if cfg.Model == "" {
		// Azure routes by deployment; the body still wants a model name.
		cfg.Model = cfg.Deployment
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	p.url = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(cfg.Endpoint, "/"), cfg.Deployment, version)
	p.cfg = cfg
	return nil
}

// SendProviderMessage normalizes the sequence for strict adjacency before
// conversion; Azure rejects non-adjacent tool results outright.
func (p *Provider) SendProviderMessage(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.SendOptions) (*llm.Response, error) {
	normalized := llm.NormalizeStrictAdjacency(messages)

	body, err := openai.BuildBody(p.cfg, normalized, tools, opts)
	if err != nil {
		return nil, err
	}

	log.Debug("sending chat request",
		"provider", p.Name(),
		"deployment", p.cfg.Deployment,
		"num_messages", len(normalized),
		"num_tools", len(tools))

	raw, err := transport.PostJSON(ctx, p.http, p.Name(), p.url, map[string]string{
		"api-key": p.cfg.APIKey,
	}, body)
	if err != nil {
		return nil, err
	}

	return openai.DecodeResponse(p.Name(), raw)
}
