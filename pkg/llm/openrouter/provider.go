// Package openrouter implements the provider adapter for OpenRouter. The
// wire format is OpenAI chat completions; on top of that OpenRouter routes
// by vendor-prefixed model IDs and accepts quality suffixes (":nitro" for
// throughput-priority routing, ":floor" for price-priority) on models that
// support them.
package openrouter

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/loomworks/loom/internal/transport"
	"github.com/loomworks/loom/pkg/llm"
	"github.com/loomworks/loom/pkg/llm/openai"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// QualityExtraKey selects a routing-quality suffix via Config.Extra. It is
// consumed by the adapter, not forwarded to the wire.
const QualityExtraKey = "quality"

// Model families that accept quality suffixes. Everything else sends its
// ID untouched.
var suffixSupported = []string{
	"anthropic/",
	"openai/",
	"meta-llama/",
	"mistralai/",
	"google/",
}

// Provider is the OpenRouter adapter.
type Provider struct {
	cfg     llm.Config
	baseURL string
	http    *http.Client
}

// New creates an uninitialized OpenRouter adapter.
func New() *Provider {
	return &Provider{http: transport.NewHTTPClient()}
}

func (p *Provider) Name() string { return "openrouter" }

// InitializeProvider fixes credentials and resolves the model ID,
// including any quality suffix. The API key falls back to
// OPENROUTER_API_KEY.
func (p *Provider) InitializeProvider(_ context.Context, cfg llm.Config) error {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.APIKey == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing API key"}
	}
	if cfg.Model == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing model"}
	}

	if quality, ok := cfg.Extra[QualityExtraKey].(string); ok && quality != "" {
		cfg.Model = applyQualitySuffix(cfg.Model, quality)
		extra := make(map[string]any, len(cfg.Extra))
		for k, v := range cfg.Extra {
			if k != QualityExtraKey {
				extra[k] = v
			}
		}
		cfg.Extra = extra
	}

	p.baseURL = defaultBaseURL
	if cfg.Endpoint != "" {
		p.baseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	p.cfg = cfg
	return nil
}

// applyQualitySuffix appends ":quality" to model IDs whose family supports
// routing suffixes. IDs that already carry a suffix are left alone.
func applyQualitySuffix(model, quality string) string {
	if strings.Contains(model, ":") {
		return model
	}
	for _, prefix := range suffixSupported {
		if strings.HasPrefix(model, prefix) {
			return model + ":" + quality
		}
	}
	log.Debug("model family does not support quality suffixes", "model", model, "quality", quality)
	return model
}

// SendProviderMessage posts an OpenAI-shaped request to OpenRouter.
func (p *Provider) SendProviderMessage(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.SendOptions) (*llm.Response, error) {
	body, err := openai.BuildBody(p.cfg, messages, tools, opts)
	if err != nil {
		return nil, err
	}

	log.Debug("sending chat request",
		"provider", p.Name(),
		"model", p.cfg.Model,
		"num_messages", len(messages),
		"num_tools", len(tools))

	raw, err := transport.PostJSON(ctx, p.http, p.Name(), p.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	}, body)
	if err != nil {
		return nil, err
	}

	return openai.DecodeResponse(p.Name(), raw)
}

// Model returns the resolved model ID, including any applied suffix.
func (p *Provider) Model() string { return p.cfg.Model }
