// Package anthropic implements the provider adapter for the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/loomworks/loom/internal/recovery"
	"github.com/loomworks/loom/internal/transport"
	"github.com/loomworks/loom/pkg/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Provider is the Anthropic Messages adapter.
type Provider struct {
	cfg     llm.Config
	baseURL string
	http    *http.Client
}

// New creates an uninitialized Anthropic adapter.
func New() *Provider {
	return &Provider{http: transport.NewHTTPClient()}
}

func (p *Provider) Name() string { return "anthropic" }

// InitializeProvider fixes credentials and endpoint. The API key falls
// back to ANTHROPIC_API_KEY.
func (p *Provider) InitializeProvider(_ context.Context, cfg llm.Config) error {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing API key"}
	}
	if cfg.Model == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing model"}
	}
	p.baseURL = defaultBaseURL
	if cfg.Endpoint != "" {
		p.baseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	p.cfg = cfg
	return nil
}

// SendProviderMessage normalizes for strict adjacency, converts to the
// Messages wire format and posts.
func (p *Provider) SendProviderMessage(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.SendOptions) (*llm.Response, error) {
	normalized := llm.NormalizeStrictAdjacency(messages)

	system, wireMessages, err := MessagesToWire(normalized)
	if err != nil {
		return nil, &llm.ValidationError{Field: "messages", Reason: err.Error()}
	}

	req := CreateRequest{
		Model:     p.cfg.Model,
		System:    system,
		Messages:  wireMessages,
		MaxTokens: p.cfg.MaxTokens,
		Tools:     ToolsToWire(tools),
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if opts != nil {
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
		req.Temperature = opts.Temperature
	}

	extras := []map[string]any{p.cfg.Extra}
	if opts != nil {
		extras = append(extras, opts.Extra)
	}
	body, err := transport.BodyWithExtras(req, extras...)
	if err != nil {
		return nil, &llm.ValidationError{Field: "request", Reason: err.Error()}
	}

	log.Debug("sending messages request",
		"provider", p.Name(),
		"model", p.cfg.Model,
		"num_messages", len(wireMessages),
		"num_tools", len(tools))

	raw, err := transport.PostJSON(ctx, p.http, p.Name(), p.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": apiVersion,
	}, body)
	if err != nil {
		return nil, err
	}

	var wire APIMessage
	recovered, err := recovery.ParseWithRecovery(raw, &wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: p.Name(), Raw: string(raw), Cause: err}
	}
	if recovered {
		log.Warn("response body required JSON recovery", "provider", p.Name())
	}

	return ResponseFromWire(&wire), nil
}
