// Package openai implements the provider adapter for OpenAI-style chat
// completions. Azure and OpenRouter reuse its wire conversion.
package openai

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
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultMaxTokens = 4096
)

// Provider is the OpenAI chat-completions adapter.
type Provider struct {
	cfg     llm.Config
	baseURL string
	http    *http.Client
}

// New creates an uninitialized OpenAI adapter.
func New() *Provider {
	return &Provider{http: transport.NewHTTPClient()}
}

func (p *Provider) Name() string { return "openai" }

// InitializeProvider fixes credentials and endpoint. The API key falls
// back to OPENAI_API_KEY.
func (p *Provider) InitializeProvider(_ context.Context, cfg llm.Config) error {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
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

// SendProviderMessage converts canonical messages to the chat-completions
// wire format, posts them, and normalizes the response.
func (p *Provider) SendProviderMessage(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.SendOptions) (*llm.Response, error) {
	body, err := BuildBody(p.cfg, messages, tools, opts)
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

	return DecodeResponse(p.Name(), raw)
}

// BuildBody assembles the request body shared by the OpenAI-compatible
// adapters, merging the escape-hatch maps last.
func BuildBody(cfg llm.Config, messages []llm.Message, tools []llm.Tool, opts *llm.SendOptions) (map[string]any, error) {
	wireMessages, err := MessagesToWire(messages)
	if err != nil {
		return nil, &llm.ValidationError{Field: "messages", Reason: err.Error()}
	}

	req := ChatRequest{
		Model:     cfg.Model,
		Messages:  wireMessages,
		Tools:     ToolsToWire(tools),
		MaxTokens: cfg.MaxTokens,
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

	extras := []map[string]any{cfg.Extra}
	if opts != nil {
		extras = append(extras, opts.Extra)
	}
	body, err := transport.BodyWithExtras(req, extras...)
	if err != nil {
		return nil, &llm.ValidationError{Field: "request", Reason: err.Error()}
	}
	return body, nil
}

// DecodeResponse parses a chat-completions body with JSON recovery and
// normalizes it. Shared by the OpenAI-compatible adapters.
func DecodeResponse(provider string, raw []byte) (*llm.Response, error) {
	var wire ChatResponse
	recovered, err := recovery.ParseWithRecovery(raw, &wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: provider, Raw: string(raw), Cause: err}
	}
	if recovered {
		log.Warn("response body required JSON recovery", "provider", provider)
	}

	resp, err := ResponseFromWire(&wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: provider, Raw: string(raw), Cause: err}
	}
	return resp, nil
}
