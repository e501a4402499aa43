// Package xai implements the provider adapter for an xAI-compatible chat
// dialect.
package xai

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/recovery"
	"github.com/loomworks/loom/internal/transport"
	"github.com/loomworks/loom/pkg/llm"
)

const (
	defaultBaseURL   = "https://api.x.ai/v1"
	defaultMaxTokens = 4096
)

// Provider is the xAI-dialect adapter.
type Provider struct {
	cfg     llm.Config
	baseURL string
	http    *http.Client
	newID   func() string
}

// New creates an uninitialized xAI adapter.
func New() *Provider {
	return &Provider{
		http:  transport.NewHTTPClient(),
		newID: func() string { return "call_" + uuid.NewString() },
	}
}

func (p *Provider) Name() string { return "xai" }

// InitializeProvider fixes credentials and endpoint. The API key falls
// back to XAI_API_KEY.
func (p *Provider) InitializeProvider(_ context.Context, cfg llm.Config) error {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("XAI_API_KEY")
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

// SendProviderMessage converts canonical messages to the dialect's wire
// format and posts. Responses missing tool call IDs get synthesized ones
// so downstream pairing still works.
func (p *Provider) SendProviderMessage(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.SendOptions) (*llm.Response, error) {
	wireMessages, err := messagesToWire(messages)
	if err != nil {
		return nil, &llm.ValidationError{Field: "messages", Reason: err.Error()}
	}

	req := chatRequest{
		Model:     p.cfg.Model,
		Messages:  wireMessages,
		Tools:     toolsToWire(tools),
		MaxTokens: p.cfg.MaxTokens,
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

	log.Debug("sending chat request",
		"provider", p.Name(),
		"model", p.cfg.Model,
		"num_messages", len(wireMessages),
		"num_tools", len(tools))

	raw, err := transport.PostJSON(ctx, p.http, p.Name(), p.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	}, body)
	if err != nil {
		return nil, err
	}

	var wire chatResponse
	recovered, err := recovery.ParseWithRecovery(raw, &wire)
	if err != nil {
		return nil, &llm.ParseError{Provider: p.Name(), Raw: string(raw), Cause: err}
	}
	if recovered {
		log.Warn("response body required JSON recovery", "provider", p.Name())
	}

	resp, err := responseFromWire(&wire, p.newID)
	if err != nil {
		return nil, &llm.ParseError{Provider: p.Name(), Raw: string(raw), Cause: err}
	}
	return resp, nil
}
