// Package ollama implements the provider adapter for a local Ollama
// server's /api/chat endpoint, through the official client.
package ollama

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	api "github.com/ollama/ollama/api"

	"github.com/loomworks/loom/internal/transport"
	"github.com/loomworks/loom/pkg/llm"
)

// Provider is the Ollama adapter. The chat API carries no tool call IDs,
// so IDs are synthesized on the way back and results pair by order on the
// way out.
type Provider struct {
	cfg    llm.Config
	client *api.Client
	newID  func() string
}

// New creates an uninitialized Ollama adapter.
func New() *Provider {
	return &Provider{
		newID: func() string { return "call_" + uuid.NewString() },
	}
}

func (p *Provider) Name() string { return "ollama" }

// InitializeProvider connects to the configured endpoint, or to OLLAMA_HOST
// when none is set. No API key is involved; a model is still required.
func (p *Provider) InitializeProvider(_ context.Context, cfg llm.Config) error {
	if cfg.Model == "" {
		return &llm.InitializationError{Provider: p.Name(), Reason: "missing model"}
	}

	if cfg.Endpoint != "" {
		base, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return &llm.InitializationError{Provider: p.Name(), Reason: "invalid endpoint: " + err.Error()}
		}
		p.client = api.NewClient(base, transport.NewHTTPClient())
	} else {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return &llm.InitializationError{Provider: p.Name(), Reason: err.Error()}
		}
		p.client = client
	}
	p.cfg = cfg
	return nil
}

// SendProviderMessage converts canonical messages to Ollama's chat format
// and runs a non-streaming request.
func (p *Provider) SendProviderMessage(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts *llm.SendOptions) (*llm.Response, error) {
	ollamaMessages := messagesToWire(messages)

	log.Debug("sending chat request",
		"provider", p.Name(),
		"model", p.cfg.Model,
		"num_messages", len(ollamaMessages),
		"num_tools", len(tools))

	req := &api.ChatRequest{
		Model:    p.cfg.Model,
		Messages: ollamaMessages,
		Tools:    toolsToWire(tools),
		Stream:   boolPtr(false),
	}
	if opts != nil && opts.Temperature != nil {
		req.Options = map[string]any{"temperature": *opts.Temperature}
	}

	var final *api.ChatResponse
	err := p.client.Chat(ctx, req, func(r api.ChatResponse) error {
		if r.Done {
			final = &r
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, &llm.ProviderAPIError{
				Provider:   p.Name(),
				StatusCode: statusErr.StatusCode,
				Message:    statusErr.ErrorMessage,
			}
		}
		return nil, &llm.NetworkError{Provider: p.Name(), Cause: err}
	}
	if final == nil {
		return nil, &llm.ParseError{Provider: p.Name(), Cause: errors.New("chat stream ended without a final response")}
	}

	return p.responseFromWire(final), nil
}

func messagesToWire(messages []llm.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		results := msg.ToolResults()
		if len(results) > 0 {
			// The chat API has no tool_call_id; results pair with calls
			// by position.
			for _, block := range results {
				out = append(out, api.Message{
					Role:    "tool",
					Content: llm.Message{Content: block.Content}.Text(),
				})
			}
			continue
		}

		wire := api.Message{
			Role:    string(msg.Role),
			Content: msg.Text(),
		}
		for _, block := range msg.Content {
			if block.Type != llm.ContentImage || block.Source == nil {
				continue
			}
			if block.Source.Kind == llm.ImageSourceBase64 {
				if data, err := base64.StdEncoding.DecodeString(block.Source.Data); err == nil {
					wire.Images = append(wire.Images, api.ImageData(data))
				}
			}
		}
		for _, use := range msg.ToolUses() {
			input := use.Input
			if input == nil {
				input = map[string]any{}
			}
			wire.ToolCalls = append(wire.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      use.Name,
					Arguments: input,
				},
			})
		}
		out = append(out, wire)
	}
	return out
}

func toolsToWire(tools []llm.Tool) []api.Tool {
	out := make([]api.Tool, len(tools))
	for i, tool := range tools {
		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
			},
		}
		out[i].Function.Parameters.Type = tool.InputSchema.Type
		out[i].Function.Parameters.Required = tool.InputSchema.Required
		out[i].Function.Parameters.Properties = convertProperties(tool.InputSchema.Properties)
	}
	return out
}

// convertProperties reshapes schema properties into the client's inline
// property struct.
func convertProperties(props map[string]any) map[string]struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
} {
	result := make(map[string]struct {
		Type        string   `json:"type"`
		Description string   `json:"description"`
		Enum        []string `json:"enum,omitempty"`
	})

	for name, prop := range props {
		propMap, ok := prop.(map[string]any)
		if !ok {
			continue
		}
		entry := struct {
			Type        string   `json:"type"`
			Description string   `json:"description"`
			Enum        []string `json:"enum,omitempty"`
		}{
			Type:        getString(propMap, "type"),
			Description: getString(propMap, "description"),
		}
		if enumRaw, ok := propMap["enum"].([]any); ok {
			for _, e := range enumRaw {
				if str, ok := e.(string); ok {
					entry.Enum = append(entry.Enum, str)
				}
			}
		}
		result[name] = entry
	}
	return result
}

func boolPtr(b bool) *bool { return &b }

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func (p *Provider) responseFromWire(r *api.ChatResponse) *llm.Response {
	resp := &llm.Response{
		ID:    "ollama_" + uuid.NewString(),
		Model: r.Model,
		Usage: llm.Usage{
			InputTokens:  r.Metrics.PromptEvalCount,
			OutputTokens: r.Metrics.EvalCount,
			TotalTokens:  r.Metrics.PromptEvalCount + r.Metrics.EvalCount,
		},
	}

	if r.Message.Content != "" {
		resp.Content = append(resp.Content, llm.TextBlock(r.Message.Content))
	}
	for _, call := range r.Message.ToolCalls {
		resp.Content = append(resp.Content, llm.ToolUseBlock(p.newID(), call.Function.Name, call.Function.Arguments))
	}

	switch {
	case len(r.Message.ToolCalls) > 0:
		resp.StopReason = "tool_use"
	case r.DoneReason == "stop" || r.DoneReason == "":
		resp.StopReason = "end_turn"
	case r.DoneReason == "length":
		resp.StopReason = "max_tokens"
	default:
		resp.StopReason = r.DoneReason
	}
	return resp
}
