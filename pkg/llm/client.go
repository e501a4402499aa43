// Package llm is the unified provider layer: a canonical message and tool
// representation, a client contract every vendor adapter implements, and
// the structuring and normalization passes that turn an agent's context
// into a causally valid provider request.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/loomworks/loom/internal/queue"
	"github.com/loomworks/loom/internal/recovery"
)

// Config fixes a client's credentials, endpoint and model at initialize
// time. Fields that only some providers read (Deployment, APIVersion) are
// ignored by the others. Extra is the one escape hatch for vendor options
// with no typed field; adapters merge it into the outbound request body
// verbatim, so keys must already be in the vendor's wire vocabulary.
type Config struct {
	Provider   string
	APIKey     string
	Endpoint   string
	Model      string
	Deployment string
	APIVersion string
	MaxTokens  int
	Extra      map[string]any
}

// SendOptions tunes a single send call.
type SendOptions struct {
	MaxTokens            int
	Temperature          *float64
	IncludeRecentActions bool
	// Extra is merged into the outbound request body after the typed
	// fields, same contract as Config.Extra.
	Extra map[string]any
}

// Provider is the hook surface each vendor adapter implements. Adapters
// are independent types selected through the factory; the Client owns
// every shared concern (validation, tool registry, queueing, retry).
type Provider interface {
	Name() string
	InitializeProvider(ctx context.Context, cfg Config) error
	SendProviderMessage(ctx context.Context, messages []Message, tools []Tool, opts *SendOptions) (*Response, error)
}

// Client is the provider-agnostic entry point: one instance per agent.
// Queue and breaker state live in the injected registries and are shared by
// every client of the same provider.
type Client struct {
	provider    Provider
	cfg         Config
	initialized bool

	toolOrder []string
	tools     map[string]Tool

	recovery *recovery.Manager
	queue    *queue.Registry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRecoveryManager injects the shared retry/breaker manager.
func WithRecoveryManager(m *recovery.Manager) ClientOption {
	return func(c *Client) { c.recovery = m }
}

// WithQueueRegistry injects the shared request-queue registry.
func WithQueueRegistry(r *queue.Registry) ClientOption {
	return func(c *Client) { c.queue = r }
}

// NewClient wraps a provider adapter. Without injected registries the
// client gets private ones, which is fine for single-client use; the agent
// runtime injects shared registries so all clients of one provider
// serialize and trip breakers together.
func NewClient(p Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider: p,
		tools:    make(map[string]Tool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recovery == nil {
		c.recovery = recovery.NewManager()
	}
	if c.queue == nil {
		c.queue = queue.NewRegistry()
	}
	return c
}

// Initialize validates the configuration and runs the provider's own
// initialization once. Credentials and model are fixed afterwards.
func (c *Client) Initialize(ctx context.Context, cfg Config) error {
	if c.initialized {
		return nil
	}
	if err := c.provider.InitializeProvider(ctx, cfg); err != nil {
		return err
	}
	c.cfg = cfg
	c.initialized = true
	log.Debug("client initialized", "provider", c.provider.Name(), "model", cfg.Model)
	return nil
}

// RegisterTool adds a tool to the client's registry. Registering a name
// twice overwrites in place without changing its position in the merge
// order.
func (c *Client) RegisterTool(tool Tool) error {
	if strings.TrimSpace(tool.Name) == "" {
		return &ValidationError{Field: "tool.name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(tool.Description) == "" {
		return &ValidationError{Field: "tool.description", Reason: "must not be empty"}
	}
	if tool.InputSchema.Type == "" {
		return &ValidationError{Field: "tool.input_schema", Reason: "must declare a type"}
	}
	if _, exists := c.tools[tool.Name]; !exists {
		c.toolOrder = append(c.toolOrder, tool.Name)
	}
	c.tools[tool.Name] = tool
	return nil
}

// RegisteredTools returns the registered tools in registration order.
func (c *Client) RegisteredTools() []Tool {
	out := make([]Tool, 0, len(c.toolOrder))
	for _, name := range c.toolOrder {
		out = append(out, c.tools[name])
	}
	return out
}

// SendMessage sends canonical messages to the provider. Registered tools
// come first in the merged tool list, caller-supplied tools are appended.
func (c *Client) SendMessage(ctx context.Context, messages []Message, tools []Tool, opts *SendOptions) (*Response, error) {
	if !c.initialized {
		return nil, &InitializationError{Provider: c.provider.Name(), Reason: "client used before Initialize"}
	}
	if len(messages) == 0 {
		return nil, &ValidationError{Field: "messages", Reason: "must not be empty"}
	}

	merged := append(c.RegisteredTools(), tools...)
	provider := c.provider.Name()

	outcome := c.recovery.Execute(ctx, provider, func(ctx context.Context) (any, error) {
		data, err := c.queue.Do(ctx, provider, func() (any, error) {
			return c.provider.SendProviderMessage(ctx, messages, merged, opts)
		})
		if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			// A timeout while still queued classifies the same as one
			// mid-flight.
			err = &NetworkError{Provider: provider, Cause: err}
		}
		return data, err
	})

	if outcome.CircuitBreakerTriggered {
		return nil, &CircuitOpenError{Provider: provider, RetryAt: outcome.RetryAt}
	}
	if outcome.Err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider, outcome.Err)
	}

	resp, ok := outcome.Data.(*Response)
	if !ok || resp == nil {
		return nil, fmt.Errorf("provider %s: adapter returned no response", provider)
	}
	log.Debug("message sent",
		"provider", provider,
		"retries", outcome.Retries,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)
	return resp, nil
}

// SendWithContext structures an AgentContext into ordered messages and
// sends them. This is the preferred path: it keeps the semantic layer tags
// instead of forcing a lossy reconstruction from flat history.
func (c *Client) SendWithContext(ctx context.Context, agentCtx *AgentContext, opts *SendOptions) (*Response, error) {
	if agentCtx == nil {
		return nil, &ValidationError{Field: "context", Reason: "must not be nil"}
	}
	includeActions := opts != nil && opts.IncludeRecentActions
	messages := StructureContext(agentCtx, includeActions)
	return c.SendMessage(ctx, messages, agentCtx.AvailableTools, opts)
}
