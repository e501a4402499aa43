package llm

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentType discriminates the members of the ContentBlock union.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// ImageSourceKind says how image bytes are carried.
type ImageSourceKind string

const (
	ImageSourceBase64 ImageSourceKind = "base64"
	ImageSourceURL    ImageSourceKind = "url"
)

// ImageSource carries image content either inline (base64) or by URL.
type ImageSource struct {
	Kind      ImageSourceKind `json:"kind"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data"`
}

// ContentBlock is one element of a message's content. Exactly one shape is
// populated, selected by Type. A single struct with a discriminator keeps
// JSON round-trips trivial across all provider wire formats.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// ContentText
	Text string `json:"text,omitempty"`

	// ContentImage
	Source *ImageSource `json:"source,omitempty"`

	// ContentToolUse
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// ContentToolResult
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ImageBlock builds an image content block.
func ImageBlock(source ImageSource) ContentBlock {
	src := source
	return ContentBlock{Type: ContentImage, Source: &src}
}

// ToolUseBlock builds a tool invocation block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool result block carrying text output.
func ToolResultBlock(toolUseID, text string) ContentBlock {
	return ContentBlock{
		Type:      ContentToolResult,
		ToolUseID: toolUseID,
		Content:   []ContentBlock{TextBlock(text)},
	}
}

// Message is one turn in the canonical conversation representation.
type Message struct {
	Role     Role           `json:"role"`
	Content  []ContentBlock `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SystemMessage builds a single-text system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentBlock{TextBlock(text)}}
}

// UserMessage builds a single-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage builds a single-text assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolResultMessage builds a tool-role message carrying one result.
func ToolResultMessage(toolUseID, text string) Message {
	return Message{Role: RoleTool, Content: []ContentBlock{ToolResultBlock(toolUseID, text)}}
}

// Text concatenates all text blocks of the message. Never returns content
// from non-text blocks; absence is an empty string, never a null at the
// wire boundary.
func (m Message) Text() string {
	var out string
	for _, block := range m.Content {
		if block.Type == ContentText {
			if out != "" {
				out += "\n"
			}
			out += block.Text
		}
	}
	return out
}

// ToolUses returns the tool invocation blocks of the message.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range m.Content {
		if block.Type == ContentToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// ToolResults returns the tool result blocks of the message.
func (m Message) ToolResults() []ContentBlock {
	var results []ContentBlock
	for _, block := range m.Content {
		if block.Type == ContentToolResult {
			results = append(results, block)
		}
	}
	return results
}

// HasToolUse reports whether the message carries at least one tool call.
func (m Message) HasToolUse() bool {
	return len(m.ToolUses()) > 0
}

// Schema is the JSON schema describing a tool's input object.
type Schema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// Tool is a function the model may invoke.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// Usage reports token consumption for one request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the canonical result of one provider call. A Response is
// either fully normalized or the call fails; partial conversions are never
// returned as success.
type Response struct {
	ID         string         `json:"id"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// Text concatenates the text blocks of the response.
func (r *Response) Text() string {
	return Message{Content: r.Content}.Text()
}

// ToolUses returns the tool calls requested by the response.
func (r *Response) ToolUses() []ContentBlock {
	return Message{Content: r.Content}.ToolUses()
}

// ContextLayer tags a history entry with the semantic layer it belongs to.
// Layers already folded into the system prompt are excluded from the
// rendered dialogue; conversation and tool-result layers are genuine turns.
type ContextLayer string

const (
	LayerSystem       ContextLayer = "system"
	LayerIdentity     ContextLayer = "identity"
	LayerTask         ContextLayer = "task"
	LayerConversation ContextLayer = "conversation"
	LayerAction       ContextLayer = "action"
	LayerToolResult   ContextLayer = "tool-result"
)

// ToolCallRef records one tool invocation attached to a history entry.
type ToolCallRef struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// MessageMetadata is the tag bundle attached to a ConversationMessage by
// the agent runtime.
type MessageMetadata struct {
	ContextLayer ContextLayer  `json:"context_layer,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	ToolCalls    []ToolCallRef `json:"tool_calls,omitempty"`
	FromAgentID  string        `json:"from_agent_id,omitempty"`
}

// ConversationMessage is one entry of the externally owned history.
type ConversationMessage struct {
	Role     Role            `json:"role"`
	Content  string          `json:"content"`
	Metadata MessageMetadata `json:"metadata,omitempty"`
}

// Action is a recently performed agent action, summarized for context.
type Action struct {
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
}

// Task is the agent's current assignment.
type Task struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
}

// AgentConfig identifies the agent on whose behalf requests are made.
type AgentConfig struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// AgentContext is the read-only bundle supplied by the agent runtime for
// one provider request.
type AgentContext struct {
	SystemPrompt        string                `json:"system_prompt"`
	AgentConfig         AgentConfig           `json:"agent_config"`
	ConversationHistory []ConversationMessage `json:"conversation_history"`
	CurrentTask         *Task                 `json:"current_task,omitempty"`
	RecentActions       []Action              `json:"recent_actions,omitempty"`
	AvailableTools      []Tool                `json:"available_tools,omitempty"`
}
