package openai

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/loomworks/loom/internal/recovery"
	"github.com/loomworks/loom/pkg/llm"
)

// Chat-completions wire types. Azure and OpenRouter speak the same shape
// and reuse these; the xAI dialect differs in its tool-call encoding and
// carries its own.

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Tools       []ToolDef     `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type ChatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"` // string, or []ContentPart for multimodal user turns
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded object
}

type ToolDef struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

type FunctionDef struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  llm.Schema `json:"parameters"`
}

type ChatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   UsageInfo `json:"usage"`
}

type Choice struct {
	Index        int          `json:"index"`
	Message      ChoiceOutput `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

type ChoiceOutput struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
}

type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// MessagesToWire converts canonical messages to chat-completions form.
// Every tool result becomes its own tool-role message keyed by
// tool_call_id; text content is always a string, never null.
func MessagesToWire(messages []llm.Message) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		results := msg.ToolResults()
		if len(results) > 0 {
			for _, block := range results {
				out = append(out, ChatMessage{
					Role:       "tool",
					ToolCallID: block.ToolUseID,
					Content:    llm.Message{Content: block.Content}.Text(),
				})
			}
			continue
		}

		wire := ChatMessage{Role: string(msg.Role)}
		if parts, multimodal := contentParts(msg); multimodal {
			wire.Content = parts
		} else {
			wire.Content = msg.Text()
		}
		for _, use := range msg.ToolUses() {
			args := "{}"
			if use.Input != nil {
				encoded, err := sonic.MarshalString(use.Input)
				if err != nil {
					return nil, fmt.Errorf("encode tool arguments for %s: %w", use.Name, err)
				}
				args = encoded
			}
			wire.ToolCalls = append(wire.ToolCalls, ToolCall{
				ID:       use.ID,
				Type:     "function",
				Function: FunctionCall{Name: use.Name, Arguments: args},
			})
		}
		out = append(out, wire)
	}
	return out, nil
}

// contentParts renders a message as multimodal parts when it carries
// images; plain text messages stay a bare string.
func contentParts(msg llm.Message) ([]ContentPart, bool) {
	hasImage := false
	for _, block := range msg.Content {
		if block.Type == llm.ContentImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return nil, false
	}

	var parts []ContentPart
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentText:
			parts = append(parts, ContentPart{Type: "text", Text: block.Text})
		case llm.ContentImage:
			if block.Source == nil {
				continue
			}
			url := block.Source.Data
			if block.Source.Kind == llm.ImageSourceBase64 {
				mediaType := block.Source.MediaType
				if mediaType == "" {
					mediaType = "image/png"
				}
				url = fmt.Sprintf("data:%s;base64,%s", mediaType, block.Source.Data)
			}
			parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}})
		}
	}
	return parts, true
}

// ToolsToWire converts canonical tool definitions.
func ToolsToWire(tools []llm.Tool) []ToolDef {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ToolDef, len(tools))
	for i, tool := range tools {
		out[i] = ToolDef{
			Type: "function",
			Function: FunctionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		}
	}
	return out
}

// MessageFromWire converts one chat-completions message back to canonical
// form. Tool-call argument strings go through JSON recovery so a truncated
// arguments payload still yields a usable call.
func MessageFromWire(wire ChoiceOutput) llm.Message {
	msg := llm.Message{Role: llm.Role(wire.Role)}
	if wire.Content != "" {
		msg.Content = append(msg.Content, llm.TextBlock(wire.Content))
	}
	for _, call := range wire.ToolCalls {
		msg.Content = append(msg.Content, llm.ToolUseBlock(call.ID, call.Function.Name, decodeArguments(call.Function.Arguments)))
	}
	return msg
}

func decodeArguments(args string) map[string]any {
	if args == "" {
		return map[string]any{}
	}
	var input map[string]any
	if _, err := recovery.ParseWithRecovery([]byte(args), &input); err != nil {
		return map[string]any{}
	}
	return input
}

// ResponseFromWire normalizes a chat-completions response. Stop reasons map
// onto the canonical vocabulary: end_turn, tool_use, max_tokens.
func ResponseFromWire(resp *ChatResponse) (*llm.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}
	choice := resp.Choices[0]
	msg := MessageFromWire(choice.Message)

	out := &llm.Response{
		ID:         resp.ID,
		Content:    msg.Content,
		Model:      resp.Model,
		StopReason: mapFinishReason(choice.FinishReason),
		Reasoning:  choice.Message.Reasoning,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if out.Usage.TotalTokens == 0 {
		out.Usage.TotalTokens = out.Usage.InputTokens + out.Usage.OutputTokens
	}
	return out, nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "tool_calls", "function_call":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return reason
	}
}
