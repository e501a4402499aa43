package xai

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/loomworks/loom/internal/recovery"
	"github.com/loomworks/loom/pkg/llm"
)

// The xAI-compatible dialect is chat completions with one wrinkle: tool
// call arguments travel under "args", not "arguments", in both directions.
// The divergent encoding keeps its own wire types rather than bending the
// shared OpenAI ones.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []toolDef     `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"` // string, or []contentPart for multimodal user turns
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name string `json:"name"`
	Args string `json:"args"` // JSON-encoded object; the dialect's divergence
}

type toolDef struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  llm.Schema `json:"parameters"`
}

type chatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   usageInfo `json:"usage"`
}

type choice struct {
	Message      choiceOutput `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

type choiceOutput struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ToolCalls        []toolCall `json:"tool_calls,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
}

type usageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func messagesToWire(messages []llm.Message) ([]chatMessage, error) {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		results := msg.ToolResults()
		if len(results) > 0 {
			for _, block := range results {
				out = append(out, chatMessage{
					Role:       "tool",
					ToolCallID: block.ToolUseID,
					Content:    llm.Message{Content: block.Content}.Text(),
				})
			}
			continue
		}

		wire := chatMessage{Role: string(msg.Role)}
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
			wire.ToolCalls = append(wire.ToolCalls, toolCall{
				ID:       use.ID,
				Type:     "function",
				Function: functionCall{Name: use.Name, Args: args},
			})
		}
		out = append(out, wire)
	}
	return out, nil
}

// contentParts renders a message as multimodal parts when it carries
// images; plain text messages stay a bare string.
func contentParts(msg llm.Message) ([]contentPart, bool) {
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

	var parts []contentPart
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentText:
			parts = append(parts, contentPart{Type: "text", Text: block.Text})
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
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
		}
	}
	return parts, true
}

func toolsToWire(tools []llm.Tool) []toolDef {
	if len(tools) == 0 {
		return nil
	}
	out := make([]toolDef, len(tools))
	for i, tool := range tools {
		out[i] = toolDef{
			Type: "function",
			Function: functionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		}
	}
	return out
}

func messageFromWire(wire choiceOutput, newID func() string) llm.Message {
	msg := llm.Message{Role: llm.Role(wire.Role)}
	if wire.Content != "" {
		msg.Content = append(msg.Content, llm.TextBlock(wire.Content))
	}
	for _, call := range wire.ToolCalls {
		id := call.ID
		if id == "" {
			id = newID()
		}
		msg.Content = append(msg.Content, llm.ToolUseBlock(id, call.Function.Name, decodeArgs(call.Function.Args)))
	}
	return msg
}

func decodeArgs(args string) map[string]any {
	if args == "" {
		return map[string]any{}
	}
	var input map[string]any
	if _, err := recovery.ParseWithRecovery([]byte(args), &input); err != nil {
		return map[string]any{}
	}
	return input
}

func responseFromWire(resp *chatResponse, newID func() string) (*llm.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}
	first := resp.Choices[0]
	msg := messageFromWire(first.Message, newID)

	out := &llm.Response{
		ID:         resp.ID,
		Content:    msg.Content,
		Model:      resp.Model,
		StopReason: mapFinishReason(first.FinishReason),
		Reasoning:  first.Message.ReasoningContent,
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
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return reason
	}
}
