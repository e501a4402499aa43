package anthropic

import (
	"fmt"

	"github.com/loomworks/loom/pkg/llm"
)

// Messages API wire types. System text is a top-level field, content is
// always a block list, and tool results travel as user-role tool_result
// blocks.

type CreateRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []MessageParam `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty"`
	Tools       []Tool         `json:"tools,omitempty"`
}

type MessageParam struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Thinking  string         `json:"thinking,omitempty"`
	Source    *ImageSource   `json:"source,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	InputSchema llm.Schema `json:"input_schema"`
}

type APIMessage struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      UsageInfo      `json:"usage"`
}

type UsageInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessagesToWire converts a strict-adjacency-normalized canonical sequence.
// The system turn is extracted into the top-level field; tool-role messages
// become user turns carrying tool_result blocks, and consecutive results
// merge into one user turn so they stay inside the single message that must
// follow the invoking assistant turn.
func MessagesToWire(messages []llm.Message) (system string, out []MessageParam, err error) {
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Text()
			continue
		}

		results := msg.ToolResults()
		if len(results) > 0 {
			blocks := make([]llm.ContentBlock, 0, len(results))
			blocks = append(blocks, results...)
			wire, err := blocksToWire(blocks)
			if err != nil {
				return "", nil, err
			}
			if n := len(out); n > 0 && out[n-1].Role == "user" && isToolResultOnly(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, wire...)
			} else {
				out = append(out, MessageParam{Role: "user", Content: wire})
			}
			continue
		}

		wire, err := blocksToWire(msg.Content)
		if err != nil {
			return "", nil, err
		}
		if len(wire) == 0 {
			wire = []ContentBlock{{Type: "text", Text: ""}}
		}
		out = append(out, MessageParam{Role: string(msg.Role), Content: wire})
	}
	return system, out, nil
}

func isToolResultOnly(param MessageParam) bool {
	for _, block := range param.Content {
		if block.Type != "tool_result" {
			return false
		}
	}
	return len(param.Content) > 0
}

func blocksToWire(blocks []llm.ContentBlock) ([]ContentBlock, error) {
	var out []ContentBlock
	for _, block := range blocks {
		switch block.Type {
		case llm.ContentText:
			out = append(out, ContentBlock{Type: "text", Text: block.Text})
		case llm.ContentImage:
			if block.Source == nil {
				continue
			}
			source := &ImageSource{MediaType: block.Source.MediaType}
			if block.Source.Kind == llm.ImageSourceURL {
				source.Type = "url"
				source.URL = block.Source.Data
			} else {
				source.Type = "base64"
				source.Data = block.Source.Data
			}
			out = append(out, ContentBlock{Type: "image", Source: source})
		case llm.ContentToolUse:
			input := block.Input
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, ContentBlock{Type: "tool_use", ID: block.ID, Name: block.Name, Input: input})
		case llm.ContentToolResult:
			inner, err := blocksToWire(block.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, ContentBlock{Type: "tool_result", ToolUseID: block.ToolUseID, Content: inner})
		default:
			return nil, fmt.Errorf("unsupported content block type %q", block.Type)
		}
	}
	return out, nil
}

// ToolsToWire converts canonical tool definitions.
func ToolsToWire(tools []llm.Tool) []Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]Tool, len(tools))
	for i, tool := range tools {
		out[i] = Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}
	}
	return out
}

// ResponseFromWire normalizes a Messages API response. Anthropic's native
// stop reasons are already the canonical vocabulary. Thinking blocks fold
// into the reasoning field.
func ResponseFromWire(msg *APIMessage) *llm.Response {
	resp := &llm.Response{
		ID:         msg.ID,
		Model:      msg.Model,
		StopReason: msg.StopReason,
		Usage: llm.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			TotalTokens:  msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, llm.TextBlock(block.Text))
		case "tool_use":
			resp.Content = append(resp.Content, llm.ToolUseBlock(block.ID, block.Name, block.Input))
		case "thinking":
			if resp.Reasoning != "" {
				resp.Reasoning += "\n"
			}
			resp.Reasoning += block.Thinking
		}
	}
	return resp
}
