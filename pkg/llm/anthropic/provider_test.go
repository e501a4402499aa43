package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/llm"
)

func TestMessagesToWireSystemExtraction(t *testing.T) {
	system, out, err := MessagesToWire([]llm.Message{
		llm.SystemMessage("base prompt"),
		llm.UserMessage("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "base prompt", system)
	require.Len(t, out, 1)
	assert.Equal(t, "user", out[0].Role)
}

func TestMessagesToWireToolResults(t *testing.T) {
	// Two consecutive results merge into one user turn.
	system, out, err := MessagesToWire([]llm.Message{
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{
			llm.ToolUseBlock("a", "first", map[string]any{"n": 1}),
			llm.ToolUseBlock("b", "second", nil),
		}},
		llm.ToolResultMessage("a", "one"),
		llm.ToolResultMessage("b", "two"),
	})
	require.NoError(t, err)
	assert.Empty(t, system)
	require.Len(t, out, 2)

	assistant := out[0]
	require.Len(t, assistant.Content, 2)
	assert.Equal(t, "tool_use", assistant.Content[0].Type)
	assert.Equal(t, map[string]any{}, assistant.Content[1].Input, "nil input must encode as an empty object")

	user := out[1]
	assert.Equal(t, "user", user.Role)
	require.Len(t, user.Content, 2)
	assert.Equal(t, "tool_result", user.Content[0].Type)
	assert.Equal(t, "a", user.Content[0].ToolUseID)
	assert.Equal(t, "b", user.Content[1].ToolUseID)
}

func TestMessagesToWireImages(t *testing.T) {
	_, out, err := MessagesToWire([]llm.Message{
		{Role: llm.RoleUser, Content: []llm.ContentBlock{
			llm.ImageBlock(llm.ImageSource{Kind: llm.ImageSourceBase64, MediaType: "image/png", Data: "Zm9v"}),
			llm.ImageBlock(llm.ImageSource{Kind: llm.ImageSourceURL, Data: "https://example.com/x.png"}),
		}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 2)

	inline := out[0].Content[0].Source
	require.NotNil(t, inline)
	assert.Equal(t, "base64", inline.Type)
	assert.Equal(t, "image/png", inline.MediaType)
	assert.Equal(t, "Zm9v", inline.Data)

	byURL := out[0].Content[1].Source
	require.NotNil(t, byURL)
	assert.Equal(t, "url", byURL.Type)
	assert.Equal(t, "https://example.com/x.png", byURL.URL)
}

func TestResponseFromWire(t *testing.T) {
	resp := ResponseFromWire(&APIMessage{
		ID:         "msg_1",
		Model:      "claude-sonnet-4",
		StopReason: "tool_use",
		Content: []ContentBlock{
			{Type: "thinking", Thinking: "considering"},
			{Type: "text", Text: "On it."},
			{Type: "tool_use", ID: "tu_1", Name: "search", Input: map[string]any{"q": "go"}},
		},
		Usage: UsageInfo{InputTokens: 12, OutputTokens: 8},
	})

	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, "On it.", resp.Text())
	assert.Equal(t, "considering", resp.Reasoning)
	assert.Equal(t, 20, resp.Usage.TotalTokens)
	require.Len(t, resp.ToolUses(), 1)
	assert.Equal(t, "tu_1", resp.ToolUses()[0].ID)
}

func TestSendProviderMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet-4", body["model"])
		assert.Equal(t, "be concise", body["system"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 1, "system turn must not appear in the message list")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4",
			"content": [{"type":"text","text":"hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens":4,"output_tokens":2}
		}`))
	}))
	defer server.Close()

	p := New()
	require.NoError(t, p.InitializeProvider(context.Background(), llm.Config{
		APIKey:   "sk-ant-test",
		Model:    "claude-sonnet-4",
		Endpoint: server.URL,
	}))

	resp, err := p.SendProviderMessage(context.Background(), []llm.Message{
		llm.SystemMessage("be concise"),
		llm.UserMessage("hi"),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}
