package azure

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

func TestInitializeProviderValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  llm.Config
	}{
		{"missing endpoint", llm.Config{APIKey: "k", Deployment: "d"}},
		{"missing deployment", llm.Config{APIKey: "k", Endpoint: "https://x.openai.azure.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var initErr *llm.InitializationError
			err := New().InitializeProvider(context.Background(), tt.cfg)
			require.ErrorAs(t, err, &initErr)
		})
	}
}

func TestSendProviderMessage(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt4-prod/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-az",
			"model": "gpt-4",
			"choices": [{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}],
			"usage": {"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}
		}`))
	}))
	defer server.Close()

	p := New()
	require.NoError(t, p.InitializeProvider(context.Background(), llm.Config{
		APIKey:     "secret",
		Endpoint:   server.URL,
		Deployment: "gpt4-prod",
	}))

	// Out-of-order tool result: the adapter must reorder it to follow the
	// call before sending.
	messages := []llm.Message{
		llm.UserMessage("run it"),
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.ToolUseBlock("call_1", "runner", nil)}},
		llm.UserMessage("any progress?"),
		llm.ToolResultMessage("call_1", "finished"),
	}

	resp, err := p.SendProviderMessage(context.Background(), messages, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())

	// Model falls back to the deployment name.
	assert.Equal(t, "gpt4-prod", gotBody["model"])

	wireMessages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, wireMessages, 4)
	third := wireMessages[2].(map[string]any)
	assert.Equal(t, "tool", third["role"])
	assert.Equal(t, "call_1", third["tool_call_id"])
	fourth := wireMessages[3].(map[string]any)
	assert.Equal(t, "user", fourth["role"])
}
