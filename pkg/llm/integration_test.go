package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	api "github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/queue"
	"github.com/loomworks/loom/internal/recovery"
	"github.com/loomworks/loom/pkg/llm"
	"github.com/loomworks/loom/pkg/llm/anthropic"
	"github.com/loomworks/loom/pkg/llm/factory"
	"github.com/loomworks/loom/pkg/llm/openai"
)

// agentScenario is a full structuring input: framework layers to filter,
// a genuine dialogue with a tool round-trip, a current task.
func agentScenario() *llm.AgentContext {
	return &llm.AgentContext{
		SystemPrompt: "You are the research agent.",
		AgentConfig: llm.AgentConfig{
			ID:      "researcher-1",
			Purpose: "gather and summarize sources",
		},
		ConversationHistory: []llm.ConversationMessage{
			{Role: llm.RoleSystem, Content: "boot prompt", Metadata: llm.MessageMetadata{ContextLayer: llm.LayerSystem}},
			{Role: llm.RoleUser, Content: "stale directive", Metadata: llm.MessageMetadata{ContextLayer: llm.LayerTask}},
			{Role: llm.RoleUser, Content: "find recent Go releases", Metadata: llm.MessageMetadata{ContextLayer: llm.LayerConversation}},
			{
				Role:    llm.RoleAssistant,
				Content: "Searching now.",
				Metadata: llm.MessageMetadata{
					ContextLayer: llm.LayerConversation,
					ToolCalls:    []llm.ToolCallRef{{ID: "call_1", Name: "web_search", Input: map[string]any{"q": "golang release"}}},
				},
			},
			{Role: llm.RoleTool, Content: "Go 1.25 released", Metadata: llm.MessageMetadata{ContextLayer: llm.LayerToolResult, ToolCallID: "call_1"}},
		},
		CurrentTask: &llm.Task{Description: "summarize the findings"},
		AvailableTools: []llm.Tool{{
			Name:        "web_search",
			Description: "search the web",
			InputSchema: llm.Schema{Type: "object", Properties: map[string]any{"q": map[string]any{"type": "string"}}, Required: []string{"q"}},
		}},
	}
}

func newScenarioClient(t *testing.T, name, endpoint string) *llm.Client {
	t.Helper()
	client, err := factory.NewClient(name,
		llm.WithQueueRegistry(queue.NewRegistry(queue.WithDelay(0))),
		llm.WithRecoveryManager(recovery.NewManager()))
	require.NoError(t, err)
	require.NoError(t, client.Initialize(context.Background(), llm.Config{
		Provider: name,
		APIKey:   "test-key",
		Model:    "test-model",
		Endpoint: endpoint,
	}))
	return client
}

func TestScenarioThroughOpenAI(t *testing.T) {
	var body openai.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "test-model",
			"choices": [{"index":0,"message":{"role":"assistant","content":"Go 1.25 is out."},"finish_reason":"stop"}],
			"usage": {"prompt_tokens":20,"completion_tokens":6,"total_tokens":26}
		}`))
	}))
	defer server.Close()

	client := newScenarioClient(t, "openai", server.URL)
	resp, err := client.SendWithContext(context.Background(), agentScenario(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Go 1.25 is out.", resp.Text())

	// system, user, assistant w/ tool call, tool result, task.
	require.Len(t, body.Messages, 5)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Contains(t, body.Messages[0].Content, "## Identity")
	assert.NotContains(t, body.Messages[0].Content, "boot prompt")
	assert.NotContains(t, body.Messages[0].Content, "stale directive")

	require.Len(t, body.Messages[2].ToolCalls, 1)
	assert.Equal(t, "call_1", body.Messages[2].ToolCalls[0].ID)

	assert.Equal(t, "tool", body.Messages[3].Role)
	assert.Equal(t, "call_1", body.Messages[3].ToolCallID)

	assert.Equal(t, "Current task: summarize the findings", body.Messages[4].Content)

	require.Len(t, body.Tools, 1)
	assert.Equal(t, "web_search", body.Tools[0].Function.Name)
}

func TestScenarioThroughAnthropic(t *testing.T) {
	var body anthropic.CreateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "test-model",
			"content": [{"type":"text","text":"Go 1.25 is out."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens":20,"output_tokens":6}
		}`))
	}))
	defer server.Close()

	client := newScenarioClient(t, "anthropic", server.URL)
	resp, err := client.SendWithContext(context.Background(), agentScenario(), nil)
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.StopReason)

	assert.Contains(t, body.System, "You are the research agent.")
	assert.Contains(t, body.System, "## Identity")

	// user, assistant w/ tool_use, user w/ tool_result, task.
	require.Len(t, body.Messages, 4)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	require.Len(t, body.Messages[1].Content, 2)
	assert.Equal(t, "tool_use", body.Messages[1].Content[1].Type)

	result := body.Messages[2]
	assert.Equal(t, "user", result.Role)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "tool_result", result.Content[0].Type)
	assert.Equal(t, "call_1", result.Content[0].ToolUseID)

	assert.Equal(t, "Current task: summarize the findings", body.Messages[3].Content[0].Text)
}

func TestScenarioThroughOpenRouter(t *testing.T) {
	var body openai.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"model": "test-model",
			"choices": [{"index":0,"message":{"role":"assistant","content":"Go 1.25 is out."},"finish_reason":"stop"}],
			"usage": {"prompt_tokens":20,"completion_tokens":6,"total_tokens":26}
		}`))
	}))
	defer server.Close()

	client := newScenarioClient(t, "openrouter", server.URL)
	resp, err := client.SendWithContext(context.Background(), agentScenario(), nil)
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.StopReason)

	// Same chat-completions shape as OpenAI: system, user, assistant w/
	// tool call, tool result, task.
	require.Len(t, body.Messages, 5)
	require.Len(t, body.Messages[2].ToolCalls, 1)
	assert.Equal(t, "call_1", body.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, "tool", body.Messages[3].Role)
	assert.Equal(t, "Current task: summarize the findings", body.Messages[4].Content)
}

func TestScenarioThroughXAI(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{
			"id": "resp_x",
			"model": "test-model",
			"choices": [{"message":{"role":"assistant","content":"Go 1.25 is out."},"finish_reason":"stop"}],
			"usage": {"prompt_tokens":20,"completion_tokens":6,"total_tokens":26}
		}`))
	}))
	defer server.Close()

	client := newScenarioClient(t, "xai", server.URL)
	resp, err := client.SendWithContext(context.Background(), agentScenario(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Go 1.25 is out.", resp.Text())

	messages := body["messages"].([]any)
	require.Len(t, messages, 5)

	assistant := messages[2].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "web_search", fn["name"])
	// The dialect's arguments key.
	assert.Contains(t, fn, "args")
	assert.NotContains(t, fn, "arguments")

	result := messages[3].(map[string]any)
	assert.Equal(t, "tool", result["role"])
	assert.Equal(t, "call_1", result["tool_call_id"])

	task := messages[4].(map[string]any)
	assert.Equal(t, "Current task: summarize the findings", task["content"])
}

func TestScenarioThroughOllama(t *testing.T) {
	var body api.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"model":"test-model","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"Go 1.25 is out."},"done":true,"done_reason":"stop","prompt_eval_count":20,"eval_count":6}`))
	}))
	defer server.Close()

	client := newScenarioClient(t, "ollama", server.URL)
	resp, err := client.SendWithContext(context.Background(), agentScenario(), nil)
	require.NoError(t, err)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 26, resp.Usage.TotalTokens)

	// No tool_call_id on this wire: the result turn pairs with the call by
	// position, directly after the assistant turn that made it.
	require.Len(t, body.Messages, 5)
	assert.Equal(t, "system", body.Messages[0].Role)
	require.Len(t, body.Messages[2].ToolCalls, 1)
	assert.Equal(t, "web_search", body.Messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", body.Messages[3].Role)
	assert.Equal(t, "Go 1.25 released", body.Messages[3].Content)
	assert.Equal(t, "user", body.Messages[4].Role)
	assert.Equal(t, "Current task: summarize the findings", body.Messages[4].Content)

	require.Len(t, body.Tools, 1)
	assert.Equal(t, "web_search", body.Tools[0].Function.Name)
}
