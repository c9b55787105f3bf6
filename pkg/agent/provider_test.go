package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderFactory(t *testing.T) {
	factory := &ProviderFactory{}

	tests := []struct {
		name     string
		profile  ProviderProfile
		wantName string
		wantErr  bool
	}{
		{name: "openai", profile: ProviderProfile{Provider: ProviderOpenAI, APIKey: "sk-test"}, wantName: ProviderOpenAI},
		{name: "azure", profile: ProviderProfile{Provider: ProviderAzureOpenAI, APIKey: "k", Endpoint: "https://res.openai.azure.com"}, wantName: ProviderAzureOpenAI},
		{name: "anthropic", profile: ProviderProfile{Provider: ProviderAnthropic, APIKey: "sk-ant"}, wantName: ProviderAnthropic},
		{name: "azure without endpoint", profile: ProviderProfile{Provider: ProviderAzureOpenAI, APIKey: "k"}, wantErr: true},
		{name: "missing key", profile: ProviderProfile{Provider: ProviderOpenAI}, wantErr: true},
		{name: "unknown", profile: ProviderProfile{Provider: "gemini", APIKey: "k"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := factory.NewProvider(tt.profile)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, provider.Provider())
		})
	}
}

func TestToOpenAIMessages(t *testing.T) {
	messages, err := toOpenAIMessages([]AgentMessage{
		{Role: RoleSystem, Content: "instructions"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "create_work_item", Parameters: map[string]interface{}{"title": "x"}}}},
		{Role: RoleTool, ToolCallID: "c1", Content: "done"},
		{Role: RoleSystem, Content: "late system note"},
		{Role: RoleAssistant, Content: "ok"},
	})
	require.NoError(t, err)
	require.Len(t, messages, 6)

	data, err := json.Marshal(messages)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	roles := []string{}
	for _, m := range decoded {
		roles = append(roles, m["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "system", "assistant"}, roles)
	assert.Equal(t, "c1", decoded[3]["tool_call_id"])

	_, err = toOpenAIMessages([]AgentMessage{{Role: "narrator", Content: "x"}})
	assert.Error(t, err)
}

func TestToAnthropicMessages(t *testing.T) {
	system, messages := toAnthropicMessages([]AgentMessage{
		{Role: RoleSystem, Content: "first"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "a", Name: "t", Parameters: map[string]interface{}{}},
			{ID: "b", Name: "t", Parameters: map[string]interface{}{}},
		}},
		{Role: RoleTool, ToolCallID: "a", Content: "r1"},
		{Role: RoleTool, ToolCallID: "b", Content: "r2"},
		{Role: RoleSystem, Content: "second"},
	})

	require.Len(t, system, 2)
	assert.Equal(t, "first", system[0].Text)
	assert.Equal(t, "second", system[1].Text)

	require.Len(t, messages, 3)
	assert.Len(t, messages[2].Content, 2)
	assert.True(t, isToolResultMessage(messages[2]))
	assert.False(t, isToolResultMessage(messages[0]))
}

func TestOpenAIProvider_Call(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "create_work_item", "arguments": "{\"title\":\"CSV export\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("sk-test", openaioption.WithBaseURL(server.URL), openaioption.WithMaxRetries(0))

	resp, err := provider.Call(context.Background(), LLMRequest{
		Model:    "gpt-4",
		Messages: []AgentMessage{{Role: RoleSystem, Content: "instructions"}, {Role: RoleUser, Content: "make a story"}},
		Tools: []ToolSpec{{
			Name:        "create_work_item",
			Description: "Create",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "CSV export", resp.ToolCalls[0].Parameters["title"])
	assert.Equal(t, 12, resp.Usage.InputTokens)

	assert.Equal(t, "gpt-4", body["model"])
	assert.Len(t, body["messages"], 2)
	assert.Len(t, body["tools"], 1)
}

func TestAnthropicProvider_Call(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-latest",
			"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 2}
		}`)
	}))
	defer server.Close()

	provider := NewAnthropicProvider("sk-ant", anthropicoption.WithBaseURL(server.URL), anthropicoption.WithMaxRetries(0))

	resp, err := provider.Call(context.Background(), LLMRequest{
		Model: "claude-3-5-sonnet-latest",
		Messages: []AgentMessage{
			{Role: RoleSystem, Content: "instructions"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, 2, resp.Usage.OutputTokens)

	assert.Equal(t, float64(defaultAnthropicMaxTokens), body["max_tokens"])
	assert.Len(t, body["messages"], 1)
	require.Len(t, body["system"], 1)
}
