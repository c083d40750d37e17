package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIChatModelGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "llama-3.3-70b-versatile",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "query_internal_data", "arguments": "{\"query\":\"total spent\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 10, "total_tokens": 50}
		}`))
	}))
	defer srv.Close()

	m, err := NewOpenAIChatModel(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "llama-3.3-70b-versatile", MaxTokens: 200})
	require.NoError(t, err)
	require.NoError(t, m.BindTools([]*schema.ToolInfo{{
		Name: "query_internal_data",
		Desc: "Retrieves data",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Required: true},
		}),
	}}))

	out, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("How much did I spend?"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Name: "search_web", Arguments: `{"question":"x"}`}}}),
		schema.ToolMessage("Summary: none", "call_1"),
	})
	require.NoError(t, err)

	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_abc", out.ToolCalls[0].ID)
	assert.Equal(t, "query_internal_data", out.ToolCalls[0].Function.Name)
	assert.Equal(t, 50, out.ResponseMeta.Usage.TotalTokens)
	assert.Equal(t, "tool_calls", out.ResponseMeta.FinishReason)

	assert.Equal(t, "llama-3.3-70b-versatile", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "tool", msgs[3].(map[string]any)["role"])
	assert.Equal(t, "call_1", msgs[3].(map[string]any)["tool_call_id"])
	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "query_internal_data", tools[0].(map[string]any)["function"].(map[string]any)["name"])
}

func TestOpenAIChatModelUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	m, err := NewOpenAIChatModel(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorContains(t, err, "rate limited")
}

func TestNewOpenAIChatModelValidatesConfig(t *testing.T) {
	_, err := NewOpenAIChatModel(OpenAIConfig{Model: "gpt-4o"})
	assert.Error(t, err)
	_, err = NewOpenAIChatModel(OpenAIConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestWithToolsLeavesOriginalUnbound(t *testing.T) {
	m, err := NewOpenAIChatModel(OpenAIConfig{APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)

	bound, err := m.WithTools([]*schema.ToolInfo{{Name: "search_web", Desc: "d"}})
	require.NoError(t, err)
	assert.Len(t, bound.(*OpenAIChatModel).tools, 1)
	assert.Empty(t, m.tools)
}
