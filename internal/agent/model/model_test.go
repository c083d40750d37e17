package model

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKeepsSingleSystemHeader(t *testing.T) {
	conv := NewConversation("be helpful")
	conv.Append(schema.UserMessage("q1"))
	conv.Append(schema.SystemMessage("be helpful"), schema.AssistantMessage("a1", nil))
	conv.Append(nil, schema.SystemMessage("other"))

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "be helpful", msgs[0].Content)

	systems := 0
	for _, m := range msgs {
		if m.Role == schema.System {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
	assert.Equal(t, "a1", conv.Last().Content)
}

func TestConversationMessagesIsCopy(t *testing.T) {
	conv := NewConversation("sys")
	msgs := conv.Messages()
	msgs[0] = schema.UserMessage("tampered")
	assert.Equal(t, schema.System, conv.Messages()[0].Role)
}

func TestConversationLastAssistantToolCall(t *testing.T) {
	conv := NewConversation("sys")
	assert.Empty(t, conv.LastAssistantToolCall())
	conv.Append(schema.AssistantMessage("", []schema.ToolCall{{ID: "call_1"}, {ID: "call_2"}}))
	conv.Append(schema.ToolMessage("rows", "call_2"))
	assert.Equal(t, "call_2", conv.LastAssistantToolCall())
}

func TestRunBudgetCeilings(t *testing.T) {
	b := NewRunBudget(2, 1)
	assert.True(t, b.TryTurn())
	assert.True(t, b.TryTurn())
	assert.False(t, b.TryTurn())
	assert.Equal(t, 2, b.Recursion())
	assert.True(t, b.RecursionExhausted())

	assert.True(t, b.TryToolCall())
	assert.False(t, b.TryToolCall())
	assert.Equal(t, 1, b.ToolCalls())
}

func TestRunBudgetDefaults(t *testing.T) {
	b := NewRunBudget(0, -1)
	assert.Equal(t, DefaultMaxRecursion, b.MaxRecursion)
	assert.Equal(t, DefaultMaxToolCalls, b.MaxToolCalls)
}

func TestRunBudgetZeroToolCallsDisablesTools(t *testing.T) {
	b := AgentConfig{MaxRecursion: 10, MaxToolCalls: 0}.NewBudget()
	assert.Equal(t, 0, b.MaxToolCalls)
	assert.True(t, b.ToolCallsExhausted())
	assert.False(t, b.TryToolCall())
	assert.Zero(t, b.ToolCalls())
}

func TestTokenLedger(t *testing.T) {
	var l TokenLedger
	l.Add(&schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	l.Add(&schema.TokenUsage{PromptTokens: 3, CompletionTokens: 2})
	l.Add(nil)

	assert.Equal(t, 20, l.Total())
	assert.Equal(t, 13, l.PromptTokens)
	assert.Equal(t, 7, l.CompletionTokens)
	assert.Equal(t, 3, l.Calls)
}

func TestStateContext(t *testing.T) {
	assert.Nil(t, StateFrom(context.Background()))
	s := NewAppState("run-1", "q", NewRunBudget(1, 1))
	ctx := WithState(context.Background(), s)
	assert.Same(t, s, StateFrom(ctx))
}

func TestComputeCost(t *testing.T) {
	in, out, total := ComputeCost(&schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}, ResolvePricing("gpt-4o"))
	assert.InDelta(t, 2.5, in, 1e-9)
	assert.InDelta(t, 10.0, out, 1e-9)
	assert.InDelta(t, 12.5, total, 1e-9)

	_, _, total = ComputeCost(&schema.TokenUsage{PromptTokens: 100}, ResolvePricing("unknown"))
	assert.Zero(t, total)
}
