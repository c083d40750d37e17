package model

import "github.com/cloudwego/eino/schema"

const (
	DefaultMaxRecursion = 10
	DefaultMaxToolCalls = 3
)

// RunBudget bounds one question-answering run. Both counters start at zero
// and only grow; once a ceiling is reached the matching Try method keeps
// returning false.
type RunBudget struct {
	MaxRecursion int
	MaxToolCalls int

	recursion int
	toolCalls int
}

// NewRunBudget returns a budget with the given ceilings. A non-positive
// recursion ceiling or a negative tool-call ceiling falls back to the default;
// zero tool calls disables tools.
func NewRunBudget(maxRecursion, maxToolCalls int) *RunBudget {
	if maxRecursion <= 0 {
		maxRecursion = DefaultMaxRecursion
	}
	if maxToolCalls < 0 {
		maxToolCalls = DefaultMaxToolCalls
	}
	return &RunBudget{MaxRecursion: maxRecursion, MaxToolCalls: maxToolCalls}
}

// TryTurn reserves one orchestrator turn.
func (b *RunBudget) TryTurn() bool {
	if b.RecursionExhausted() {
		return false
	}
	b.recursion++
	return true
}

// TryToolCall reserves one tool invocation.
func (b *RunBudget) TryToolCall() bool {
	if b.ToolCallsExhausted() {
		return false
	}
	b.toolCalls++
	return true
}

func (b *RunBudget) RecursionExhausted() bool {
	return b.recursion >= b.MaxRecursion
}

func (b *RunBudget) ToolCallsExhausted() bool {
	return b.toolCalls >= b.MaxToolCalls
}

func (b *RunBudget) Recursion() int { return b.recursion }

func (b *RunBudget) ToolCalls() int { return b.toolCalls }

// TokenLedger accumulates the usage reported by every model call of a run.
type TokenLedger struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Calls            int
}

// Add records one model call. Calls without reported usage still count as calls.
func (l *TokenLedger) Add(usage *schema.TokenUsage) {
	l.Calls++
	if usage == nil {
		return
	}
	l.PromptTokens += usage.PromptTokens
	l.CompletionTokens += usage.CompletionTokens
	total := usage.TotalTokens
	if total == 0 {
		total = usage.PromptTokens + usage.CompletionTokens
	}
	l.TotalTokens += total
}

func (l *TokenLedger) Total() int {
	return l.TotalTokens
}
