package model

import (
	"context"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - A fresh AppState is created for every Runner.Run call and attached to
//     the context with WithState; compose.WithGenLocalState hands the same
//     pointer to the graph, so nothing is shared between runs.
//   - Conversation is mutated only inside Eino state handlers.
//   - Budget and Ledger are also touched by tools and the answer guard (via
//     StateFrom). Tools run sequentially between orchestrator turns, so no
//     mutex is needed.
type AppState struct {
	RunID        string
	Question     string
	Conversation *Conversation
	Budget       *RunBudget
	Ledger       *TokenLedger

	ToolCallIDSeq int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this run
	TotalCostUSD float64

	// Outcome of the final answer guard
	Guardrail GuardrailOutcome
}

func NewAppState(runID, question string, budget *RunBudget) *AppState {
	return &AppState{
		RunID:    runID,
		Question: question,
		Budget:   budget,
		Ledger:   &TokenLedger{},
	}
}

type stateKey struct{}

// WithState attaches the run state to ctx.
func WithState(ctx context.Context, s *AppState) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// StateFrom returns the run state attached to ctx, or nil.
func StateFrom(ctx context.Context) *AppState {
	s, _ := ctx.Value(stateKey{}).(*AppState)
	return s
}

// GuardrailOutcome records what the final answer guard did.
type GuardrailOutcome string

const (
	GuardrailSkipped     GuardrailOutcome = "skipped"
	GuardrailPassed      GuardrailOutcome = "passed"
	GuardrailFlagged     GuardrailOutcome = "flagged"
	GuardrailBlocked     GuardrailOutcome = "blocked"
	GuardrailUnavailable GuardrailOutcome = "unavailable"
	GuardrailUnknown     GuardrailOutcome = "unknown_policy"
)

// QueryInput represents the input for one question.
type QueryInput struct {
	RunID    string `json:"run_id,omitempty"`
	Question string `json:"question"`
}

// RunResult is returned to the caller of a run.
type RunResult struct {
	RunID            string           `json:"run_id"`
	Answer           string           `json:"answer"`
	TotalTokens      int              `json:"total_tokens"`
	PromptTokens     int              `json:"prompt_tokens"`
	CompletionTokens int              `json:"completion_tokens"`
	ModelCalls       int              `json:"model_calls"`
	Turns            int              `json:"turns"`
	ToolCalls        int              `json:"tool_calls"`
	CostUSD          float64          `json:"cost_usd"`
	Guardrail        GuardrailOutcome `json:"guardrail"`
}
