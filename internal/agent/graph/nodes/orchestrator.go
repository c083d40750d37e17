package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/model"
	logx "github.com/receiptqa/server/pkg/logger"
)

// Orchestrator takes one decision turn over the run conversation.
type Orchestrator struct {
	model     einomodel.BaseChatModel // tools already bound
	modelName string
}

func NewOrchestrator(m einomodel.BaseChatModel, modelName string) *Orchestrator {
	return &Orchestrator{model: m, modelName: modelName}
}

// TakeTurn asks the model for the next step and appends its reply to the
// conversation. Once the recursion ceiling is reached it appends the fixed
// recursion message instead and makes no model call.
func (o *Orchestrator) TakeTurn(ctx context.Context, state *model.AppState) (*schema.Message, error) {
	if !state.Budget.TryTurn() {
		logx.Warn().
			Str("run_id", state.RunID).
			Int("max_recursion", state.Budget.MaxRecursion).
			Msg("Recursion limit reached")
		msg := schema.AssistantMessage(model.RecursionLimitReachedMessage, nil)
		state.Conversation.Append(msg)
		return msg, nil
	}

	logx.Debug().Str("run_id", state.RunID).Int("turn", state.Budget.Recursion()).Msg("AI thinking...")

	out, err := o.model.Generate(ctx, state.Conversation.Messages())
	if err != nil {
		logx.Error().Err(err).Str("run_id", state.RunID).Msg("Orchestrator model call failed")
		return nil, fmt.Errorf("orchestrator turn %d: %w", state.Budget.Recursion(), err)
	}
	if out == nil {
		return nil, fmt.Errorf("orchestrator turn %d: empty model response", state.Budget.Recursion())
	}
	if out.Role == "" {
		out.Role = schema.Assistant
	}

	usage := usageOf(out)
	totalC := state.Charge(o.modelName, usage)
	if usage != nil {
		logx.Debug().
			Str("run_id", state.RunID).
			Str("node", NodeOrchestrator).
			Str("model", o.modelName).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Int("total_tokens", usage.TotalTokens).
			Float64("total_cost_usd", totalC).
			Msg("LLM usage")
	}

	normalizeToolCallIDs(state, out)
	state.Conversation.Append(out)

	if len(out.ToolCalls) > 0 {
		logx.Debug().Str("run_id", state.RunID).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
	} else {
		logx.Debug().Str("run_id", state.RunID).Msg("AI response ready")
	}
	return out, nil
}
