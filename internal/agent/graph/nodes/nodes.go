package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/graph/prompts"
	"github.com/receiptqa/server/internal/agent/model"
	logx "github.com/receiptqa/server/pkg/logger"
)

// NewInputConverterNode turns the question into the opening messages of the
// run: the orchestrator system instruction followed by the user question.
func NewInputConverterNode(maxToolCalls int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		// Rendered through the eino prompt component so prompt callbacks fire
		systemPrompt, err := prompts.RenderOrchestratorSystem(ctx, maxToolCalls)
		if err != nil {
			return nil, fmt.Errorf("render orchestrator system prompt: %w", err)
		}
		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(input.Question),
		}, nil
	})
}

// NewOrchestratorPreHandler records incoming messages in the conversation.
// The first call creates the conversation from the opening messages; later
// calls carry tool results.
func NewOrchestratorPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		if state.Conversation == nil {
			if len(in) == 0 || in[0].Role != schema.System {
				return nil, fmt.Errorf("conversation must start with the system instruction")
			}
			state.Conversation = model.NewConversation(in[0].Content)
			state.Conversation.Append(in[1:]...)
			return in, nil
		}

		for _, msg := range in {
			// Tool results must reference a call id
			if msg != nil && msg.Role == schema.Tool && msg.ToolCallID == "" {
				msg.ToolCallID = state.Conversation.LastAssistantToolCall()
			}
		}
		state.Conversation.Append(in...)
		return in, nil
	}
}

// NewOrchestratorNode runs one orchestrator turn over the state conversation.
func NewOrchestratorNode(o *Orchestrator) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		var out *schema.Message
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			var err error
			out, err = o.TakeTurn(ctx, state)
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// NewToolExecutorCondition routes tool calls to the tool executor and final
// answers to the answer guard.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if input != nil && len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		logx.Debug().Msg("No tool calls - routing to AnswerGuard")
		return NodeAnswerGuard, nil
	}
}

// NewToolExecutorPreHandler logs the tool calls about to run.
func NewToolExecutorPreHandler() func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		for _, tc := range in.ToolCalls {
			logx.Debug().
				Str("run_id", state.RunID).
				Str("tool", tc.Function.Name).
				Str("tool_call_id", tc.ID).
				Int("tool_call_count", state.Budget.ToolCalls()).
				Msg("Tool execution requested")
		}
		return in, nil
	}
}

// NewAnswerGuardNode validates the final answer and records the outcome.
func NewAnswerGuardNode(g *AnswerGuard) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		answer, outcome := g.Check(ctx, in.Content)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Guardrail = outcome
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		out := schema.AssistantMessage(answer, nil)
		out.ResponseMeta = in.ResponseMeta
		return out, nil
	})
}
