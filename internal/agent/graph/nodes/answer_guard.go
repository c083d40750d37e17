package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/receiptqa/server/internal/agent/model"
	"github.com/receiptqa/server/internal/guardrail"
	logx "github.com/receiptqa/server/pkg/logger"
)

// AnswerGuard checks the final answer against the toxicity policy.
type AnswerGuard struct {
	validator guardrail.Validator // nil when guardrails are disabled
	mode      string
	recorder  guardrail.Recorder
}

func NewAnswerGuard(validator guardrail.Validator, mode string, recorder guardrail.Recorder) *AnswerGuard {
	if mode != model.AnswerModeBlock {
		mode = model.AnswerModeAnnotate
	}
	return &AnswerGuard{validator: validator, mode: mode, recorder: recorder}
}

// Check returns the answer to deliver and what the guard did. A rejected
// answer is annotated or replaced depending on the mode; a check that could
// not run is always annotated.
func (g *AnswerGuard) Check(ctx context.Context, answer string) (string, model.GuardrailOutcome) {
	if g.validator == nil {
		return answer, model.GuardrailSkipped
	}

	if !g.validator.IsKnown(guardrail.PolicyToxic) {
		logx.Warn().Str("policy", guardrail.PolicyToxic).Msg("Answer guard policy not found")
		g.record(guardrail.OutcomeUnknown)
		return answer + fmt.Sprintf("\n\n[Note: answer validation could not be completed: %v: %q]",
			guardrail.ErrUnknownPolicy, guardrail.PolicyToxic), model.GuardrailUnknown
	}

	err := g.validator.Validate(ctx, guardrail.PolicyToxic, answer)
	if err == nil {
		g.record(guardrail.OutcomePassed)
		return answer, model.GuardrailPassed
	}

	var vErr *guardrail.ValidationError
	if !errors.As(err, &vErr) {
		logx.Warn().Err(err).Msg("Answer validation could not be completed")
		g.record(guardrail.OutcomeError)
		return answer + fmt.Sprintf("\n\n[Note: answer validation could not be completed: %v]", err), model.GuardrailUnavailable
	}

	g.record(guardrail.OutcomeRejected)
	if g.mode == model.AnswerModeBlock {
		logx.Warn().Str("detail", vErr.Detail).Msg("Answer blocked by guardrail")
		return model.BlockedAnswerMessage, model.GuardrailBlocked
	}
	logx.Warn().Str("detail", vErr.Detail).Msg("Answer flagged by guardrail")
	return answer + fmt.Sprintf("\n\n[Warning: answer flagged by guardrail: %s]", vErr.Detail), model.GuardrailFlagged
}

func (g *AnswerGuard) record(outcome string) {
	if g.recorder != nil {
		g.recorder.GuardrailCheck(guardrail.PolicyToxic, outcome)
	}
}
