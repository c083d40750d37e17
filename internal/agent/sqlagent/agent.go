package sqlagent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/guardrail"
	"github.com/receiptqa/server/internal/store"
	logx "github.com/receiptqa/server/pkg/logger"
)

// Executor runs a query against the store.
type Executor interface {
	ExecuteQuery(ctx context.Context, sql string) ([]store.Row, error)
}

// RejectedError wraps a guardrail rejection of a generated query.
type RejectedError struct {
	Query string
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("query rejected by guardrail: %v", e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Result of one internal data request.
type Result struct {
	Query string
	Rows  []store.Row
	Usage *schema.TokenUsage
}

// Agent chains generation, the optional sql guardrail and execution.
type Agent struct {
	generator *Generator
	executor  Executor
	validator guardrail.Validator // nil when guardrails are disabled
}

func NewAgent(generator *Generator, executor Executor, validator guardrail.Validator) *Agent {
	return &Agent{generator: generator, executor: executor, validator: validator}
}

// Query answers a natural-language data request. The returned Result carries
// the usage of the generation call even when a later step fails. A guardrail
// rejection is not retried with a new prompt.
func (a *Agent) Query(ctx context.Context, request string) (*Result, error) {
	query, usage, err := a.generator.Generate(ctx, request)
	res := &Result{Query: query, Usage: usage}
	if err != nil {
		return res, err
	}
	logx.Debug().Str("sql", query).Msg("Generated SQL query")

	if a.validator != nil {
		if !a.validator.IsKnown(guardrail.PolicySQL) {
			return res, fmt.Errorf("%w: %q", guardrail.ErrUnknownPolicy, guardrail.PolicySQL)
		}
		if err := a.validator.Validate(ctx, guardrail.PolicySQL, query); err != nil {
			logx.Warn().Err(err).Str("sql", query).Msg("Generated query failed guardrail validation")
			if guardrail.IsRejection(err) {
				return res, &RejectedError{Query: query, Err: err}
			}
			return res, fmt.Errorf("query validation could not complete: %w", err)
		}
	}

	rows, err := a.executor.ExecuteQuery(ctx, query)
	if err != nil {
		return res, fmt.Errorf("execute query: %w", err)
	}
	res.Rows = rows
	return res, nil
}
