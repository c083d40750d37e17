package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/model"
	"github.com/receiptqa/server/internal/agent/sqlagent"
	logx "github.com/receiptqa/server/pkg/logger"
)

// DataQuerier answers a natural-language data request against the store.
type DataQuerier interface {
	Query(ctx context.Context, request string) (*sqlagent.Result, error)
}

// InternalDataTool exposes the SQL agent as query_internal_data.
type InternalDataTool struct {
	querier   DataQuerier
	modelName string
}

// NewInternalDataTool wraps querier; modelName prices the SQL generation
// call in the run ledger.
func NewInternalDataTool(querier DataQuerier, modelName string) *InternalDataTool {
	return &InternalDataTool{querier: querier, modelName: modelName}
}

func (t *InternalDataTool) Name() string  { return model.ToolQueryInternalData }
func (t *InternalDataTool) Param() string { return "query" }

func (t *InternalDataTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: model.ToolQueryInternalData,
		Desc: "Retrieves data about the user's receipts, tickets, purchases and expenses from the internal database, " +
			"based on a requirement in natural language. Use it for any question about the user's own spending.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The data requirement in natural language, e.g. 'total spent on groceries last month'.",
				Required: true,
			},
		}),
	}
}

func (t *InternalDataTool) Invoke(ctx context.Context, request string) (string, bool) {
	res, err := t.querier.Query(ctx, request)
	if res != nil {
		model.Charge(ctx, t.modelName, res.Usage)
	}
	if err != nil {
		var rejected *sqlagent.RejectedError
		if errors.As(err, &rejected) {
			logx.Warn().Err(err).Str("tool", t.Name()).Msg("Generated query rejected")
			return fmt.Sprintf("Query rejected by guardrail: %v", rejected.Err), false
		}
		logx.Error().Err(err).Str("tool", t.Name()).Msg("SQL agent failed")
		return fmt.Sprintf("SQL agent error: %v", err), false
	}

	b, err := json.Marshal(res.Rows)
	if err != nil {
		return fmt.Sprintf("SQL agent error: encode rows: %v", err), false
	}
	logx.Debug().Str("tool", t.Name()).Str("sql", res.Query).Int("rows", len(res.Rows)).Msg("Internal data retrieved")
	return string(b), true
}

var _ Capability = (*InternalDataTool)(nil)
