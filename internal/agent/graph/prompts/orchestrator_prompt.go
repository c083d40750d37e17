package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/model"
)

//go:embed template/orchestrator_prompt.txt
var orchestratorSystemPrompt string

// RenderOrchestratorSystem renders the orchestrator system instruction and
// triggers prompt callbacks. The decision policy (internal data first, web
// search as fallback) lives in the template.
func RenderOrchestratorSystem(ctx context.Context, maxToolCalls int) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(orchestratorSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"InternalDataTool": model.ToolQueryInternalData,
		"WebSearchTool":    model.ToolSearchWeb,
		"MaxToolCalls":     maxToolCalls,
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("orchestrator prompt render: empty result")
	}
	return strings.TrimSpace(msgs[0].Content), nil
}
