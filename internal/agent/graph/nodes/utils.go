package nodes

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/model"
)

// Graph node keys.
const (
	NodeInputConverter = "input_converter"
	NodeOrchestrator   = "orchestrator"
	NodeToolExecutor   = "tool_executor"
	NodeAnswerGuard    = "answer_guard"
)

// normalizeToolCallIDs fills tool call IDs some providers omit, so that tool
// results can be matched to their call.
func normalizeToolCallIDs(state *model.AppState, msg *schema.Message) {
	for i := range msg.ToolCalls {
		if strings.TrimSpace(msg.ToolCalls[i].ID) == "" {
			state.ToolCallIDSeq++
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
		}
		if msg.ToolCalls[i].Type == "" {
			msg.ToolCalls[i].Type = "function"
		}
	}
}

// usageOf returns the token usage carried by a model response, if any.
func usageOf(msg *schema.Message) *schema.TokenUsage {
	if msg == nil || msg.ResponseMeta == nil {
		return nil
	}
	return msg.ResponseMeta.Usage
}
