package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates all observer handlers (prompt, tool, model) into
// one callbacks.Handler. runID is attached to every log line.
func NewAllCallbacks(runID string) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler(runID)).
		ChatModel(newModelHandler(runID)).
		Prompt(newPromptHandler(runID)).
		Handler()
}
