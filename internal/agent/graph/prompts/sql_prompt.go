package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/sql_system_prompt.txt
var sqlSystemPrompt string

//go:embed template/sql_user_prompt.txt
var sqlUserPrompt string

// RenderSQLMessages renders the query generation system and user messages.
// The schema description is embedded in the system message; the request is
// fenced as untrusted context in the user message.
func RenderSQLMessages(ctx context.Context, schemaDescription, request string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(sqlSystemPrompt),
		schema.UserMessage(sqlUserPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Schema":  schemaDescription,
		"Request": request,
	})
	if err != nil {
		return nil, fmt.Errorf("sql prompt render: %w", err)
	}
	if len(msgs) != 2 || msgs[0] == nil || msgs[1] == nil {
		return nil, fmt.Errorf("sql prompt render: unexpected result size %d", len(msgs))
	}
	return msgs, nil
}
