package sqlagent

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/graph/prompts"
	logx "github.com/receiptqa/server/pkg/logger"
)

// Generator turns a natural-language data request into a SQL query. The
// schema description is computed once at construction and shared read-only.
type Generator struct {
	model     einomodel.BaseChatModel
	modelName string
	schema    string
}

// NewGenerator describes the schema once. A store failure here is fatal.
func NewGenerator(ctx context.Context, m einomodel.BaseChatModel, modelName string, introspector *Introspector) (*Generator, error) {
	description, err := introspector.DescribeSchema(ctx)
	if err != nil {
		return nil, err
	}
	logx.Debug().Int("schema_bytes", len(description)).Msg("Processed schema")
	return NewGeneratorWithSchema(m, modelName, description), nil
}

func NewGeneratorWithSchema(m einomodel.BaseChatModel, modelName, schemaDescription string) *Generator {
	return &Generator{model: m, modelName: modelName, schema: schemaDescription}
}

// Schema returns the cached schema description.
func (g *Generator) Schema() string {
	return g.schema
}

// Generate issues one model call and returns the normalized query together
// with the usage reported by the model (nil when not reported). Empty or
// nonsensical output is returned as-is and fails at execution time.
func (g *Generator) Generate(ctx context.Context, request string) (string, *schema.TokenUsage, error) {
	msgs, err := prompts.RenderSQLMessages(ctx, g.schema, request)
	if err != nil {
		return "", nil, err
	}
	out, err := g.model.Generate(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Str("model", g.modelName).Msg("SQL generation failed")
		return "", nil, fmt.Errorf("generate sql: %w", err)
	}
	var usage *schema.TokenUsage
	if out.ResponseMeta != nil {
		usage = out.ResponseMeta.Usage
	}
	return StripCodeFence(out.Content), usage, nil
}

var fenceOpeners = []string{"```sql", "```SQL", "```postgresql", "```"}

// StripCodeFence removes a leading code-fence opener and a trailing fence
// closer when the model ignored the formatting rules. It only looks at the
// string boundaries.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	for _, opener := range fenceOpeners {
		if strings.HasPrefix(s, opener) {
			s = strings.TrimPrefix(s, opener)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
