package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/model"
	"github.com/receiptqa/server/internal/websearch"
	logx "github.com/receiptqa/server/pkg/logger"
)

// Searcher queries the web search collaborator.
type Searcher interface {
	Search(ctx context.Context, question string) (*model.WebSearchResponse, error)
}

// WebSearchTool exposes the web search collaborator as search_web.
type WebSearchTool struct {
	searcher Searcher
}

func NewWebSearchTool(searcher Searcher) *WebSearchTool {
	return &WebSearchTool{searcher: searcher}
}

func (t *WebSearchTool) Name() string  { return model.ToolSearchWeb }
func (t *WebSearchTool) Param() string { return "question" }

func (t *WebSearchTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: model.ToolSearchWeb,
		Desc: "Searches the web for public, external or up-to-date information that is not in the user's receipts " +
			"(prices elsewhere, product facts, store information). Returns a summary and its sources.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {
				Type:     schema.String,
				Desc:     "A self-contained question to search for.",
				Required: true,
			},
		}),
	}
}

func (t *WebSearchTool) Invoke(ctx context.Context, question string) (string, bool) {
	resp, err := t.searcher.Search(ctx, question)
	if err != nil {
		logx.Error().Err(err).Str("tool", t.Name()).Msg("Web search failed")
		return fmt.Sprintf("Web search error: %v", err), false
	}
	logx.Debug().Str("tool", t.Name()).Int("sources", len(resp.Sources)).Msg("Web search completed")
	return websearch.Render(resp), true
}

var _ Capability = (*WebSearchTool)(nil)
