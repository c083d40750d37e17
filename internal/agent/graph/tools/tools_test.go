package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptqa/server/internal/agent/llm/llmtest"
	"github.com/receiptqa/server/internal/agent/model"
	"github.com/receiptqa/server/internal/agent/sqlagent"
	"github.com/receiptqa/server/internal/guardrail"
	"github.com/receiptqa/server/internal/store"
	"github.com/receiptqa/server/internal/websearch"
)

type fakeExecutor struct {
	rows    []store.Row
	err     error
	queries []string
}

func (e *fakeExecutor) ExecuteQuery(_ context.Context, sql string) ([]store.Row, error) {
	e.queries = append(e.queries, sql)
	return e.rows, e.err
}

type fakeRecorder struct {
	events []string
}

func (r *fakeRecorder) ToolCall(tool, outcome string) {
	r.events = append(r.events, tool+":"+outcome)
}

type fakeSearcher struct {
	resp *model.WebSearchResponse
	err  error
}

func (s *fakeSearcher) Search(context.Context, string) (*model.WebSearchResponse, error) {
	return s.resp, s.err
}

func runContext(maxToolCalls int) (context.Context, *model.AppState) {
	state := model.NewAppState("run-1", "q", model.NewRunBudget(10, maxToolCalls))
	return model.WithState(context.Background(), state), state
}

func newDataTool(sql string, tokens int, exec *fakeExecutor, validator guardrail.Validator) *InternalDataTool {
	m := llmtest.NewScriptedModel(llmtest.Reply(sql, tokens))
	agent := sqlagent.NewAgent(sqlagent.NewGeneratorWithSchema(m, "gemini-2.5-flash-lite", "schema"), exec, validator)
	return NewInternalDataTool(agent, "gemini-2.5-flash-lite")
}

func TestRegistryDescriptors(t *testing.T) {
	r := NewRegistry(nil, NewInternalDataTool(nil, ""), NewWebSearchTool(nil))

	infos := r.Descriptors()
	require.Len(t, infos, 2)
	assert.Equal(t, model.ToolQueryInternalData, infos[0].Name)
	assert.Equal(t, model.ToolSearchWeb, infos[1].Name)

	assert.NotNil(t, infos[0].ParamsOneOf)
	assert.NotNil(t, infos[1].ParamsOneOf)

	assert.Len(t, r.Tools(), 2)
}

func TestInternalDataReturnsRows(t *testing.T) {
	exec := &fakeExecutor{rows: []store.Row{{"total": 245.3}}}
	rec := &fakeRecorder{}
	r := NewRegistry(rec, newDataTool("SELECT SUM(total) AS total FROM public.v_tickets", 30, exec, guardrail.NewDefaultGate(nil)))
	ctx, state := runContext(3)

	out := r.Dispatch(ctx, model.ToolQueryInternalData, "total expenses last month")

	assert.JSONEq(t, `[{"total":245.3}]`, out)
	assert.Equal(t, 1, state.Budget.ToolCalls())
	assert.Equal(t, 30, state.Ledger.Total())
	assert.Equal(t, 1, state.Ledger.Calls)
	assert.Greater(t, state.TotalCostUSD, 0.0)
	assert.Equal(t, []string{"query_internal_data:ok"}, rec.events)
}

func TestInternalDataEmptyResult(t *testing.T) {
	exec := &fakeExecutor{rows: []store.Row{}}
	r := NewRegistry(nil, newDataTool("SELECT 1 WHERE false", 0, exec, nil))
	ctx, _ := runContext(3)

	assert.Equal(t, "[]", r.Dispatch(ctx, model.ToolQueryInternalData, "anything"))
}

func TestInternalDataRejectedByGuardrail(t *testing.T) {
	exec := &fakeExecutor{}
	rec := &fakeRecorder{}
	r := NewRegistry(rec, newDataTool("DROP TABLE tickets", 12, exec, guardrail.NewDefaultGate(nil)))
	ctx, state := runContext(3)

	out := r.Dispatch(ctx, model.ToolQueryInternalData, "remove my receipts")

	assert.Contains(t, out, "Query rejected by guardrail: ")
	assert.Contains(t, out, `forbidden predicate "DROP"`)
	assert.Empty(t, exec.queries)
	assert.Equal(t, 12, state.Ledger.Total())
	assert.Equal(t, []string{"query_internal_data:error"}, rec.events)
}

func TestInternalDataExecutionError(t *testing.T) {
	exec := &fakeExecutor{err: errors.New(`column "amount" does not exist`)}
	r := NewRegistry(nil, newDataTool("SELECT amount FROM v_tickets", 0, exec, nil))
	ctx, _ := runContext(3)

	out := r.Dispatch(ctx, model.ToolQueryInternalData, "amounts")
	assert.Contains(t, out, "SQL agent error: ")
	assert.Contains(t, out, `column "amount" does not exist`)
}

func TestWebSearchRendersSummary(t *testing.T) {
	s := &fakeSearcher{resp: &model.WebSearchResponse{
		Summary: "Milk costs 1.20 EUR.",
		Sources: []model.WebSource{{Title: "Prices", URL: "https://example.com/milk"}, {URL: "https://example.com/b"}},
	}}
	r := NewRegistry(nil, NewWebSearchTool(s))
	ctx, _ := runContext(3)

	out := r.Dispatch(ctx, model.ToolSearchWeb, "price of milk")
	assert.Equal(t, "Summary: Milk costs 1.20 EUR.\nSources:\n- Prices (https://example.com/milk)\n- untitled (https://example.com/b)", out)
}

func TestWebSearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := websearch.NewClient(websearch.Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	r := NewRegistry(nil, NewWebSearchTool(client))
	ctx, _ := runContext(3)

	out := r.Dispatch(ctx, model.ToolSearchWeb, "price of milk")
	assert.Contains(t, out, "Web search error: ")
}

func TestToolCallLimit(t *testing.T) {
	rec := &fakeRecorder{}
	s := &fakeSearcher{resp: &model.WebSearchResponse{Summary: "ok"}}
	r := NewRegistry(rec, NewWebSearchTool(s))
	ctx, state := runContext(3)

	for i := 0; i < 3; i++ {
		assert.NotEqual(t, model.ToolLimitReachedMessage, r.Dispatch(ctx, model.ToolSearchWeb, "q"))
	}
	assert.Equal(t, model.ToolLimitReachedMessage, r.Dispatch(ctx, model.ToolSearchWeb, "q"))
	assert.Equal(t, model.ToolLimitReachedMessage, r.Dispatch(ctx, model.ToolSearchWeb, "q"))
	assert.Equal(t, 3, state.Budget.ToolCalls())
	assert.Equal(t, "search_web:limited", rec.events[len(rec.events)-1])
}

func TestExhaustedBudgetSkipsSQLGeneration(t *testing.T) {
	m := llmtest.NewScriptedModel(llmtest.Reply("SELECT 1", 10))
	exec := &fakeExecutor{}
	agent := sqlagent.NewAgent(sqlagent.NewGeneratorWithSchema(m, "gemini-2.5-flash-lite", "schema"), exec, nil)
	r := NewRegistry(nil, NewInternalDataTool(agent, "gemini-2.5-flash-lite"))
	ctx, state := runContext(1)
	require.True(t, state.Budget.TryToolCall())

	out := r.Dispatch(ctx, model.ToolQueryInternalData, "total spend")

	assert.Equal(t, model.ToolLimitReachedMessage, out)
	assert.Zero(t, m.Calls())
	assert.Empty(t, exec.queries)
	assert.Zero(t, state.Ledger.Total())
}

func TestZeroToolCallBudgetDisablesTools(t *testing.T) {
	s := &fakeSearcher{resp: &model.WebSearchResponse{Summary: "ok"}}
	r := NewRegistry(nil, NewWebSearchTool(s))
	ctx, state := runContext(0)

	assert.Equal(t, model.ToolLimitReachedMessage, r.Dispatch(ctx, model.ToolSearchWeb, "q"))
	assert.Zero(t, state.Budget.ToolCalls())
}

func TestUnknownToolDoesNotSpendBudget(t *testing.T) {
	r := NewRegistry(nil, NewWebSearchTool(&fakeSearcher{}))
	ctx, state := runContext(3)

	out := r.Dispatch(ctx, "lookup_weather", "x")
	assert.Contains(t, out, `Unknown tool: "lookup_weather"`)
	assert.Contains(t, out, model.ToolSearchWeb)
	assert.Zero(t, state.Budget.ToolCalls())
}

func TestInvokableToolNeverErrors(t *testing.T) {
	s := &fakeSearcher{err: errors.New("connection refused")}
	r := NewRegistry(nil, NewWebSearchTool(s))
	ctx, state := runContext(3)

	it, ok := r.Tools()[0].(tool.InvokableTool)
	require.True(t, ok)

	info, err := it.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ToolSearchWeb, info.Name)

	out, err := it.InvokableRun(ctx, `{"question":"milk price"}`)
	require.NoError(t, err)
	assert.Equal(t, "Web search error: connection refused", out)

	out, err = it.InvokableRun(ctx, `not json`)
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid arguments for search_web")

	out, err = it.InvokableRun(ctx, `{"question":""}`)
	require.NoError(t, err)
	assert.Contains(t, out, "must be a non-empty string")

	assert.Equal(t, 1, state.Budget.ToolCalls())
}

func TestNormalizeArguments(t *testing.T) {
	r := NewRegistry(nil, NewInternalDataTool(nil, ""), NewWebSearchTool(nil))

	assert.JSONEq(t, `{"query":"total spent"}`, r.NormalizeArguments(model.ToolQueryInternalData, `{"query":"  total spent \n"}`))
	assert.JSONEq(t, `{"question":"42"}`, r.NormalizeArguments(model.ToolSearchWeb, `{"question":42}`))
	assert.Equal(t, `garbage`, r.NormalizeArguments(model.ToolSearchWeb, `garbage`))
	assert.Equal(t, `{"x":1}`, r.NormalizeArguments("other", `{"x":1}`))
}

func TestDispatchWithoutRunStateIsUnbounded(t *testing.T) {
	s := &fakeSearcher{resp: &model.WebSearchResponse{Summary: "ok"}}
	r := NewRegistry(nil, NewWebSearchTool(s))
	for i := 0; i < 5; i++ {
		assert.Contains(t, r.Dispatch(context.Background(), model.ToolSearchWeb, "q"), "Summary: ok")
	}
}
