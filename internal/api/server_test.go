package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptqa/server/internal/agent/model"
	errx "github.com/receiptqa/server/internal/core/error"
)

type fakePipeline struct {
	result     *model.RunResult
	err        error
	transcript *model.Transcript
	question   string
}

func (p *fakePipeline) Run(_ context.Context, question string) (*model.RunResult, error) {
	p.question = question
	return p.result, p.err
}

func (p *fakePipeline) Transcript(_ context.Context, runID string) (*model.Transcript, error) {
	if p.transcript == nil || p.transcript.RunID != runID {
		return nil, errx.New(errors.New("missing"), http.StatusNotFound, errx.RedisNotFoundMessage)
	}
	return p.transcript, nil
}

func (p *fakePipeline) DeleteTranscript(ctx context.Context, runID string) (int, error) {
	tr, err := p.Transcript(ctx, runID)
	if err != nil {
		return 0, err
	}
	p.transcript = nil
	return len(tr.Messages), nil
}

func serve(t *testing.T, p Pipeline, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	rec := httptest.NewRecorder()
	NewServer(p, metrics, 0).Routes().ServeHTTP(rec, req)
	return rec
}

func TestAsk(t *testing.T) {
	p := &fakePipeline{result: &model.RunResult{RunID: "run-1", Answer: "245.30 EUR", TotalTokens: 250, Guardrail: model.GuardrailSkipped}}
	rec := serve(t, p, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"How much did I spend?"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.RunResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "245.30 EUR", got.Answer)
	assert.Equal(t, 250, got.TotalTokens)
	assert.Equal(t, "How much did I spend?", p.question)
}

func TestAskErrors(t *testing.T) {
	rec := serve(t, &fakePipeline{}, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := errx.New(errors.New("question is empty"), http.StatusBadRequest, "question is required")
	rec = serve(t, &fakePipeline{err: bad}, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question is required")

	rec = serve(t, &fakePipeline{err: errors.New("llm down")}, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "llm down")

	rec = serve(t, &fakePipeline{err: context.DeadlineExceeded}, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`)))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestRunTranscript(t *testing.T) {
	p := &fakePipeline{transcript: &model.Transcript{RunID: "run-1", Messages: []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("q"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Name: "search_web", Arguments: `{"question":"q"}`}}}),
		schema.ToolMessage("Summary: x", "call_1"),
	}}}

	rec := serve(t, p, httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RunID        string              `json:"run_id"`
		MessageCount int                 `json:"message_count"`
		Messages     []TranscriptMessage `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, 4, body.MessageCount)
	require.Len(t, body.Messages, 4)
	assert.Equal(t, "search_web", body.Messages[2].ToolCalls[0].Name)
	assert.Equal(t, "call_1", body.Messages[3].ToolCallID)

	rec = serve(t, p, httptest.NewRequest(http.MethodGet, "/runs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRunTranscript(t *testing.T) {
	p := &fakePipeline{transcript: &model.Transcript{RunID: "run-1", Messages: []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("q"),
	}}}

	rec := serve(t, p, httptest.NewRequest(http.MethodDelete, "/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"run_id":"run-1","deleted_messages":2}`, rec.Body.String())

	rec = serve(t, p, httptest.NewRequest(http.MethodDelete, "/runs/run-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	rec := serve(t, &fakePipeline{}, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, &fakePipeline{}, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())
}
