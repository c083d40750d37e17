// Package api exposes the question-answering pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/receiptqa/server/internal/agent/model"
	errx "github.com/receiptqa/server/internal/core/error"
	logx "github.com/receiptqa/server/pkg/logger"
)

// Pipeline is the subset of graph.Runner used by the API.
type Pipeline interface {
	Run(ctx context.Context, question string) (*model.RunResult, error)
	Transcript(ctx context.Context, runID string) (*model.Transcript, error)
	DeleteTranscript(ctx context.Context, runID string) (int, error)
}

type Config struct {
	Addr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	RunTimeout time.Duration `envconfig:"RUN_TIMEOUT" default:"120s"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type TranscriptMessage struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	ToolCalls  []TranscriptToolCall `json:"tool_calls,omitempty"`
}

type TranscriptToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Server struct {
	pipeline Pipeline
	metrics  http.Handler
	timeout  time.Duration
}

// NewServer builds the API; metrics may be nil to disable GET /metrics.
func NewServer(pipeline Pipeline, metrics http.Handler, timeout time.Duration) *Server {
	return &Server{pipeline: pipeline, metrics: metrics, timeout: timeout}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Post("/ask", s.ask)
	r.Get("/runs/{id}", s.transcript)
	r.Delete("/runs/{id}", s.deleteTranscript)
	return r
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.pipeline.Run(ctx, req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) transcript(w http.ResponseWriter, r *http.Request) {
	tr, err := s.pipeline.Transcript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]TranscriptMessage, 0, len(tr.Messages))
	for _, m := range tr.Messages {
		tm := TranscriptMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			tm.ToolCalls = append(tm.ToolCalls, TranscriptToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		out = append(out, tm)
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": tr.RunID, "message_count": len(out), "messages": out})
}

func (s *Server) deleteTranscript(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	n, err := s.pipeline.DeleteTranscript(r.Context(), runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "deleted_messages": n})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.StatusOf(err, http.StatusInternalServerError)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	logx.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Int("status", status).Msg("Request failed")

	msg := http.StatusText(status)
	var appErr *errx.AppError
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		msg = appErr.Message
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
