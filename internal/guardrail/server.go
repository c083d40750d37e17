package guardrail

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "github.com/receiptqa/server/pkg/logger"
)

// Recorder observes validation outcomes (metrics).
type Recorder interface {
	GuardrailCheck(policy, outcome string)
}

// Outcomes reported to the Recorder.
const (
	OutcomePassed   = "passed"
	OutcomeRejected = "rejected"
	OutcomeUnknown  = "unknown_policy"
	OutcomeError    = "error"
)

// Server exposes a Gate over HTTP.
type Server struct {
	gate     *Gate
	recorder Recorder
}

func NewServer(gate *Gate, recorder Recorder) *Server {
	return &Server{gate: gate, recorder: recorder}
}

// Routes returns the service router: GET / (health) and POST /validate.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.health)
	r.Post("/validate", s.validate)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "Guardrails", "guards": s.gate.Policies()})
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	if !s.gate.IsKnown(req.Guard) {
		s.record(req.Guard, OutcomeUnknown)
		writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: "Guard not found"})
		return
	}

	err := s.gate.Validate(r.Context(), req.Guard, req.Prompt)
	var vErr *ValidationError
	switch {
	case err == nil:
		s.record(req.Guard, OutcomePassed)
		writeJSON(w, http.StatusOK, ValidateResponse{Answer: "validation passed"})
	case errors.As(err, &vErr):
		s.record(req.Guard, OutcomeRejected)
		logx.Info().Str("policy", req.Guard).Str("detail", vErr.Detail).Msg("Payload rejected")
		writeJSON(w, http.StatusForbidden, ErrorResponse{Detail: "Validation failed: " + vErr.Detail})
	default:
		s.record(req.Guard, OutcomeError)
		logx.Error().Err(err).Str("policy", req.Guard).Msg("Validation error")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: fmt.Sprintf("An error occurred: %v", err)})
	}
}

func (s *Server) record(policy, outcome string) {
	if s.recorder != nil {
		s.recorder.GuardrailCheck(policy, outcome)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}
