package model

import "time"

// ================ Config ================
type AgentConfig struct {
	MaxRecursion int `envconfig:"AGENT_MAX_RECURSION" default:"10"`
	MaxToolCalls int `envconfig:"AGENT_MAX_TOOL_CALLS" default:"3"`
}

// NewBudget returns a fresh run budget with these ceilings.
func (c AgentConfig) NewBudget() *RunBudget {
	return NewRunBudget(c.MaxRecursion, c.MaxToolCalls)
}

type LLMConfig struct {
	Provider      string `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
}

type OrchestratorModelConfig struct {
	Model       string  `envconfig:"ORCHESTRATOR_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"ORCHESTRATOR_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"ORCHESTRATOR_TEMPERATURE" default:"0.2"`
}

type SQLModelConfig struct {
	Model         string  `envconfig:"SQL_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens     int     `envconfig:"SQL_MAX_TOKENS" default:"1000"`
	Temperature   float32 `envconfig:"SQL_TEMPERATURE" default:"0"`
	IncludeTables bool    `envconfig:"SQL_AGENT_INCLUDE_TABLES" default:"false"`
}

type GuardrailConfig struct {
	Enabled    bool          `envconfig:"GUARDRAILS_ENABLED" default:"false"`
	URL        string        `envconfig:"GUARDRAILS_URL"`
	Timeout    time.Duration `envconfig:"GUARDRAILS_TIMEOUT" default:"20s"`
	AnswerMode string        `envconfig:"GUARDRAILS_ANSWER_MODE" default:"annotate"`
	Classifier string        `envconfig:"GUARDRAILS_CLASSIFIER" default:"lexicon"`
}

type WebSearchConfig struct {
	URL        string        `envconfig:"WEB_SEARCH_URL" default:"http://tool-web:8000/search"`
	Timeout    time.Duration `envconfig:"WEB_SEARCH_TIMEOUT" default:"30s"`
	TopK       int           `envconfig:"WEB_SEARCH_TOP_K" default:"5"`
	FetchPages bool          `envconfig:"WEB_SEARCH_FETCH_PAGES" default:"true"`
}

type TranscriptConfig struct {
	TTL time.Duration `envconfig:"TRANSCRIPT_TTL" default:"24h"`
}

// Answer guard modes for a rejected final answer.
const (
	AnswerModeAnnotate = "annotate"
	AnswerModeBlock    = "block"
)
