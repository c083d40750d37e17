package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/receiptqa/server/internal/agent/graph/nodes"
	"github.com/receiptqa/server/internal/agent/graph/observers"
	"github.com/receiptqa/server/internal/agent/graph/tools"
	"github.com/receiptqa/server/internal/agent/model"
	"github.com/receiptqa/server/internal/agent/sqlagent"
	errx "github.com/receiptqa/server/internal/core/error"
	"github.com/receiptqa/server/internal/guardrail"
	"github.com/receiptqa/server/internal/metrics"
	"github.com/receiptqa/server/internal/store"
	"github.com/receiptqa/server/internal/websearch"
	logx "github.com/receiptqa/server/pkg/logger"
)

// ErrEmptyQuestion is returned by Run for a blank question.
var ErrEmptyQuestion = errx.New(errors.New("question is empty"), http.StatusBadRequest, "question is required")

// Recorder observes finished runs (metrics).
type Recorder interface {
	RunFinished(outcome string, d time.Duration)
	Tokens(prompt, completion int)
}

// Config holds everything needed to compose the pipeline end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// models, the SQL agent, the guardrail validator and the tools.
type Config struct {
	Models    nodes.ChatModelConfig
	Agent     model.AgentConfig
	Guardrail model.GuardrailConfig
	WebSearch model.WebSearchConfig

	Store       *store.Repository
	Transcripts model.TranscriptRepository // optional
	Metrics     *metrics.Collector         // optional
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels  *nodes.ChatModels
	Registry    *tools.Registry
	AnswerGuard *nodes.AnswerGuard
	Agent       model.AgentConfig
}

// GraphBuilder handles the construction of the question-answering graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

// Runner answers questions with the compiled graph. It holds no per-run
// state and is safe for concurrent use.
type Runner struct {
	runnable    compose.Runnable[model.QueryInput, *schema.Message]
	agent       model.AgentConfig
	transcripts model.TranscriptRepository
	recorder    Recorder
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithTranscripts archives every finished run conversation.
func WithTranscripts(repo model.TranscriptRepository) RunnerOption {
	return func(r *Runner) { r.transcripts = repo }
}

// WithRecorder reports run metrics.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner wraps a compiled graph.
func NewRunner(runnable compose.Runnable[model.QueryInput, *schema.Message], agent model.AgentConfig, opts ...RunnerOption) *Runner {
	r := &Runner{runnable: runnable, agent: agent}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run answers one question. Each call owns a fresh run budget, token ledger
// and conversation.
func (r *Runner) Run(ctx context.Context, question string) (*model.RunResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	runID := uuid.NewString()
	state := model.NewAppState(runID, question, r.agent.NewBudget())
	ctx = model.WithState(ctx, state)

	logx.Info().Str("run_id", runID).Str("question", question).Msg("Run started")

	out, err := r.runnable.Invoke(ctx, model.QueryInput{RunID: runID, Question: question},
		compose.WithCallbacks(observers.NewAllCallbacks(runID)))
	if err != nil {
		logx.Error().Err(err).Str("run_id", runID).Msg("Run failed")
		r.finish(state, metrics.RunError, time.Since(start))
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	res := &model.RunResult{
		RunID:            runID,
		TotalTokens:      state.Ledger.Total(),
		PromptTokens:     state.Ledger.PromptTokens,
		CompletionTokens: state.Ledger.CompletionTokens,
		ModelCalls:       state.Ledger.Calls,
		Turns:            state.Budget.Recursion(),
		ToolCalls:        state.Budget.ToolCalls(),
		CostUSD:          state.TotalCostUSD,
		Guardrail:        state.Guardrail,
	}
	if out != nil {
		res.Answer = out.Content
	}
	r.archive(ctx, state, out)
	r.finish(state, metrics.RunOK, time.Since(start))

	logx.Info().
		Str("run_id", runID).
		Int("total_tokens", res.TotalTokens).
		Int("turns", res.Turns).
		Int("tool_calls", res.ToolCalls).
		Float64("cost_usd", res.CostUSD).
		Str("guardrail", string(res.Guardrail)).
		Msg("Run finished")
	return res, nil
}

func (r *Runner) finish(state *model.AppState, outcome string, d time.Duration) {
	if r.recorder == nil {
		return
	}
	r.recorder.RunFinished(outcome, d)
	r.recorder.Tokens(state.Ledger.PromptTokens, state.Ledger.CompletionTokens)
}

// archive stores the run conversation; failures are logged, never returned.
func (r *Runner) archive(ctx context.Context, state *model.AppState, final *schema.Message) {
	if r.transcripts == nil || state.Conversation == nil {
		return
	}
	msgs := state.Conversation.Messages()
	// The guarded answer may differ from the last orchestrator message
	if final != nil && final.Content != state.Conversation.Last().Content {
		msgs = append(msgs, final)
	}
	if err := r.transcripts.SaveTranscript(ctx, state.RunID, msgs); err != nil {
		logx.Error().Err(err).Str("run_id", state.RunID).Msg("Error saving run transcript")
		return
	}
	logx.Debug().Str("run_id", state.RunID).Int("messages", len(msgs)).Msg("Run transcript saved")
}

var errTranscriptsDisabled = errx.New(errors.New("transcript archive disabled"), http.StatusNotFound, "transcripts are not enabled")

// Transcript loads an archived run.
func (r *Runner) Transcript(ctx context.Context, runID string) (*model.Transcript, error) {
	if r.transcripts == nil {
		return nil, errTranscriptsDisabled
	}
	return r.transcripts.LoadTranscript(ctx, runID)
}

// DeleteTranscript removes an archived run and returns how many messages it
// held. An unknown run is a not-found error.
func (r *Runner) DeleteTranscript(ctx context.Context, runID string) (int, error) {
	if r.transcripts == nil {
		return 0, errTranscriptsDisabled
	}
	n, err := r.transcripts.GetMessageCount(ctx, runID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errx.New(fmt.Errorf("transcript %s not found", runID), http.StatusNotFound, "transcript not found")
	}
	if err := r.transcripts.DeleteTranscript(ctx, runID); err != nil {
		return 0, err
	}
	logx.Info().Str("run_id", runID).Int("messages", n).Msg("Transcript deleted")
	return n, nil
}

// BuildPipeline composes chat models, the SQL agent, guardrails and tools,
// builds the graph, and returns a Runner. Schema introspection happens here,
// once; an unreachable store is fatal.
func BuildPipeline(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store repository is nil")
	}

	cms, err := nodes.NewChatModels(ctx, cfg.Models)
	if err != nil {
		return nil, err
	}

	generator, err := sqlagent.NewGenerator(ctx, cms.SQL, cms.SQLModelName, sqlagent.NewIntrospector(cfg.Store))
	if err != nil {
		logx.Error().Err(err).Msg("Failed to describe store schema")
		return nil, fmt.Errorf("failed to describe store schema: %w", err)
	}

	validator := NewValidator(cfg.Guardrail, cms)

	var (
		toolRecorder  tools.Recorder
		guardRecorder guardrail.Recorder
		opts          []RunnerOption
	)
	if cfg.Metrics != nil {
		toolRecorder, guardRecorder = cfg.Metrics, cfg.Metrics
		opts = append(opts, WithRecorder(cfg.Metrics))
	}
	if cfg.Transcripts != nil {
		opts = append(opts, WithTranscripts(cfg.Transcripts))
	}

	registry := tools.NewRegistry(toolRecorder,
		tools.NewInternalDataTool(sqlagent.NewAgent(generator, cfg.Store, validator), cms.SQLModelName),
		tools.NewWebSearchTool(websearch.NewClient(websearch.Config{
			URL:        cfg.WebSearch.URL,
			Timeout:    cfg.WebSearch.Timeout,
			TopK:       cfg.WebSearch.TopK,
			FetchPages: cfg.WebSearch.FetchPages,
		})),
	)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:  cms,
		Registry:    registry,
		AnswerGuard: nodes.NewAnswerGuard(validator, cfg.Guardrail.AnswerMode, guardRecorder),
		Agent:       cfg.Agent,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Bool("guardrails", validator != nil).Msg("Pipeline built successfully")
	return NewRunner(runnable, cfg.Agent, opts...), nil
}

// NewValidator returns the guardrail validator for cfg, or nil when
// guardrails are disabled. A configured URL selects the remote service;
// otherwise the gate runs in-process.
func NewValidator(cfg model.GuardrailConfig, cms *nodes.ChatModels) guardrail.Validator {
	if !cfg.Enabled {
		return nil
	}
	if cfg.URL != "" {
		return guardrail.NewClient(cfg.URL, cfg.Timeout, guardrail.PolicySQL, guardrail.PolicyToxic)
	}
	var classifier guardrail.ToxicityClassifier
	if cfg.Classifier == "model" && cms != nil {
		classifier = guardrail.NewModelClassifier(cms.SQL, cms.SQLModelName)
	}
	return guardrail.NewDefaultGate(classifier)
}

// BuildGraph constructs and returns the compiled graph:
// input_converter -> orchestrator <-> tool_executor, orchestrator -> answer_guard.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Orchestrator == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.Registry == nil || config.AnswerGuard == nil {
		return nil, fmt.Errorf("tool registry or answer guard is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			// Runner.Run attaches a fresh state to ctx; tools read the same one
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				if s := model.StateFrom(ctx); s != nil {
					return s
				}
				return model.NewAppState("", "", config.Agent.NewBudget())
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools binds the tool descriptors to the orchestrator model and adds
// the tools node
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	registry := b.config.Registry
	if err := b.config.ChatModels.BindToolsToOrchestrator(registry.Descriptors()); err != nil {
		return err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               registry.Tools(),
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Hallucinated or malformed tool calls get a result the model can read
			logx.Warn().Str("tool_name", name).Str("arguments", input).Msg("Unknown or invalid tool call")
			return registry.Dispatch(ctx, name, input), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return registry.NormalizeArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	if err := b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler()),
	); err != nil {
		return fmt.Errorf("add tools node: %w", err)
	}
	return nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	orchestrator := nodes.NewOrchestrator(b.config.ChatModels.Orchestrator, b.config.ChatModels.OrchestratorModelName)

	if err := b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.Agent.NewBudget().MaxToolCalls),
	); err != nil {
		return fmt.Errorf("add input converter node: %w", err)
	}

	if err := b.graph.AddLambdaNode(nodes.NodeOrchestrator,
		nodes.NewOrchestratorNode(orchestrator),
		compose.WithStatePreHandler(nodes.NewOrchestratorPreHandler()),
	); err != nil {
		return fmt.Errorf("add orchestrator node: %w", err)
	}

	if err := b.graph.AddLambdaNode(nodes.NodeAnswerGuard,
		nodes.NewAnswerGuardNode(b.config.AnswerGuard),
	); err != nil {
		return fmt.Errorf("add answer guard node: %w", err)
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeOrchestrator},
		{nodes.NodeToolExecutor, nodes.NodeOrchestrator},
		{nodes.NodeAnswerGuard, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeAnswerGuard:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeOrchestrator, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Every turn is at most two steps (orchestrator, tools); the recursion
	// ceiling ends the loop well before this bound.
	maxRecursion := b.config.Agent.NewBudget().MaxRecursion
	maxSteps := 2*maxRecursion + 10

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("max_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}
