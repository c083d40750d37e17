package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/receiptqa/server/internal/agent/graph"
	"github.com/receiptqa/server/internal/agent/graph/nodes"
	"github.com/receiptqa/server/internal/agent/model"
	"github.com/receiptqa/server/internal/agent/repo"
	"github.com/receiptqa/server/internal/api"
	"github.com/receiptqa/server/internal/core"
	"github.com/receiptqa/server/internal/guardrail"
	"github.com/receiptqa/server/internal/metrics"
	"github.com/receiptqa/server/internal/store"
	logx "github.com/receiptqa/server/pkg/logger"
	"github.com/receiptqa/server/pkg/postgres"
	pkgredis "github.com/receiptqa/server/pkg/redis"
)

// BaseConfig is shared by every command.
type BaseConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
}

// AppConfig defines all configurable parameters of the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Postgres postgres.Config
	Redis    pkgredis.Config

	// LLM provider and models
	LLM          model.LLMConfig
	Orchestrator model.OrchestratorModelConfig
	SQL          model.SQLModelConfig

	// Agent configs
	Agent      model.AgentConfig
	Guardrail  model.GuardrailConfig
	WebSearch  model.WebSearchConfig
	Transcript model.TranscriptConfig
	HTTP       api.Config
}

// GuardrailServiceConfig configures the standalone guardrail service.
type GuardrailServiceConfig struct {
	Addr         string `envconfig:"GUARDRAILS_ADDR" default:":8000"`
	Classifier   string `envconfig:"GUARDRAILS_CLASSIFIER" default:"lexicon"`
	LLM          model.LLMConfig
	Orchestrator model.OrchestratorModelConfig
	SQL          model.SQLModelConfig
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "receiptqa",
		Short:        "Question answering over receipt data",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Printf("Warning: Could not load .env file: %v", err)
			}
			var base BaseConfig
			if err := envconfig.Process("", &base); err != nil {
				return fmt.Errorf("failed to process environment config: %w", err)
			}
			logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(base.Environment), Level: base.LogLevel})
			return nil
		},
	}
	root.AddCommand(newAskCmd(), newServeCmd(), newGuardrailsCmd())
	return root
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the answer with its token count",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			runner, cleanup, err := buildRunner(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if cfg.HTTP.RunTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.HTTP.RunTimeout)
				defer cancel()
			}
			res, err := runner.Run(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			fmt.Fprintf(cmd.OutOrStdout(), "\nrun_id=%s total_tokens=%d turns=%d tool_calls=%d cost_usd=%.6f\n",
				res.RunID, res.TotalTokens, res.Turns, res.ToolCalls, res.CostUSD)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the question-answering HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			collector := metrics.NewCollector(nil)
			runner, cleanup, err := buildRunner(ctx, cfg, collector)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := api.NewServer(runner, collector.Handler(), cfg.HTTP.RunTimeout)
			return listen(ctx, cfg.HTTP.Addr, srv.Routes())
		},
	}
}

func newGuardrailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guardrails",
		Short: "Serve the guardrail validation service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var cfg GuardrailServiceConfig
			if err := envconfig.Process("", &cfg); err != nil {
				return fmt.Errorf("failed to process environment config: %w", err)
			}

			var classifier guardrail.ToxicityClassifier
			if cfg.Classifier == "model" {
				cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{LLM: cfg.LLM, Orchestrator: cfg.Orchestrator, SQL: cfg.SQL})
				if err != nil {
					return err
				}
				classifier = guardrail.NewModelClassifier(cms.SQL, cms.SQLModelName)
			}

			collector := metrics.NewCollector(nil)
			gate := guardrail.NewDefaultGate(classifier)
			srv := guardrail.NewServer(gate, collector)

			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			mux.Handle("/", srv.Routes())
			logx.Info().Strs("guards", gate.Policies()).Str("classifier", cfg.Classifier).Msg("Guardrail service configured")
			return listen(ctx, cfg.Addr, mux)
		},
	}
}

func loadAppConfig() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &cfg, nil
}

// buildRunner connects the store and the optional transcript archive and
// builds the pipeline. An unreachable store aborts startup.
func buildRunner(ctx context.Context, cfg *AppConfig, collector *metrics.Collector) (*graph.Runner, func(), error) {
	pool, err := cfg.Postgres.New(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to connect to the store")
		return nil, nil, fmt.Errorf("failed to connect to the store: %w", err)
	}
	cleanup := pool.Close

	relations := []string{store.RelationView}
	if cfg.SQL.IncludeTables {
		relations = append(relations, store.RelationTable)
	}

	pipelineCfg := graph.Config{
		Models:    nodes.ChatModelConfig{LLM: cfg.LLM, Orchestrator: cfg.Orchestrator, SQL: cfg.SQL},
		Agent:     cfg.Agent,
		Guardrail: cfg.Guardrail,
		WebSearch: cfg.WebSearch,
		Store:     store.NewRepository(pool, relations...),
		Metrics:   collector,
	}

	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		pipelineCfg.Transcripts = repo.NewRedisTranscriptRepository(rdb, cfg.Transcript.TTL)
		cleanup = func() {
			_ = rdb.Close()
			pool.Close()
		}
		logx.Debug().Msg("Connected to Redis successfully")
	}

	runner, err := graph.BuildPipeline(ctx, pipelineCfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return runner, cleanup, nil
}

func listen(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logx.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}
