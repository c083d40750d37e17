package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/receiptqa/server/internal/agent/llm"
	"github.com/receiptqa/server/internal/agent/model"
	logx "github.com/receiptqa/server/pkg/logger"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	LLM          model.LLMConfig
	Orchestrator model.OrchestratorModelConfig
	SQL          model.SQLModelConfig
}

// ChatModels holds the orchestrator and SQL generation models
type ChatModels struct {
	Orchestrator          einomodel.ChatModel
	SQL                   einomodel.ChatModel
	OrchestratorModelName string
	SQLModelName          string
}

// NewChatModels creates both chat models for the configured provider
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	var (
		orchestrator, sql einomodel.ChatModel
		err               error
	)
	switch config.LLM.Provider {
	case ProviderGemini, "":
		orchestrator, sql, err = newGeminiModels(ctx, config)
	case ProviderOpenAI:
		orchestrator, sql, err = newOpenAIModels(config)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", config.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}

	return &ChatModels{
		Orchestrator:          orchestrator,
		SQL:                   sql,
		OrchestratorModelName: config.Orchestrator.Model,
		SQLModelName:          config.SQL.Model,
	}, nil
}

func newGeminiModels(ctx context.Context, config ChatModelConfig) (einomodel.ChatModel, einomodel.ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.LLM.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.LLM.GeminiBaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.LLM.GeminiBaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	orchestrator, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Orchestrator.Model,
		Temperature: &config.Orchestrator.Temperature,
		MaxTokens:   &config.Orchestrator.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating orchestrator model")
		return nil, nil, fmt.Errorf("error creating orchestrator model: %w", err)
	}

	// The SQL model answers with a bare query; thinking only adds latency.
	sql, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.SQL.Model,
		Temperature: &config.SQL.Temperature,
		MaxTokens:   &config.SQL.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating SQL model")
		return nil, nil, fmt.Errorf("error creating SQL model: %w", err)
	}
	return orchestrator, sql, nil
}

func newOpenAIModels(config ChatModelConfig) (einomodel.ChatModel, einomodel.ChatModel, error) {
	orchestrator, err := llm.NewOpenAIChatModel(llm.OpenAIConfig{
		APIKey:      config.LLM.OpenAIAPIKey,
		BaseURL:     config.LLM.OpenAIBaseURL,
		Model:       config.Orchestrator.Model,
		MaxTokens:   config.Orchestrator.MaxTokens,
		Temperature: config.Orchestrator.Temperature,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating orchestrator model: %w", err)
	}
	sql, err := llm.NewOpenAIChatModel(llm.OpenAIConfig{
		APIKey:      config.LLM.OpenAIAPIKey,
		BaseURL:     config.LLM.OpenAIBaseURL,
		Model:       config.SQL.Model,
		MaxTokens:   config.SQL.MaxTokens,
		Temperature: config.SQL.Temperature,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating SQL model: %w", err)
	}
	return orchestrator, sql, nil
}

// BindToolsToOrchestrator binds tools to the orchestrator chat model
func (cm *ChatModels) BindToolsToOrchestrator(tools []*schema.ToolInfo) error {
	if err := cm.Orchestrator.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to orchestrator model")
	return nil
}
