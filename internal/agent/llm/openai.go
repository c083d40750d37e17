// Package llm holds chat model adapters that are not covered by eino-ext.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"

	logx "github.com/receiptqa/server/pkg/logger"
)

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
// BaseURL allows Groq or any other compatible provider.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// OpenAIChatModel adapts go-openai to the eino chat model interfaces.
type OpenAIChatModel struct {
	client *openai.Client
	cfg    OpenAIConfig
	tools  []openai.Tool
	infos  []*schema.ToolInfo
}

func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is empty")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIChatModel{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (out *schema.Message, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, m.GetType(), components.ComponentOfChatModel)

	options := einomodel.GetCommonOptions(&einomodel.Options{
		Model:       &m.cfg.Model,
		MaxTokens:   &m.cfg.MaxTokens,
		Temperature: &m.cfg.Temperature,
	}, opts...)

	tools, infos := m.tools, m.infos
	if options.Tools != nil {
		if tools, err = toOpenAITools(options.Tools); err != nil {
			return nil, err
		}
		infos = options.Tools
	}

	ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{
		Messages: input,
		Tools:    infos,
		Config: &einomodel.Config{
			Model:       *options.Model,
			MaxTokens:   *options.MaxTokens,
			Temperature: *options.Temperature,
		},
	})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	req := openai.ChatCompletionRequest{
		Model:       *options.Model,
		MaxTokens:   *options.MaxTokens,
		Temperature: *options.Temperature,
		Messages:    toOpenAIMessages(input),
		Tools:       tools,
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logx.Error().Err(err).Str("model", req.Model).Msg("OpenAI chat completion failed")
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: empty response")
	}

	out = fromOpenAIMessage(resp.Choices[0])
	usage := &schema.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	out.ResponseMeta = &schema.ResponseMeta{FinishReason: string(resp.Choices[0].FinishReason), Usage: usage}

	callbacks.OnEnd(ctx, &einomodel.CallbackOutput{
		Message: out,
		Config:  &einomodel.Config{Model: req.Model, MaxTokens: req.MaxTokens, Temperature: req.Temperature},
		TokenUsage: &einomodel.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
	})
	return out, nil
}

// Stream emits the whole completion as a single chunk; the pipeline never
// streams partial answers.
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *OpenAIChatModel) BindTools(tools []*schema.ToolInfo) error {
	converted, err := toOpenAITools(tools)
	if err != nil {
		return err
	}
	m.tools, m.infos = converted, tools
	return nil
}

// WithTools returns a copy bound to tools, leaving m untouched.
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	converted, err := toOpenAITools(tools)
	if err != nil {
		return nil, err
	}
	cp := *m
	cp.tools, cp.infos = converted, tools
	return &cp, nil
}

func (m *OpenAIChatModel) GetType() string { return "OpenAICompatible" }

func (m *OpenAIChatModel) IsCallbacksEnabled() bool { return true }

func toOpenAITools(infos []*schema.ToolInfo) ([]openai.Tool, error) {
	if len(infos) == 0 {
		return nil, nil
	}
	out := make([]openai.Tool, 0, len(infos))
	for _, info := range infos {
		def := &openai.FunctionDefinition{Name: info.Name, Description: info.Desc}
		if info.ParamsOneOf != nil {
			js, err := info.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
			}
			raw, err := json.Marshal(js)
			if err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
			}
			def.Parameters = json.RawMessage(raw)
		}
		out = append(out, openai.Tool{Type: openai.ToolTypeFunction, Function: def})
	}
	return out, nil
}

func toOpenAIMessages(in []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, msg := range in {
		if msg == nil {
			continue
		}
		m := openai.ChatCompletionMessage{Content: msg.Content}
		switch msg.Role {
		case schema.System:
			m.Role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			m.Role = openai.ChatMessageRoleAssistant
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		case schema.Tool:
			m.Role = openai.ChatMessageRoleTool
			m.ToolCallID = msg.ToolCallID
		default:
			m.Role = openai.ChatMessageRoleUser
		}
		out = append(out, m)
	}
	return out
}

func fromOpenAIMessage(choice openai.ChatCompletionChoice) *schema.Message {
	var calls []schema.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, schema.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return schema.AssistantMessage(choice.Message.Content, calls)
}

var (
	_ einomodel.ChatModel            = (*OpenAIChatModel)(nil)
	_ einomodel.ToolCallingChatModel = (*OpenAIChatModel)(nil)
)
