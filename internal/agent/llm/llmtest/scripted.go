// Package llmtest provides a scripted eino chat model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrScriptExhausted is returned once every scripted response was consumed.
var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

// ScriptedModel replays Responses in order. When Respond is set it is used
// instead of the script.
type ScriptedModel struct {
	Responses []*schema.Message
	Respond   func(ctx context.Context, input []*schema.Message) (*schema.Message, error)

	mu     sync.Mutex
	next   int
	inputs [][]*schema.Message
	tools  []*schema.ToolInfo
}

func NewScriptedModel(responses ...*schema.Message) *ScriptedModel {
	return &ScriptedModel{Responses: responses}
}

func (m *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	snapshot := make([]*schema.Message, len(input))
	copy(snapshot, input)
	m.inputs = append(m.inputs, snapshot)
	respond := m.Respond
	var out *schema.Message
	if respond == nil {
		if m.next >= len(m.Responses) {
			m.mu.Unlock()
			return nil, ErrScriptExhausted
		}
		out = m.Responses[m.next]
		m.next++
	}
	m.mu.Unlock()

	if respond != nil {
		return respond(ctx, input)
	}
	return out, nil
}

func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *ScriptedModel) BindTools(tools []*schema.ToolInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return nil
}

// Calls returns the number of Generate calls.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Input returns the messages passed to the i-th call.
func (m *ScriptedModel) Input(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[i]
}

// BoundTools returns the tools passed to BindTools.
func (m *ScriptedModel) BoundTools() []*schema.ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools
}

// Reply builds an assistant message carrying token usage.
func Reply(content string, totalTokens int) *schema.Message {
	msg := schema.AssistantMessage(content, nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: usage(totalTokens)}
	return msg
}

// ToolCall builds an assistant message that invokes one tool.
func ToolCall(id, name, arguments string, totalTokens int) *schema.Message {
	msg := schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})
	msg.ResponseMeta = &schema.ResponseMeta{Usage: usage(totalTokens)}
	return msg
}

func usage(total int) *schema.TokenUsage {
	if total == 0 {
		return nil
	}
	prompt := total * 2 / 3
	return &schema.TokenUsage{PromptTokens: prompt, CompletionTokens: total - prompt, TotalTokens: total}
}

var _ einomodel.ChatModel = (*ScriptedModel)(nil)
