package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/model"
	logx "github.com/receiptqa/server/pkg/logger"
)

// Tool call outcomes reported to the Recorder.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeLimited = "limited"
	OutcomeUnknown = "unknown"
	OutcomeInvalid = "invalid"
)

// Recorder receives one event per tool invocation attempt.
type Recorder interface {
	ToolCall(tool, outcome string)
}

// Capability answers one tool invocation. The returned text is fed back to
// the model as the tool result; failures are part of the text, never errors.
type Capability interface {
	Name() string
	Info() *schema.ToolInfo
	// Param is the single string argument the capability reads.
	Param() string
	Invoke(ctx context.Context, argument string) (text string, ok bool)
}

// Registry keeps the descriptors bound to the model apart from the dispatch
// table used to run them.
type Registry struct {
	descriptors []*schema.ToolInfo
	dispatch    map[string]Capability
	recorder    Recorder
}

func NewRegistry(recorder Recorder, capabilities ...Capability) *Registry {
	r := &Registry{dispatch: make(map[string]Capability, len(capabilities)), recorder: recorder}
	for _, c := range capabilities {
		r.descriptors = append(r.descriptors, c.Info())
		r.dispatch[c.Name()] = c
	}
	return r
}

// Descriptors returns the tool schemas for binding to the orchestrator model.
func (r *Registry) Descriptors() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Dispatch runs the named capability under the run's tool budget.
func (r *Registry) Dispatch(ctx context.Context, name, argument string) string {
	c, ok := r.dispatch[name]
	if !ok {
		logx.Warn().Str("tool", name).Msg("Unknown tool requested")
		r.record(name, OutcomeUnknown)
		return fmt.Sprintf("Unknown tool: %q. Available tools: %s.", name, strings.Join(r.names(), ", "))
	}

	state := model.StateFrom(ctx)
	if state != nil {
		if !state.Budget.TryToolCall() {
			logx.Warn().
				Str("run_id", state.RunID).
				Str("tool", name).
				Int("max_tool_calls", state.Budget.MaxToolCalls).
				Msg("Tool call limit reached")
			r.record(name, OutcomeLimited)
			return model.ToolLimitReachedMessage
		}
		logx.Debug().
			Str("run_id", state.RunID).
			Str("tool", name).
			Int("tool_call_count", state.Budget.ToolCalls()).
			Msg("Tool execution attempt")
	}

	text, success := c.Invoke(ctx, argument)
	if success {
		r.record(name, OutcomeOK)
	} else {
		r.record(name, OutcomeError)
	}
	return text
}

// NormalizeArguments trims the capability's string argument and coerces
// non-string values. Arguments that are not a JSON object are kept as-is.
func (r *Registry) NormalizeArguments(name, arguments string) string {
	c, ok := r.dispatch[name]
	if !ok {
		return arguments
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments
	}
	if v, ok := m[c.Param()]; ok && v != nil {
		switch vv := v.(type) {
		case string:
			m[c.Param()] = strings.TrimSpace(vv)
		default:
			m[c.Param()] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

// Tools adapts every capability to an eino tool for the tools node.
func (r *Registry) Tools() []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(r.descriptors))
	for _, info := range r.descriptors {
		out = append(out, &invokable{registry: r, capability: r.dispatch[info.Name]})
	}
	return out
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.descriptors))
	for _, info := range r.descriptors {
		names = append(names, info.Name)
	}
	return names
}

func (r *Registry) record(name, outcome string) {
	if r.recorder != nil {
		r.recorder.ToolCall(name, outcome)
	}
}

// invokable never returns an error so that one failing tool does not abort
// the run; the model reads the failure from the result text.
type invokable struct {
	registry   *Registry
	capability Capability
}

func (t *invokable) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.capability.Info(), nil
}

func (t *invokable) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	name := t.capability.Name()
	var args map[string]any
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		t.registry.record(name, OutcomeInvalid)
		return fmt.Sprintf("Invalid arguments for %s: %v", name, err), nil
	}
	v, ok := args[t.capability.Param()].(string)
	if !ok || strings.TrimSpace(v) == "" {
		t.registry.record(name, OutcomeInvalid)
		return fmt.Sprintf("Invalid arguments for %s: %q must be a non-empty string", name, t.capability.Param()), nil
	}
	return t.registry.Dispatch(ctx, name, v), nil
}

var _ tool.InvokableTool = (*invokable)(nil)
