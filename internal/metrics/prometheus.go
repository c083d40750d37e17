// Package metrics exports pipeline metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	RunOK    = "ok"
	RunError = "error"
)

// Collector records run, tool, token and guardrail metrics. It satisfies the
// tools and guardrail recorder interfaces.
type Collector struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	toolCalls       *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	guardrailChecks *prometheus.CounterVec
}

// NewCollector registers the collectors on registry, or on a fresh registry
// when nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptqa_runs_total",
			Help: "Question-answering runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "receiptqa_run_duration_seconds",
			Help:    "Wall time of a question-answering run.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptqa_tool_calls_total",
			Help: "Tool invocation attempts by tool and outcome.",
		}, []string{"tool", "outcome"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptqa_llm_tokens_total",
			Help: "Language model tokens by kind (prompt, completion).",
		}, []string{"kind"}),
		guardrailChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptqa_guardrail_checks_total",
			Help: "Guardrail validations by policy and outcome.",
		}, []string{"policy", "outcome"}),
	}
	registry.MustRegister(c.runs, c.runDuration, c.toolCalls, c.llmTokens, c.guardrailChecks)
	return c
}

func (c *Collector) RunFinished(outcome string, d time.Duration) {
	c.runs.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(d.Seconds())
}

func (c *Collector) Tokens(prompt, completion int) {
	if prompt > 0 {
		c.llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		c.llmTokens.WithLabelValues("completion").Add(float64(completion))
	}
}

func (c *Collector) ToolCall(tool, outcome string) {
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (c *Collector) GuardrailCheck(policy, outcome string) {
	c.guardrailChecks.WithLabelValues(policy, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
