// Package metrics provides Prometheus metrics export for the processing
// pipeline: sessions, agents, LLM calls, and board activity.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/llm"
)

// Exporter exports pipeline metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Session metrics
	sessionLatency *prometheus.HistogramVec
	sessions       *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	qualityScores  prometheus.Histogram

	// Agent metrics
	agentExecutions  *prometheus.CounterVec
	agentLatency     *prometheus.HistogramVec
	agentSuccessRate *prometheus.GaugeVec

	// LLM metrics
	llmLatency  *prometheus.HistogramVec
	llmRequests *prometheus.CounterVec

	// Board metrics
	boardWrites prometheus.Gauge
	boardReads  prometheus.Gauge
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a Prometheus metrics exporter on its own registry.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.sessionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "session_latency_seconds",
			Help:      "End-to-end session latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"strategy"},
	)

	e.sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "sessions_total",
			Help:      "Total number of processing sessions",
		},
		[]string{"strategy", "status"},
	)

	e.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "sessions_active",
			Help:      "Number of sessions currently processing",
		},
	)

	e.qualityScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "quality_score",
			Help:      "Quality scores of completed sessions",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	e.agentExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "agent_executions_total",
			Help:      "Total number of agent executions",
		},
		[]string{"agent", "status"},
	)

	e.agentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "agent_latency_seconds",
			Help:      "Agent execution latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"agent"},
	)

	e.agentSuccessRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "agent_success_rate",
			Help:      "Rolling agent success rate (0-1)",
		},
		[]string{"agent"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "strongafter",
			Subsystem: "ai",
			Name:      "llm_latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model"},
	)

	e.llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "strongafter",
			Subsystem: "ai",
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"model", "status"},
	)

	e.boardWrites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "board_writes",
			Help:      "Board writes during the most recent session",
		},
	)

	e.boardReads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "strongafter",
			Subsystem: "blackboard",
			Name:      "board_reads",
			Help:      "Board reads during the most recent session",
		},
	)

	registry.MustRegister(
		e.sessionLatency,
		e.sessions,
		e.sessionsActive,
		e.qualityScores,
		e.agentExecutions,
		e.agentLatency,
		e.agentSuccessRate,
		e.llmLatency,
		e.llmRequests,
		e.boardWrites,
		e.boardReads,
	)

	return e
}

// ObserveSession folds one finished session into the metrics.
func (e *Exporter) ObserveSession(strategy string, result blackboard.SessionResult) {
	status := "success"
	if !result.Success {
		status = "error"
	}

	e.sessions.WithLabelValues(strategy, status).Inc()
	e.sessionLatency.WithLabelValues(strategy).Observe(result.ProcessingTime.Seconds())
	if result.Success {
		e.qualityScores.Observe(result.QualityScore)
	}

	for name, agent := range result.AgentStatus {
		e.agentSuccessRate.WithLabelValues(name).Set(agent.Stats.SuccessRate)
	}

	for _, group := range result.Execution.ParallelResults {
		e.observeResults(group)
	}
	for _, phase := range result.Execution.SequentialResults {
		e.observeResults(phase)
	}

	e.boardWrites.Set(float64(result.BoardMetrics.TotalWrites))
	e.boardReads.Set(float64(result.BoardMetrics.TotalReads))
}

func (e *Exporter) observeResults(results []blackboard.Result) {
	for _, r := range results {
		status := "success"
		if !r.Success {
			status = "error"
		}
		e.agentExecutions.WithLabelValues(r.Agent, status).Inc()
		e.agentLatency.WithLabelValues(r.Agent).Observe(r.Duration.Seconds())
	}
}

// SetActiveSessions sets the number of in-flight sessions.
func (e *Exporter) SetActiveSessions(count int) {
	e.sessionsActive.Set(float64(count))
}

// RecordLLMRequest records one upstream completion call.
func (e *Exporter) RecordLLMRequest(model string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.llmRequests.WithLabelValues(model, status).Inc()
	e.llmLatency.WithLabelValues(model).Observe(latency.Seconds())
}

// WrapLLM decorates a completion service with latency and error metrics.
func (e *Exporter) WrapLLM(inner llm.Service, model string) llm.Service {
	return &instrumentedLLM{inner: inner, exporter: e, model: model}
}

type instrumentedLLM struct {
	inner    llm.Service
	exporter *Exporter
	model    string
}

func (s *instrumentedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := s.inner.Complete(ctx, prompt)
	s.exporter.RecordLLMRequest(s.model, time.Since(start), err == nil)
	return out, err
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
