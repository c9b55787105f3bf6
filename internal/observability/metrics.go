package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Work item mutation outcomes.
const (
	MutationSuccess  = "success"
	MutationConflict = "conflict"
	MutationError    = "error"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge

	agentSubmitTotal   *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	historyEvicted     prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	mutationTotal    *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec

	httpRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active agent session count.",
				},
			),
			agentSubmitTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_submit_total",
					Help: "Total agent submissions by status.",
				},
				[]string{"status"},
			),
			completionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_completion_duration_seconds",
					Help:    "Completion backend call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			historyEvicted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "history_evicted_turns_total",
					Help: "Total conversation turns evicted by history trimming.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			mutationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "workitem_mutation_total",
					Help: "Total work item mutations by operation and status.",
				},
				[]string{"op", "status"},
			),
			mutationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "workitem_mutation_duration_seconds",
					Help:    "Work item mutation round-trip duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_http_requests_total",
					Help: "Total chat API requests by route and status code.",
				},
				[]string{"route", "code"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.agentSubmitTotal,
			m.completionDuration,
			m.historyEvicted,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.mutationTotal,
			m.mutationDuration,
			m.httpRequestsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordAgentSubmit(success bool) {
	m := getMetrics()
	m.agentSubmitTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordCompletion(provider string, duration time.Duration) {
	m := getMetrics()
	m.completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordHistoryEviction(turns int) {
	if turns <= 0 {
		return
	}
	m := getMetrics()
	m.historyEvicted.Add(float64(turns))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordWorkItemMutation records one request to the tracking service.
// status is one of MutationSuccess, MutationConflict or MutationError.
func RecordWorkItemMutation(op, status string, duration time.Duration) {
	m := getMetrics()
	m.mutationTotal.WithLabelValues(op, status).Inc()
	m.mutationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordHTTPRequest(route string, code int) {
	m := getMetrics()
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
