package status

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the orchestrator's Prometheus surface: one registry, a
// handful of CounterVec/HistogramVec fields initialised up front, trimmed
// down to the four signals this core actually emits: agent call duration,
// tool-quota rejections, circuit breaker trips, and jobs by terminal
// state.
type Metrics struct {
	registry *prometheus.Registry

	AgentDuration *prometheus.HistogramVec
	QuotaRejected *prometheus.CounterVec
	BreakerTrips  *prometheus.CounterVec
	JobsTerminal  *prometheus.CounterVec
}

// NewMetrics builds and registers the orchestrator's metric vectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		AgentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "agent",
			Name:      "invoke_duration_seconds",
			Help:      "Duration of a single agent invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent_id", "status"}),
		QuotaRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "broker",
			Name:      "quota_rejected_total",
			Help:      "Tool invocations rejected by the per-tenant token bucket.",
		}, []string{"tenant_id", "tool"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "broker",
			Name:      "breaker_trips_total",
			Help:      "Times a tool's circuit breaker opened.",
		}, []string{"tool"}),
		JobsTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "job",
			Name:      "terminal_total",
			Help:      "Jobs reaching a terminal state, by state.",
		}, []string{"job_type", "state"}),
	}

	reg.MustRegister(m.AgentDuration, m.QuotaRejected, m.BreakerTrips, m.JobsTerminal)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
