// Package observability exposes Prometheus metrics and liveness checks for
// the service over one HTTP endpoint.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaguemind_messages_total",
			Help: "Inbound chat events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	agentProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leaguemind_agent_process_duration_seconds",
			Help:    "Agent pipeline latency per personality kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	collaborationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaguemind_collaborations_total",
			Help: "Collaborative analyses by confidence tier",
		},
		[]string{"confidence"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaguemind_rate_limit_rejections_total",
			Help: "Events rejected by the admission windows",
		},
		[]string{"window"},
	)

	liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leaguemind_live_sessions",
			Help: "Sessions currently in the live map",
		},
	)

	pooledAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leaguemind_pooled_agents",
			Help: "Agent instances currently cached in the pool",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			messagesTotal,
			agentProcessDuration,
			collaborationsTotal,
			rateLimitRejections,
			liveSessions,
			pooledAgents,
		)
	})
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordMessage counts one inbound event.
func RecordMessage(eventType, outcome string) {
	messagesTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordAgentProcess observes one pipeline run.
func RecordAgentProcess(kind string, elapsed time.Duration) {
	agentProcessDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordCollaboration counts one finished analysis.
func RecordCollaboration(confidence string) {
	collaborationsTotal.WithLabelValues(confidence).Inc()
}

// RecordRateLimitRejection counts one admission rejection.
func RecordRateLimitRejection(window string) {
	rateLimitRejections.WithLabelValues(window).Inc()
}

// SetLiveSessions updates the live session gauge.
func SetLiveSessions(n int) {
	liveSessions.Set(float64(n))
}

// SetPooledAgents updates the pooled agent gauge.
func SetPooledAgents(n int) {
	pooledAgents.Set(float64(n))
}
