package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Bitcoin RPC metrics
	nodeRPCCallsTotal   *prometheus.CounterVec
	nodeRPCCallDuration *prometheus.HistogramVec

	// Subscription metrics
	subscriptionsActive    *prometheus.GaugeVec
	subscriptionsCompleted *prometheus.CounterVec
	provenanceFailures     prometheus.Counter

	// Event delivery metrics
	eventsPublished  *prometheus.CounterVec
	watchEventsTotal *prometheus.CounterVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		nodeRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitcoin_rpc_calls_total",
				Help: "Total number of Bitcoin node RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		nodeRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bitcoin_rpc_call_duration_seconds",
				Help:    "Duration of Bitcoin node RPC calls in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"method"},
		),

		subscriptionsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tx_subscriptions_active",
				Help: "Number of open transaction-state subscriptions",
			},
			[]string{"kind"},
		),
		subscriptionsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tx_subscriptions_completed_total",
				Help: "Total number of completed transaction-state subscriptions by outcome",
			},
			[]string{"kind", "outcome"},
		),
		provenanceFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tx_provenance_failures_total",
				Help: "Total number of first-sender resolutions that failed and left the sender unset",
			},
		),

		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "node_events_published_total",
				Help: "Total number of node events fanned out to listeners",
			},
			[]string{"type"},
		),
		watchEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_events_total",
				Help: "Total number of incoming-watch events by result",
			},
			[]string{"result"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"address"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"address", "event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Bitcoin RPC metric helpers

// RecordRPCCall records a node RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	m.nodeRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.nodeRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// Subscription metric helpers

// RecordSubscriptionOpened records a newly opened subscription of the given
// kind ("submit", "ensure_state", "detect_orphaned", "watch_confirm").
func (m *Metrics) RecordSubscriptionOpened(kind string) {
	m.subscriptionsActive.WithLabelValues(kind).Inc()
}

// RecordSubscriptionCompleted records a completed subscription and its
// outcome (a final transaction state, "error", or "cancelled").
func (m *Metrics) RecordSubscriptionCompleted(kind, outcome string) {
	m.subscriptionsActive.WithLabelValues(kind).Dec()
	m.subscriptionsCompleted.WithLabelValues(kind, outcome).Inc()
}

// RecordProvenanceFailure records a swallowed first-sender resolution failure.
func (m *Metrics) RecordProvenanceFailure() {
	m.provenanceFailures.Inc()
}

// Event delivery metric helpers

// RecordEventPublished records a node event fanned out to listeners
// ("block" or "wallet_tx").
func (m *Metrics) RecordEventPublished(eventType string) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordWatchEvent records an incoming-watch classification result
// ("emitted", "duplicate", "filtered", "error").
func (m *Metrics) RecordWatchEvent(result string) {
	m.watchEventsTotal.WithLabelValues(result).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(address string, delta float64) {
	m.sseActiveConnections.WithLabelValues(address).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(address, eventType string) {
	m.sseEventsSent.WithLabelValues(address, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
