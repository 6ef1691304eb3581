package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Snapshot Metrics
	snapshotRefreshesTotal *prometheus.CounterVec
	holdingsPerRefresh     prometheus.Histogram
	catalogFetchDuration   *prometheus.HistogramVec

	// Activity Feed Metrics
	feedPagesTotal        *prometheus.CounterVec
	feedEntriesTotal      prometheus.Counter
	feedDetailPlaceholder *prometheus.CounterVec

	// Flow Metrics
	messageAuthTotal   *prometheus.CounterVec
	fundsRequestsTotal *prometheus.CounterVec
	staleResultsTotal  *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
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
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures returned per getSignaturesForAddress call",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
			[]string{"endpoint"},
		),

		// Snapshot Metrics
		snapshotRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_refreshes_total",
				Help: "Total number of balance and holdings refreshes by kind and status",
			},
			[]string{"kind", "status"},
		),
		holdingsPerRefresh: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snapshot_holdings_per_refresh",
				Help:    "Number of token holdings produced per successful refresh",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		catalogFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "token_catalog_fetch_duration_seconds",
				Help:    "Duration of token catalog downloads in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"status"},
		),

		// Activity Feed Metrics
		feedPagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_feed_pages_total",
				Help: "Total number of activity feed page loads by outcome",
			},
			[]string{"outcome"},
		),
		feedEntriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "activity_feed_entries_total",
				Help: "Total number of summaries appended to activity feeds",
			},
		),
		feedDetailPlaceholder: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_feed_detail_placeholders_total",
				Help: "Total number of summaries rendered without transaction details",
			},
			[]string{"reason"},
		),

		// Flow Metrics
		messageAuthTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "message_auth_total",
				Help: "Total number of message sign and verify operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		fundsRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funds_requests_total",
				Help: "Total number of airdrop and transfer requests by outcome",
			},
			[]string{"kind", "outcome"},
		),
		staleResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stale_results_discarded_total",
				Help: "Total number of results discarded because the connected identity changed",
			},
			[]string{"operation"},
		),

		// HTTP Metrics
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
			[]string{"wallet_address"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"wallet_address", "event_type"},
		),

		// NATS Metrics
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

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Snapshot metric helpers

// RecordSnapshotRefresh records a balance or holdings refresh.
func (m *Metrics) RecordSnapshotRefresh(kind string, err error) {
	m.snapshotRefreshesTotal.WithLabelValues(kind, errorStatus(err)).Inc()
}

// RecordHoldings records the number of holdings produced by a refresh.
func (m *Metrics) RecordHoldings(count int) {
	m.holdingsPerRefresh.Observe(float64(count))
}

// RecordCatalogFetch records a token catalog download.
func (m *Metrics) RecordCatalogFetch(duration float64, err error) {
	m.catalogFetchDuration.WithLabelValues(errorStatus(err)).Observe(duration)
}

// Activity feed metric helpers

// RecordFeedPage records a page load. Outcome is one of
// "appended", "exhausted" or "error".
func (m *Metrics) RecordFeedPage(outcome string, entries int) {
	m.feedPagesTotal.WithLabelValues(outcome).Inc()
	if entries > 0 {
		m.feedEntriesTotal.Add(float64(entries))
	}
}

// RecordDetailPlaceholder records a summary rendered from signature metadata only.
func (m *Metrics) RecordDetailPlaceholder(reason string) {
	m.feedDetailPlaceholder.WithLabelValues(reason).Inc()
}

// Flow metric helpers

// RecordMessageAuth records a sign or verify outcome.
func (m *Metrics) RecordMessageAuth(operation, outcome string) {
	m.messageAuthTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordFundsRequest records an airdrop or transfer outcome.
func (m *Metrics) RecordFundsRequest(kind, outcome string) {
	m.fundsRequestsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStaleResult records a result dropped after an identity change.
func (m *Metrics) RecordStaleResult(operation string) {
	m.staleResultsTotal.WithLabelValues(operation).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(walletAddress string, delta float64) {
	m.sseActiveConnections.WithLabelValues(walletAddress).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(walletAddress, eventType string) {
	m.sseEventsSent.WithLabelValues(walletAddress, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func errorStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

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
