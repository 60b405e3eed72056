package metrics

import (
	"time"

	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is created once and passed to every component that records metrics.
type Metrics struct {
	// Codec Metrics
	decodeTotal    *prometheus.CounterVec
	decodeDuration *prometheus.HistogramVec
	decodeErrors   *prometheus.CounterVec
	encodeTotal    *prometheus.CounterVec

	// Progress Tracking Metrics
	progressTransitions *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Ingest Metrics
	activityDuration *prometheus.HistogramVec
	ingestedEvents   *prometheus.CounterVec
}

var _ wire.Observer = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Codec Metrics
		decodeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wire_decode_total",
				Help: "Total number of top-level decodes by family, variant and status",
			},
			[]string{"family", "variant", "status"},
		),
		decodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wire_decode_duration_seconds",
				Help:    "Duration of top-level decodes in seconds",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
			},
			[]string{"family"},
		),
		decodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wire_decode_errors_total",
				Help: "Total number of rejected decodes by family and error kind",
			},
			[]string{"family", "kind"},
		),
		encodeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wire_encode_total",
				Help: "Total number of top-level encodes by family, variant and status",
			},
			[]string{"family", "variant", "status"},
		),

		// Progress Tracking Metrics
		progressTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_transitions_total",
				Help: "Total number of observed transaction progress transitions by classification",
			},
			[]string{"result"},
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
			[]string{"account"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"account", "event_type"},
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

		// Ingest Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_activity_duration_seconds",
				Help:    "Duration of ingest workflow activities in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"activity"},
		),
		ingestedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_total",
				Help: "Total number of events handled by ingest activities by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
	}
}

// Codec metric helpers

// ObserveDecode implements wire.Observer.
func (m *Metrics) ObserveDecode(family, variant string, duration time.Duration, err error) {
	m.decodeTotal.WithLabelValues(family, variant, errorToStatus(err)).Inc()
	m.decodeDuration.WithLabelValues(family).Observe(duration.Seconds())
	if err != nil {
		m.decodeErrors.WithLabelValues(family, wire.ErrorKind(err)).Inc()
	}
}

// ObserveEncode implements wire.Observer.
func (m *Metrics) ObserveEncode(family, variant string, _ time.Duration, err error) {
	m.encodeTotal.WithLabelValues(family, variant, errorToStatus(err)).Inc()
}

// Progress tracking metric helpers

// RecordProgressTransition records how the tracker classified a progress update.
func (m *Metrics) RecordProgressTransition(result string) {
	m.progressTransitions.WithLabelValues(result).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(account string, delta float64) {
	m.sseActiveConnections.WithLabelValues(account).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(account, eventType string) {
	m.sseEventsSent.WithLabelValues(account, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Ingest metric helpers

// RecordActivityDuration records how long an ingest activity ran.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// RecordIngestedEvents adds n events to the counter of a stage and outcome,
// e.g. ("archive", "duplicate").
func (m *Metrics) RecordIngestedEvents(stage, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.ingestedEvents.WithLabelValues(stage, outcome).Add(float64(n))
}

// Helper functions

func errorToStatus(err error) string {
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
