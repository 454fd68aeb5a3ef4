package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion metrics
	batchesIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_batches_ingested_total",
			Help: "Total number of activity batches stored",
		},
	)

	duplicateBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_batches_duplicate_total",
			Help: "Total number of batches rejected by the idempotency check",
		},
	)

	eventsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_events_ingested_total",
			Help: "Total number of activity events stored",
		},
	)

	eventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_rejected_total",
			Help: "Total number of events rejected during batch validation",
		},
		[]string{"type"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activity_batch_size",
			Help:    "Number of accepted events per stored batch",
			Buckets: []float64{1, 5, 10, 20, 50, 100},
		},
	)

	// Outbox relay metrics
	outboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_outbox_published_total",
			Help: "Total number of outbox messages published to RabbitMQ",
		},
		[]string{"routing_key"},
	)

	outboxRetriedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_outbox_retried_total",
			Help: "Total number of outbox publish attempts scheduled for retry",
		},
	)

	outboxDeadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_outbox_dead_total",
			Help: "Total number of outbox messages marked dead after exhausting retries",
		},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "activity_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "path"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// RecordBatchIngested records a stored batch and its accepted event count.
func RecordBatchIngested(accepted int) {
	batchesIngestedTotal.Inc()
	eventsIngestedTotal.Add(float64(accepted))
	batchSize.Observe(float64(accepted))
}

// RecordDuplicateBatch records a batch dropped by the idempotency check.
func RecordDuplicateBatch() {
	duplicateBatchesTotal.Inc()
}

// RecordEventRejected records a single event dropped during validation.
func RecordEventRejected(eventType string) {
	eventsRejectedTotal.WithLabelValues(eventType).Inc()
}

// RecordOutboxPublished records a message published by the outbox relay.
func RecordOutboxPublished(routingKey string) {
	outboxPublishedTotal.WithLabelValues(routingKey).Inc()
}

// RecordOutboxRetry records an outbox publish attempt scheduled for retry.
func RecordOutboxRetry() {
	outboxRetriedTotal.Inc()
}

// RecordOutboxDead records a message that exhausted its retry budget.
func RecordOutboxDead() {
	outboxDeadTotal.Inc()
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRateLimited records a request rejected by the rate limiter.
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// MetricsHandler returns the Prometheus metrics handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
