package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Business metrics
	OffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_offers_total",
			Help: "Total number of offers by terminal outcome",
		},
		[]string{"service", "outcome"},
	)

	OpenOffersGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_open_offers",
			Help: "Current number of offers in OPEN state",
		},
		[]string{"service"},
	)

	AcceptAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_accept_attempts_total",
			Help: "Total number of accept attempts by result",
		},
		[]string{"service", "result"},
	)

	NearbySearchRadius = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_nearby_search_radius",
			Help:    "Ring distance at which nearby searches resolved",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"service", "role"},
	)

	// Sync worker metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_sync_runs_total",
			Help: "Total number of sync runs by result",
		},
		[]string{"service", "result"},
	)

	SyncDriversPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_sync_drivers_persisted_total",
			Help: "Total driver positions persisted durably",
		},
		[]string{"service", "status"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "location_sync_run_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// Store metrics
	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"service", "operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of ephemeral store operations",
		},
		[]string{"service", "operation", "status"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"service", "queue", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// RecordOfferOutcome records a terminal offer transition
func RecordOfferOutcome(service, outcome string) {
	OffersTotal.WithLabelValues(service, outcome).Inc()
	OpenOffersGauge.WithLabelValues(service).Dec()
}

// RecordAcceptAttempt records one accept call by result
func RecordAcceptAttempt(service, result string) {
	AcceptAttemptsTotal.WithLabelValues(service, result).Inc()
}

// RecordSyncRun records one sync run
func RecordSyncRun(service string, failed int, duration time.Duration) {
	result := "success"
	if failed > 0 {
		result = "partial"
	}
	SyncRunsTotal.WithLabelValues(service, result).Inc()
	SyncRunDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(service, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(service, queue string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RabbitMQMessagesPublished.WithLabelValues(service, queue, status).Inc()
}
