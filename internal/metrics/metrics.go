// Package metrics provides Prometheus instrumentation for the BetGuard service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "betguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "betguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WebhookEventsTotal counts inbound bank webhook events by outcome.
	// Outcomes: processed, duplicate, whitelisted, ignored, invalid_signature,
	// malformed, error.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "betguard",
			Name:      "webhook_events_total",
			Help:      "Total inbound webhook events by processing outcome.",
		},
		[]string{"outcome"},
	)

	// SignatureFailuresTotal counts rejected webhook signatures.
	SignatureFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "betguard",
		Name:      "signature_failures_total",
		Help:      "Total webhook deliveries rejected for a missing or invalid signature.",
	})

	// ClassificationsTotal counts classifier verdicts.
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "betguard",
			Name:      "classifications_total",
			Help:      "Total transaction classifications by verdict.",
		},
		[]string{"verdict"}, // gambling, clean, failed
	)

	// AlertsTotal counts intervention alerts fired.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "betguard",
			Name:      "alerts_total",
			Help:      "Total intervention alerts by gambling type.",
		},
		[]string{"gambling_type"},
	)

	// NotifierDeliveriesTotal counts outbound alert notification attempts by result.
	NotifierDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "betguard",
			Name:      "notifier_deliveries_total",
			Help:      "Total guardian notification deliveries by result.",
		},
		[]string{"result"},
	)

	// InferenceDuration observes classifier forward-pass latency.
	InferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "betguard",
		Name:      "inference_duration_seconds",
		Help:      "Classifier forward-pass duration in seconds.",
		Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	// ExtractionDuration observes feature-extraction latency.
	ExtractionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "betguard",
		Name:      "feature_extraction_duration_seconds",
		Help:      "Feature extraction duration in seconds.",
		Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
	})

	// ModelFallback is 1 when the classifier is serving an untrained fallback model.
	ModelFallback = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "betguard",
		Name:      "model_fallback",
		Help:      "1 when the service is serving the untrained fallback model, 0 otherwise.",
	})

	// ModelTrainingsTotal counts completed training runs by result.
	ModelTrainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "betguard",
			Name:      "model_trainings_total",
			Help:      "Total model training runs by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected operator stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "betguard",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "betguard", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "betguard", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "betguard", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "betguard", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WebhookEventsTotal,
		SignatureFailuresTotal,
		ClassificationsTotal,
		AlertsTotal,
		NotifierDeliveriesTotal,
		InferenceDuration,
		ExtractionDuration,
		ModelFallback,
		ModelTrainingsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
