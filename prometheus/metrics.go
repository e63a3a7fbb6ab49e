package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counter
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mealorder_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Registration counter
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mealorder_register_total",
			Help: "Total number of student registrations",
		},
	)

	// Order operation counter
	OrderOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealorder_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation"}, // "create", "transition", "serve", "cancel", "list"
	)

	// Order transition counter by target status
	OrderTransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealorder_order_transitions_total",
			Help: "Total number of order status transitions by target status",
		},
		[]string{"status"},
	)

	// Ordering window rejection counter by rule
	WindowRejectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealorder_window_rejections_total",
			Help: "Total number of orders rejected by the ordering window guard",
		},
		[]string{"rule"}, // "cutoff", "min_advance", "max_advance", "weekend"
	)

	// Menu operation counter
	MenuOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealorder_menu_operations_total",
			Help: "Total number of menu catalog operations",
		},
		[]string{"operation"}, // "list", "create", "update", "set_active", "availability"
	)

	// Authentication/authorization error counter
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealorder_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"},
	)

	// Forced logout counter
	ForceLogoutCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mealorder_force_logout_total",
			Help: "Total number of all-student session revocations",
		},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealorder_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mealorder_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mealorder_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active universities
	ActiveUniversitiesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mealorder_active_universities",
			Help: "Number of currently active universities",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mealorder_info",
			Help: "Information about the meal ordering service",
		},
		[]string{"version"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(OrderOperationCounter)
	prometheus.MustRegister(OrderTransitionCounter)
	prometheus.MustRegister(WindowRejectionCounter)
	prometheus.MustRegister(MenuOperationCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(ForceLogoutCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(ActiveUniversitiesGauge)
	prometheus.MustRegister(InfoGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// RecordOrderOperation records an order operation by name
func RecordOrderOperation(operation string) {
	OrderOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordOrderTransition records a transition to the given target status
func RecordOrderTransition(status string) {
	OrderTransitionCounter.With(prometheus.Labels{"status": status}).Inc()
}

// RecordWindowRejection records an ordering window rejection by rule
func RecordWindowRejection(rule string) {
	WindowRejectionCounter.With(prometheus.Labels{"rule": rule}).Inc()
}

// RecordMenuOperation records a catalog operation by name
func RecordMenuOperation(operation string) {
	MenuOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordAuthError records an authentication/authorization error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
