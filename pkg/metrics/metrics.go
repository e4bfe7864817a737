package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Booking service metrics
var (
	// Slots
	SlotsMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_slots_materialized_total",
			Help: "Slots created from the weekly schedule",
		},
		[]string{"trigger"}, // horizon, on_demand
	)

	SlotsCreatedManually = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_slots_created_manually_total",
			Help: "Slots created one by one by administrators",
		},
	)

	DaysSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_materialization_days_skipped_total",
			Help: "Days skipped by materialization because they already had slots",
		},
	)

	// Bookings
	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_bookings_created_total",
			Help: "Bookings committed by the reservation guard",
		},
	)

	BookingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_bookings_rejected_total",
			Help: "Booking requests rejected by the reservation guard",
		},
		[]string{"reason"},
	)

	BookingsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_bookings_cancelled_total",
			Help: "Bookings cancelled by their owners",
		},
	)

	AdminStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_admin_status_changes_total",
			Help: "Booking status overrides by administrators",
		},
		[]string{"status"},
	)

	// Notifications
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_notifications_sent_total",
			Help: "Notifications sent",
		},
		[]string{"type", "status"},
	)

	PendingReminders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_pending_reminders",
			Help: "Reminders scheduled in memory",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_events_published_total",
			Help: "Domain events published to the broker",
		},
		[]string{"key", "status"},
	)

	// Database
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_database_operations_total",
			Help: "Database operations",
		},
		[]string{"operation", "table", "status"},
	)

	// Runtime
	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_memory_usage_bytes",
			Help: "Allocated heap memory in bytes",
		},
	)

	GoroutinesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_goroutines_count",
			Help: "Number of goroutines",
		},
	)

	// HTTP
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiters",
		},
		[]string{"limiter"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordMaterialized adds n slots created by trigger
func RecordMaterialized(trigger string, n int) {
	if n > 0 {
		SlotsMaterialized.WithLabelValues(trigger).Add(float64(n))
	}
}

// RecordBookingRejected counts a rejection by its error code
func RecordBookingRejected(reason string) {
	BookingsRejected.WithLabelValues(reason).Inc()
}

// RecordNotification counts a notification attempt
func RecordNotification(notificationType, status string) {
	NotificationsSent.WithLabelValues(notificationType, status).Inc()
}

// RecordEvent counts a publish attempt
func RecordEvent(key, status string) {
	EventsPublished.WithLabelValues(key, status).Inc()
}

// RecordDatabaseOperation counts a database operation
func RecordDatabaseOperation(operation, table, status string) {
	DatabaseOperations.WithLabelValues(operation, table, status).Inc()
}

// RecordRateLimited counts a request rejected by limiter
func RecordRateLimited(limiter string) {
	RateLimitRejections.WithLabelValues(limiter).Inc()
}

// RecordHTTPRequest counts an HTTP request
func RecordHTTPRequest(method, route, status string) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}
