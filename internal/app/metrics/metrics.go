package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "island_rides",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "island_rides",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "island_rides",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	bookingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "island_rides",
			Subsystem: "bookings",
			Name:      "events_total",
			Help:      "Booking lifecycle events by resulting status.",
		},
		[]string{"status"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "island_rides",
			Subsystem: "bookings",
			Name:      "conflicts_total",
			Help:      "Booking requests rejected for date overlap.",
		},
	)

	chatConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "island_rides",
			Subsystem: "chat",
			Name:      "connected_clients",
			Help:      "Currently connected WebSocket chat clients.",
		},
	)

	chatMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "island_rides",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Chat messages relayed through the hub.",
		},
	)

	loginLockouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "island_rides",
			Subsystem: "auth",
			Name:      "login_lockouts_total",
			Help:      "Login attempts rejected by the failed-login guard.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bookingEvents,
		bookingConflicts,
		chatConnections,
		chatMessages,
		loginLockouts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// The path label should be a route template, not a raw URL, to bound
// cardinality; callers pass it per request via the request context-free
// wrapper below.
func InstrumentHandler(routePattern func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := r.URL.Path
		if routePattern != nil {
			if p := routePattern(r); p != "" {
				path = p
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordBooking counts a booking lifecycle event.
func RecordBooking(status string) {
	bookingEvents.WithLabelValues(status).Inc()
}

// RecordBookingConflict counts a rejected overlapping booking request.
func RecordBookingConflict() {
	bookingConflicts.Inc()
}

// ChatClientConnected tracks hub connections.
func ChatClientConnected() { chatConnections.Inc() }

// ChatClientDisconnected tracks hub disconnections.
func ChatClientDisconnected() { chatConnections.Dec() }

// RecordChatMessage counts a relayed message.
func RecordChatMessage() { chatMessages.Inc() }

// RecordLoginLockout counts a guard rejection.
func RecordLoginLockout() { loginLockouts.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}
