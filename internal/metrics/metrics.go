// Package metrics provides Prometheus instrumentation for the escrow engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersPlaced counts orders created through checkout.
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_orders_placed_total",
		Help: "Total orders created through checkout",
	})

	// CheckoutFailures counts failed sub-orders by reason.
	CheckoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_checkout_failures_total",
		Help: "Sub-orders that failed during checkout",
	}, []string{"reason"})

	// OrderTransitions counts state machine transitions by target status.
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_order_transitions_total",
		Help: "Order status transitions",
	}, []string{"status"})

	// TransactionsTotal counts ledger entries by type.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_transactions_total",
		Help: "Ledger transactions recorded",
	}, []string{"type"})

	// OpenDisputes tracks currently unresolved disputes.
	OpenDisputes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_open_disputes",
		Help: "Number of unresolved disputes",
	})

	// DisputesResolved counts resolutions by outcome.
	DisputesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_disputes_resolved_total",
		Help: "Disputes resolved",
	}, []string{"outcome"})

	// PayoutsTotal counts payout settlements by final status.
	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_payouts_total",
		Help: "Payouts settled by the worker",
	}, []string{"status"})

	// WebSocketClients tracks connected event-feed clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
