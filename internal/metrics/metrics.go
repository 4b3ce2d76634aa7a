package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests.",
		ConstLabels: prometheus.Labels{"service": service},
	}, []string{"handler", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "http_request_duration_ms",
		Help:        "HTTP request latency in milliseconds.",
		ConstLabels: prometheus.Labels{"service": service},
		Buckets:     []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Middleware labels by chi route pattern so path ids do not explode cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		handler := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				handler = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(handler, r.Method, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// Business counters shared by the domain services.
type Business struct {
	OrdersCreated    *prometheus.CounterVec
	Payments         *prometheus.CounterVec
	BookingsExpired  prometheus.Counter
	InvoicesOverdue  prometheus.Counter
	EventsConsumed   *prometheus.CounterVec
	NotificationSent *prometheus.CounterVec
}

func NewBusiness(reg prometheus.Registerer) *Business {
	b := &Business{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total", Help: "Orders created at checkout.",
		}, []string{"payment_method"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_reconciliations_total", Help: "Invoice payment reconciliation outcomes.",
		}, []string{"method", "result"}),
		BookingsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_expired_total", Help: "Temporary bookings released by the sweep.",
		}),
		InvoicesOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "invoices_overdue_total", Help: "Invoices moved to OVERDUE.",
		}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_consumed_total", Help: "Domain events handled by consumers.",
		}, []string{"event_type", "result"}),
		NotificationSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_sent_total", Help: "Notifications delivered per channel.",
		}, []string{"channel", "result"}),
	}
	reg.MustRegister(b.OrdersCreated, b.Payments, b.BookingsExpired, b.InvoicesOverdue, b.EventsConsumed, b.NotificationSent)
	return b
}

// NewNopBusiness returns counters registered nowhere.
func NewNopBusiness() *Business {
	return NewBusiness(prometheus.NewRegistry())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
