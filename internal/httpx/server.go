package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/metrics"
	"github.com/ariefcatur/go-marketplace/internal/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
)

type tokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type RouterConfig struct {
	Service     string
	CORSOrigins []string
	Timeout     time.Duration
	Verifier    tokenVerifier
	Metrics     *metrics.ServerMetrics
	Gatherer    prometheus.Gatherer
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type Handlers struct {
	Auth          *AuthHandler
	Products      *ProductsHandler
	Cart          *CartHandler
	Slots         *SlotsHandler
	Orders        *OrdersHandler
	Invoices      *InvoicesHandler
	Notifications *NotificationsHandler
	Admin         *AdminHandler
}

func NewRouter(cfg RouterConfig, h Handlers) *chi.Mux {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "Stripe-Signature"},
		MaxAge:         300,
	}))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(tracing.Middleware(cfg.Service))
	r.Use(middleware.Timeout(cfg.Timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "not ready", "err", err)
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "not ready"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	// public
	h.Auth.RegisterPublic(r)
	h.Products.RegisterPublic(r)
	h.Slots.RegisterPublic(r)
	h.Invoices.RegisterPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(cfg.Verifier))

		h.Auth.Register(r)
		h.Slots.Register(r)
		h.Orders.Register(r)
		h.Invoices.Register(r)
		h.Notifications.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleClient))
			h.Cart.Register(r)
			h.Slots.RegisterClient(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleProducer))
			h.Products.RegisterProducer(r)
			h.Slots.RegisterProducer(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			h.Admin.Register(r)
		})
	})
	return r
}

// requestLogger is chi's middleware.Logger rewritten on slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
