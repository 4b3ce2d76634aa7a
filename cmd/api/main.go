package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/cart"
	"github.com/ariefcatur/go-marketplace/internal/catalog"
	"github.com/ariefcatur/go-marketplace/internal/config"
	"github.com/ariefcatur/go-marketplace/internal/events"
	"github.com/ariefcatur/go-marketplace/internal/httpx"
	"github.com/ariefcatur/go-marketplace/internal/invoices"
	kafkax "github.com/ariefcatur/go-marketplace/internal/kafka"
	"github.com/ariefcatur/go-marketplace/internal/logx"
	"github.com/ariefcatur/go-marketplace/internal/metrics"
	"github.com/ariefcatur/go-marketplace/internal/notifications"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/payments"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/ariefcatur/go-marketplace/internal/slots"
	"github.com/ariefcatur/go-marketplace/internal/stats"
	"github.com/ariefcatur/go-marketplace/internal/tracing"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/ariefcatur/go-marketplace/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logx.New(cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer; its loop outlives ctx so it can drain after shutdown
	prodCtx, prodCancel := context.WithCancel(context.Background())
	defer prodCancel()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(prodCtx)
	publisher := events.NewPublisher(prod, cfg.ServiceName)

	reg := prometheus.DefaultRegisterer
	business := metrics.NewBusiness(reg)

	var gateway payments.Gateway = payments.Disabled{}
	if cfg.StripeSecretKey != "" {
		gateway = payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set, card payments disabled")
	}

	// Services
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	userSvc := users.NewService(users.NewRepo(db), issuer)
	catalogSvc := catalog.NewService(catalog.NewRepo(db))
	cartStore := cart.NewRedisStore(rdb)
	cartSvc := cart.NewService(cartStore, catalogSvc, cfg.Currency)
	slotSvc := slots.NewService(slots.NewRepo(db), catalogSvc, publisher, cfg.BookingHoldTTL,
		slots.WithMetrics(business))
	statusCache := orders.NewRedisCache(rdb)
	orderSvc := orders.NewService(orders.NewRepo(db), cartStore, statusCache, publisher,
		cfg.Currency, cfg.InvoiceDue(), orders.WithMetrics(business))
	invoiceSvc := invoices.NewService(invoices.NewRepo(db), gateway, invoices.NewRedisGuard(rdb),
		statusCache, publisher, invoices.WithMetrics(business))
	notificationSvc := notifications.NewService(notifications.NewRepo(db))
	statsSvc := stats.NewService(stats.NewRepo(db), stats.NewRedisCache(rdb), cfg.Currency)

	sweeper := worker.NewSweeper(cfg.SweepInterval,
		worker.Job{Name: "expire-bookings", Run: slotSvc.Sweep},
		worker.Job{Name: "overdue-invoices", Run: invoiceSvc.MarkOverdue},
	)

	router := httpx.NewRouter(httpx.RouterConfig{
		Service:     cfg.ServiceName,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Verifier:    issuer,
		Metrics:     metrics.NewServerMetrics(reg, cfg.ServiceName),
		Gatherer:    prometheus.DefaultGatherer,
		Ready: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return err
			}
			return redisx.Ping(ctx, rdb)
		},
	}, httpx.Handlers{
		Auth:          &httpx.AuthHandler{Users: userSvc},
		Products:      &httpx.ProductsHandler{Catalog: catalogSvc, Slots: slotSvc},
		Cart:          &httpx.CartHandler{Cart: cartSvc},
		Slots:         &httpx.SlotsHandler{Slots: slotSvc},
		Orders:        &httpx.OrdersHandler{Orders: orderSvc},
		Invoices:      &httpx.InvoicesHandler{Invoices: invoiceSvc},
		Notifications: &httpx.NotificationsHandler{Notifications: notificationSvc},
		Admin:         &httpx.AdminHandler{Users: userSvc, Stats: statsSvc, Maintenance: sweeper},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return sweeper.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	prod.Close() // flush queued events
	prod.WaitClosed()
	return err
}
