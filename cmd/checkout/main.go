package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/rmarques/storefront-checkout/internal/auth"
	"github.com/rmarques/storefront-checkout/internal/catalog"
	"github.com/rmarques/storefront-checkout/internal/checkout"
	"github.com/rmarques/storefront-checkout/internal/config"
	"github.com/rmarques/storefront-checkout/internal/messaging"
	"github.com/rmarques/storefront-checkout/internal/orders"
	"github.com/rmarques/storefront-checkout/internal/telemetry"
)

const (
	serviceName    = "checkout"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.FromEnv()
	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}
	if cfg.CatalogURL == "" {
		logger.Error("CATALOG_URL environment variable is required")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var lookup catalog.Lookup = catalog.NewClient(cfg.CatalogURL, httpClient)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		lookup = catalog.NewCachedLookup(lookup, redisClient, cfg.CatalogCacheTTL, logger)
	}

	var producer *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = messaging.NewProducer(cfg.KafkaBrokers, "order.placed")
		defer func() { _ = producer.Close() }()
	}

	metrics, err := telemetry.NewCheckoutMetrics()
	if err != nil {
		logger.Error("failed to create checkout metrics", "error", err)
		os.Exit(1)
	}

	repo := orders.NewRepository(db)
	guard := checkout.NewGuard(repo, cfg.AttemptStaleTTL, logger)
	writer := checkout.NewWriter(repo, logger)

	var publisher checkout.EventPublisher
	if producer != nil {
		publisher = producer
	}
	service := checkout.NewService(lookup, guard, writer, publisher, metrics, logger)
	handler := orders.NewHandler(service, repo, logger)

	authenticated := auth.Middleware(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.Handle("POST /orders/checkout", authenticated(telemetry.WithHTTPRoute(handler.HandleCheckout)))
	mux.Handle("GET /orders/history", authenticated(telemetry.WithHTTPRoute(handler.HandleHistory)))
	mux.Handle("GET /orders/reports/daily-revenue", authenticated(telemetry.WithHTTPRoute(handler.HandleDailyRevenue)))
	mux.Handle("GET /orders/{orderId}", authenticated(telemetry.WithHTTPRoute(handler.HandleGet)))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting checkout service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
