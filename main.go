package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/inlandnav/euris-resources/internal/adapters/catalog"
	"github.com/inlandnav/euris-resources/internal/config"
	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/ports"
	"github.com/inlandnav/euris-resources/internal/ratelimiting"
	"github.com/inlandnav/euris-resources/internal/reporting"
	"github.com/inlandnav/euris-resources/internal/service"
	"github.com/inlandnav/euris-resources/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback"
)

const serviceName = "euris-resources"
const serviceVersion = "1.0.0"

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		fail("Failed to load .env", "error", err.Error())
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	if config.OTelEnabled() {
		shutdownOTel, err := telemetry.SetupOTelSDK(ctx, serviceName, serviceVersion)
		if err != nil {
			fail("Failed to initialize OpenTelemetry", "error", err.Error())
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOTel(shutdownCtx); err != nil {
				logger.Warn("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	httpClient := catalog.NewRetryingHTTPClient(10*time.Second, 3, logger)

	svc, err := service.New(config, httpClient, logger)
	if err != nil {
		fail("Failed to initialize service", "error", err.Error())
	}
	defer func() {
		if err := svc.Shutdown(); err != nil {
			logger.Warn("Failed to shut down service", "error", err.Error())
		}
	}()
	svc.Invalidator.Start()

	allowedOrigins, err := ports.NewDomainSuffixes(config.AllowedOrigins()...)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	ipLimiter, stopLimiter := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(4),
		ratelimiting.BurstSize(240),
	)
	defer stopLimiter()
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
		ipLimiter,
		ratelimiting.NewForwardedIPKeyFunc(config.TrustedProxyHops()),
	)

	aggregator := svc.Aggregator
	mux := http.NewServeMux()

	mux.HandleFunc(
		"OPTIONS /v1/resources",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"GET /v1/resources",
		ports.MakeListResourcesHandler(
			aggregator.QueryRegion,
			aggregator.QueryRadius,
			config.QueryTimeout(),
			allowedOrigins,
			logger,
			sentryMiddleware,
			ipRateLimiter,
		),
	)

	mux.HandleFunc(
		"OPTIONS /v1/resources/{key}",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"GET /v1/resources/{key}",
		ports.MakeGetResourceHandler(
			aggregator.QueryOne,
			config.QueryTimeout(),
			allowedOrigins,
			logger,
			sentryMiddleware,
			ipRateLimiter,
		),
	)
	readOnly := ports.MakeReadOnlyHandler(allowedOrigins, logger, sentryMiddleware, ipRateLimiter)
	mux.HandleFunc("PUT /v1/resources/{key}", readOnly)
	mux.HandleFunc("POST /v1/resources/{key}", readOnly)
	mux.HandleFunc("DELETE /v1/resources/{key}", readOnly)

	if config.AdminToken() != "" {
		mux.HandleFunc(
			"POST /v1/cache/invalidate/{key}",
			ports.MakeInvalidateResourceHandler(
				aggregator.Invalidate,
				config.AdminToken(),
				allowedOrigins,
				logger,
				sentryMiddleware,
				ipRateLimiter,
			),
		)
	} else {
		logger.Info("Cache invalidation endpoint disabled, EURIS_ADMIN_TOKEN is not set")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port()),
		Handler:           otelhttp.NewHandler(mux, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down server", "error", err.Error())
		}
	}()

	logger.Info("Init complete")
	err = server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		logger.Info("Server shutdown")
	} else {
		fail("Server error", "error", err.Error())
	}
}
