// Package main is the admission-control gateway for the bibbi-site API.
// It fronts the backend with response caching and sliding-window rate
// limiting, backed by in-process stores or a shared Redis instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TaskifaiDavid/bibbi-site/internal/api"
	"github.com/TaskifaiDavid/bibbi-site/internal/cache"
	"github.com/TaskifaiDavid/bibbi-site/internal/config"
	"github.com/TaskifaiDavid/bibbi-site/internal/logger"
	"github.com/TaskifaiDavid/bibbi-site/internal/models"
	"github.com/TaskifaiDavid/bibbi-site/internal/observability"
	"github.com/TaskifaiDavid/bibbi-site/internal/ratelimit"
	"github.com/TaskifaiDavid/bibbi-site/internal/version"

	"github.com/redis/go-redis/v9"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	// Load configuration; invalid policies must stop startup here.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, version.GetInfo())
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, version.GetInfo())
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize stores: shared Redis when configured, in-process otherwise.
	windowStore, cacheStore, redisPing, pingCloser := initializeStores(cfg)
	defer windowStore.Close()
	defer cacheStore.Close()
	if pingCloser != nil {
		defer pingCloser.Close()
	}

	// Wrap stores with instrumentation if metrics are enabled
	if cfg.Metrics.Enabled {
		iw, err := observability.NewInstrumentedWindowStore(windowStore)
		if err != nil {
			slog.Error("Failed to instrument window store", "error", err)
			os.Exit(1)
		}
		windowStore = iw

		ic, err := observability.NewInstrumentedCacheStore(cacheStore)
		if err != nil {
			slog.Error("Failed to instrument cache store", "error", err)
			os.Exit(1)
		}
		cacheStore = ic
	}

	// Build the upstream proxy the pipeline wraps
	proxy, err := api.NewUpstreamProxy(cfg.Upstream, log)
	if err != nil {
		slog.Error("Failed to build upstream proxy", "error", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(proxy, redisPing)

	var responseCache *cache.ResponseCache
	if cfg.Cache.Enabled {
		responseCache = cache.NewResponseCache(cacheStore, cfg.Cache, log)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(windowStore, cfg.RateLimit, log)
	}

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router, err := api.SetupRoutes(handlers, responseCache, limiter, routeOpts...)
	if err != nil {
		slog.Error("Failed to setup routes", "error", err)
		os.Exit(1)
	}

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting gateway",
			"addr", server.Addr,
			"upstream", cfg.Upstream.URL,
			"shared_backend", cfg.Redis.Enabled(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Gateway shutdown complete")
}

// initializeStores creates the window and cache stores. With a Redis address
// configured both stores share one backend so every gateway replica sees the
// same windows and cache entries; without one, state is per-process. The
// returned closer owns the health probe's client and must be closed on
// shutdown alongside the stores.
func initializeStores(cfg *models.Config) (ratelimit.WindowStore, cache.Store, func(ctx context.Context) error, io.Closer) {
	if !cfg.Redis.Enabled() {
		slog.Info("Using in-process stores", "cache_max_size", cfg.Cache.MaxSize)
		return ratelimit.NewMemoryWindowStore(5 * time.Minute),
			cache.NewMemoryStore(cfg.Cache.MaxSize),
			nil,
			nil
	}

	newClient := func() *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
	}

	slog.Info("Using shared Redis stores", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	pingClient := newClient()
	ping := func(ctx context.Context) error {
		return pingClient.Ping(ctx).Err()
	}

	// Separate clients so closing one store never breaks the other.
	return ratelimit.NewRedisWindowStore(newClient()),
		cache.NewRedisStore(newClient(), slog.Default()),
		ping,
		pingClient
}
