package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/annotator/internal/cache"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/config"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/db"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/health"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/logging"
	"github.com/Kocoro-lab/Shannon/go/annotator/internal/tracing"
)

func main() {
	ctx := context.Background()

	loader := config.NewLoader(config.Path())
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Only the log level is applied live; everything else needs a restart.
	loader.Watch(logger, func(next *config.Config) {
		lvl, err := logging.ParseLevel(next.Logging.Level)
		if err != nil {
			logger.Warn("Ignoring invalid log level", zap.String("level", next.Logging.Level))
			return
		}
		if lvl != level.Level() {
			level.SetLevel(lvl)
			logger.Info("Log level changed", zap.String("level", lvl.String()))
		}
	})

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}

	hm := health.NewManager(logger)

	var answerCache httpapi.ParsedCache
	if cfg.Cache.Enabled {
		c, err := cache.Dial(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL, logger)
		if err != nil {
			// The cache is optional; run without it.
			logger.Warn("Parsed answer cache unavailable", zap.Error(err))
		} else {
			defer c.Close()
			answerCache = c
			_ = hm.RegisterChecker(health.NewRedisHealthChecker(c, logger))
		}
	}

	var answerStore httpapi.AnswerStore
	if cfg.Store.Enabled {
		dbClient, err := db.NewClient(cfg.Store, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database client", zap.Error(err))
		}
		defer dbClient.Close()

		schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = dbClient.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to prepare answer history schema", zap.Error(err))
		}
		answerStore = dbClient
		_ = hm.RegisterChecker(health.NewDatabaseHealthChecker(dbClient, logger))
	}

	mux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)

	mws := []httpapi.Middleware{httpapi.NewTracingMiddleware(logger).Middleware}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		mws = append(mws, httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger).Middleware)
	}
	httpapi.NewAnswerHandler(answerCache, answerStore, cfg.Server.MaxBodyBytes, logger).RegisterRoutes(mux, mws...)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Annotator HTTP server listening",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("cache", answerCache != nil),
			zap.Bool("store", answerStore != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Metrics server listening", zap.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down annotator service")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", zap.Error(err))
		}
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
}
