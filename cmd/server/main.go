package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yourusername/ratecell/api"
	"github.com/yourusername/ratecell/metrics"
	"github.com/yourusername/ratecell/pkg/ratecell"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := setupLogger(getEnv("LOG_LEVEL", "info"))

	port := getEnv("PORT", "8080")
	redisAddr := getEnv("REDIS_ADDR", "")

	opts := []ratecell.Option{}
	if *configPath != "" {
		opts = append(opts, ratecell.WithConfigFile(*configPath))
	}

	if redisAddr != "" {
		redisStore := ratecell.NewRedisStore(ratecell.RedisConfig{
			Addr:     redisAddr,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisStore.Ping(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", redisAddr).Msg("failed to connect to Redis")
		}
		logger.Info().Str("addr", redisAddr).Msg("using Redis store")
		opts = append(opts, ratecell.WithStore(redisStore))
	} else {
		logger.Warn().Msg("using in-memory store; buckets are not shared across instances")
	}

	limiter, err := ratecell.NewRateLimiter(opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create rate limiter")
	}
	stopCleanup := limiter.StartBackgroundCleanup()
	defer stopCleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	handler := api.NewHandler(limiter, m)

	mux := http.NewServeMux()
	mux.HandleFunc("/check", handler.Check)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("ratecell admission controller listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}

func setupLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","service":"ratecell"}`))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
