package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	contact "github.com/nazarhussain/portfolio-contact/internal"
)

func main() {
	logger := newLogger(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	config, err := contact.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	store, closeStore, err := newWindowStore(config)
	if err != nil {
		logger.Error("rate limit store unavailable", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	limiter := contact.NewRateLimiter(store, config.RateMax, config.RateWindow)
	dispatcher := contact.NewDispatcher(config, contact.NewTransport(config))

	s := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           newRouter(logger, contact.NewHandler(config, limiter, dispatcher)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", "err", err)
		}
	}()

	logger.Info("contact service listening",
		"addr", config.ListenAddr,
		"transport", config.Transport,
		"test_mode", config.TestMode,
		"development", config.Development,
		"allowed_origins", len(config.AllowedOrigins),
		"rate_limit", fmt.Sprintf("%d/%s", config.RateMax, config.RateWindow),
		"shared_rate_limit", config.RateRedisURL != "",
	)

	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newRouter mounts the contact endpoint and /health behind request logging
// and the security headers.
func newRouter(logger *slog.Logger, contactHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", contact.HandleHealth)
	mux.Handle("/api/contact-form", contactHandler)
	return loggingMiddleware(logger, contact.SecurityHeaders(mux))
}

// newWindowStore returns the shared Redis store when configured, otherwise the
// per-process memory store.
func newWindowStore(config *contact.Config) (contact.WindowStore, func(), error) {
	if config.RateRedisURL == "" {
		return contact.NewMemoryWindowStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(config.RateRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse RATE_LIMIT_REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	store := contact.NewRedisWindowStore(rdb)
	if err := store.Ping(context.Background()); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return store, func() { _ = rdb.Close() }, nil
}

// loggingMiddleware gives every request a logger in its context and logs one
// completion line whose level follows the response status.
func loggingMiddleware(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := base.With(
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := contact.ContextWithLogger(r.Context(), reqLogger)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				reqLogger.Error("panic recovered",
					"err", p,
					"type", fmt.Sprintf("%T", p),
					"stack", string(debug.Stack()),
				)
				rec.WriteHeader(http.StatusInternalServerError)
			}
			reqLogger.Log(ctx, levelForStatus(rec.status), "request completed",
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", rec.bytes,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// statusRecorder remembers the first status written and counts body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// newLogger installs the process logger. format "json" selects the JSON
// handler; anything else is text.
func newLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLevel accepts the slog level names plus "warning"; unknown values mean info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
