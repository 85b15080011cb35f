// Package main is the entrypoint for the event tracking API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/trackpoint/trackpoint/internal/cache"
	"github.com/trackpoint/trackpoint/internal/config"
	"github.com/trackpoint/trackpoint/internal/handler"
	"github.com/trackpoint/trackpoint/internal/ingest"
	"github.com/trackpoint/trackpoint/internal/metrics"
	"github.com/trackpoint/trackpoint/internal/middleware"
	"github.com/trackpoint/trackpoint/internal/repository"
	"github.com/trackpoint/trackpoint/internal/server"
	"github.com/trackpoint/trackpoint/internal/validator"
)

const version = "0.1.0"

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Validation schema; degrades to a permissive plan when missing
	plan := validator.LoadTrackingPlan(cfg.TrackingPlanPath, logger)
	eventValidator := validator.New(plan, logger)

	// Repositories
	eventRepo := repository.NewEventRepository(repo)
	adEventRepo := repository.NewAdEventRepository(repo)
	webVitalsRepo := repository.NewWebVitalsRepository(repo)
	errorEventRepo := repository.NewErrorEventRepository(repo)
	sessionRepo := repository.NewSessionRepository(repo)

	// Ingestion pipeline: each event type feeds at most one secondary table
	metricsRecorder := metrics.NewInMemory()
	pipeline := ingest.New(eventValidator, eventRepo,
		ingest.Writers(adEventRepo, webVitalsRepo, errorEventRepo, sessionRepo),
		metricsRecorder, logger)

	// Initialize handlers
	h := handler.New(version)
	healthHandler := handler.NewHealthHandler(repo, cacheClient, eventValidator)
	eventsHandler := handler.NewEventsHandler(pipeline, eventRepo, metricsRecorder, logger, cfg.IsProduction())
	sessionsHandler := handler.NewSessionsHandler(sessionRepo, logger)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	// Setup router
	r := setupRouter(h, healthHandler, eventsHandler, sessionsHandler, metricsHandler, cacheClient, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	eventsHandler *handler.EventsHandler,
	sessionsHandler *handler.SessionsHandler,
	metricsHandler *handler.MetricsHandler,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: cfg.IsDevelopment(),
	}))
	r.Use(middleware.CORS(corsConfig(cfg)))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Rate limit middleware configuration (write path only)
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:        logger,
		Cache:         cacheClient,
		IngestEnabled: cfg.RateLimitIngestEnabled,
		IngestRPS:     cfg.RateLimitIngestRPS,
		IngestBurst:   cfg.RateLimitIngestBurst,
	}

	// Root info endpoint
	r.Get("/", h.Root)

	// Metrics endpoint
	r.Get("/metrics", metricsHandler.Metrics)

	// Health endpoints
	r.Route("/api/health", func(r chi.Router) {
		r.Get("/", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)
		r.Get("/live", healthHandler.Live)
	})

	// Event endpoints
	r.Route("/api/events", func(r chi.Router) {
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/", eventsHandler.Collect)
		r.Get("/", eventsHandler.List)
		r.Get("/summary", eventsHandler.Summary)
		r.Delete("/", eventsHandler.Clear)
	})

	// Session endpoints
	r.Get("/api/sessions", sessionsHandler.List)

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

// corsConfig builds the CORS policy from configuration. Tracking scripts run
// on customer origins, so the allow-list is explicit.
func corsConfig(cfg *config.Config) middleware.CORSConfig {
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	return corsCfg
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
