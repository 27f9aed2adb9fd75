// Package main is the entrypoint for the DermaScan API server.
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

	"github.com/dermascan/dermascan/internal/auth"
	"github.com/dermascan/dermascan/internal/cache"
	"github.com/dermascan/dermascan/internal/config"
	"github.com/dermascan/dermascan/internal/handler"
	"github.com/dermascan/dermascan/internal/imagestore"
	"github.com/dermascan/dermascan/internal/imaging"
	"github.com/dermascan/dermascan/internal/inference"
	"github.com/dermascan/dermascan/internal/metrics"
	"github.com/dermascan/dermascan/internal/middleware"
	"github.com/dermascan/dermascan/internal/repository"
	"github.com/dermascan/dermascan/internal/server"
	"github.com/dermascan/dermascan/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel, cfg.LogFormat)

	repo, err := repository.New(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database",
			slog.String("error", err.Error()),
			slog.String("path", cfg.DatabasePath),
		)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DatabasePath)

	// Redis is only needed for rate limiting.
	var cacheClient *cache.Cache
	if cfg.RateLimitActive() {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			_ = repo.Close()
			os.Exit(1)
		}
		logger.Info("connected to Redis")
	} else {
		logger.Info("rate limiting disabled")
	}

	var store *imagestore.Store
	if cfg.S3.Enabled() {
		client, err := imagestore.NewS3Client(ctx, cfg.S3)
		if err != nil {
			logger.Error("failed to configure image archive", "error", err)
			os.Exit(1)
		}
		store = imagestore.New(client, cfg.S3.Bucket, logger)
		logger.Info("image archive enabled", "bucket", cfg.S3.Bucket)
	} else {
		store = imagestore.New(nil, "", logger)
	}

	classifier, err := inference.New(cfg.Inference, logger)
	if err != nil {
		logger.Error("failed to configure inference provider", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewInMemory()
	tokens := auth.NewTokenManager(cfg.SessionSecret, cfg.SessionTTL)

	accounts, err := service.NewAccountService(repo, tokens, auth.NewHasher(auth.DefaultParams), recorder, logger)
	if err != nil {
		logger.Error("failed to initialize account service", "error", err)
		os.Exit(1)
	}
	analysis := service.NewAnalysisService(repo, classifier, cfg.Inference.Timeout, imaging.NewValidator(cfg.MaxImageBytes), store, recorder, logger)

	deps := routerDeps{
		cfg:      cfg,
		logger:   logger,
		db:       repo,
		accounts: accounts,
		analysis: analysis,
		model:    analysis.ModelName(),
		recorder: recorder,
	}
	if cacheClient != nil {
		deps.limiter = cacheClient
		deps.cache = cacheClient
	}

	srv := server.New(setupRouter(deps), server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("database", func(context.Context) error { return repo.Close() })
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"provider", cfg.Inference.Provider,
		"model", classifier.Model(),
		"inference_budget", cfg.Inference.Timeout,
		"image_archive", store.Archiving(),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger builds the process logger and installs it as the slog default.
func initLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var h slog.Handler
	if format == "json" {
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
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// routerDeps collects what setupRouter wires together.
// limiter and cache stay nil when Redis is not configured.
type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       handler.HealthChecker
	cache    handler.HealthChecker
	limiter  middleware.RateLimiter
	accounts *service.AccountService
	analysis *service.AnalysisService
	model    string
	recorder *metrics.InMemoryRecorder
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	h := handler.New()
	healthHandler := handler.NewHealthHandler(d.db, d.cache, d.model)
	metricsHandler := handler.NewMetricsHandler(d.recorder)
	authHandler := handler.NewAuthHandler(d.accounts, d.logger)
	analysisHandler := handler.NewAnalysisHandler(d.analysis, d.cfg.MaxImageBytes, d.logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = d.cfg.GetCORSAllowedOrigins()

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = d.cfg.IsDevelopment()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))

	sessionCfg := middleware.SessionConfig{
		Logger:        d.logger,
		Authenticator: d.accounts,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  d.logger,
		Limiter: d.limiter,
		Metrics: d.recorder,
		Enabled: d.limiter != nil,
		RPM:     d.cfg.RateLimitRPM,
		Burst:   d.cfg.RateLimitBurst,
	}

	r.Get("/", h.Root)
	r.Get("/health", healthHandler.Health)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	r.With(
		middleware.RateLimitIP(rateLimitCfg),
		middleware.OptionalSession(sessionCfg),
	).Post("/analyze", analysisHandler.Analyze)

	r.With(middleware.RequireSession(sessionCfg)).Get("/history", analysisHandler.History)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// redactURL drops the password from a connection URL.
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
