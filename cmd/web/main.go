// Package main is the entrypoint for the DermaScan web UI.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dermascan/dermascan/internal/config"
	"github.com/dermascan/dermascan/internal/middleware"
	"github.com/dermascan/dermascan/internal/server"
	"github.com/dermascan/dermascan/internal/webui"
)

// formOverhead leaves room for multipart framing around the image.
const formOverhead = 64 << 10

func main() {
	cfg, err := config.LoadWeb()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel, cfg.LogFormat)

	ui, err := webui.New(webui.Options{
		API:            webui.NewAPIClient(cfg.APIBaseURL, cfg.APITimeout),
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SecureCookies:  !cfg.IsDevelopment(),
	})
	if err != nil {
		logger.Error("failed to initialize UI", "error", err)
		os.Exit(1)
	}

	srv := server.New(setupRouter(ui, cfg, logger), server.Options{
		Port:            cfg.WebPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	logger.Info("starting web UI",
		"port", cfg.WebPort,
		"api", cfg.APIBaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupRouter(ui *webui.UI, cfg *config.WebConfig, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	securityCfg := middleware.SecurityConfig{
		IsDevelopment:         cfg.IsDevelopment(),
		ContentSecurityPolicy: middleware.PageContentSecurityPolicy,
	}

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxUploadBytes + formOverhead))

	ui.Mount(r)

	return r
}

func initLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

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
