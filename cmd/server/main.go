// Nebula Assistant session handoff hub.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/nebulatel/handoff/internal/api"
	"github.com/nebulatel/handoff/internal/config"
	"github.com/nebulatel/handoff/internal/hub"
	"github.com/nebulatel/handoff/internal/middleware"
	"github.com/nebulatel/handoff/internal/responder"
	"github.com/nebulatel/handoff/internal/session"
	"github.com/nebulatel/handoff/internal/store"
	"github.com/nebulatel/handoff/internal/transcript"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	rules, err := responder.LoadRules(cfg.RulesPath)
	if err != nil {
		slog.Error("Failed to load routing rules", "error", err)
		os.Exit(1)
	}

	gateway := responder.NewGateway(rules)
	gateway.Register("greeting", responder.NewGreeting)
	gateway.Register("modem_install", responder.NewModemInstall)
	gateway.Register("billing", responder.NewBilling)
	gateway.Register("tech_support", responder.NewTechSupport)
	slog.Info("Responders registered", "rules_path", cfg.RulesPath)

	translog, err := transcript.New(transcript.Config{
		Enabled:       cfg.Transcript.Enabled,
		Dir:           cfg.Transcript.Dir,
		GlobalEnabled: cfg.Transcript.GlobalEnabled,
		GlobalPath:    cfg.Transcript.GlobalPath,
		QueueSize:     cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := translog.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	registry := session.NewRegistry()

	// The hub's lifecycle context also cancels in-flight responder calls on
	// shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(ctx, registry, gateway, repo, translog, cfg.FrontendURL, cfg.IsDevelopment())

	// Initialize handlers.
	historyHandler := api.NewHistoryHandler(repo)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.FrontendURL))

	// Public routes.
	healthHandler.RegisterRoutes(r)
	historyHandler.RegisterRoutes(r)

	// WebSocket endpoint shared by customers and supervisor consoles.
	r.Get("/ws/{clientID}/{role}", h.ServeHTTP)

	// Create server.
	// WebSocket connections stay open indefinitely, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start the inactivity reaper.
	hub.StartReaper(ctx, h, cfg.ReapInterval, cfg.IdleTimeout)
	slog.Info("Inactivity reaper started", "interval", cfg.ReapInterval, "idle_timeout", cfg.IdleTimeout)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Shutdown does not touch hijacked websockets; close them directly.
	h.Broadcaster().CloseAll()

	slog.Info("Server stopped successfully")
}
