// VoiceDesk - control surface for a voice conversation agent.
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

	"github.com/voicedesk/voicedesk/internal/api"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/docs"
	"github.com/voicedesk/voicedesk/internal/gateway"
	"github.com/voicedesk/voicedesk/internal/history"
	"github.com/voicedesk/voicedesk/internal/middleware"
	"github.com/voicedesk/voicedesk/internal/push"
	"github.com/voicedesk/voicedesk/internal/session"
	"github.com/voicedesk/voicedesk/internal/transport"
	"github.com/voicedesk/voicedesk/internal/voice"
	"github.com/voicedesk/voicedesk/web"
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

	slog.Info("Starting server", "port", cfg.Port, "backend", cfg.BackendURL, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	var calls history.Store
	if cfg.CallLogEnabled {
		calls, err = history.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize call history database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := calls.Close(); closeErr != nil {
				slog.Error("Failed to close call history database", "error", closeErr)
			}
		}()

		if err := calls.Ping(context.Background()); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Call history database connected", "path", cfg.DBPath)
	} else {
		slog.Info("Call history disabled")
	}

	// Stores publish their mutations to the push hub; the hub hands a
	// full snapshot to each new websocket client before any event. The
	// closure captures the store variables, which are assigned below.
	var (
		sessStore *session.Store
		docStore  *docs.Store
	)
	hub := push.NewHub(func() any {
		return map[string]any{
			"session": sessStore.Snapshot(),
			"docs":    docStore.Snapshot(),
		}
	}, cfg.FrontendURL, cfg.IsDevelopment())

	gw := gateway.New(cfg.BackendURL, cfg.GatewayTimeout)
	sessStore = session.New(hub)
	docStore = docs.New(gw, hub)

	orch := voice.New(voice.Options{
		Store:       sessStore,
		Tokens:      gw,
		Dialer:      &transport.LiveKit{},
		Archive:     calls,
		Notify:      hub,
		FallbackURL: cfg.LiveKitURL,
		RoomPrefix:  cfg.RoomPrefix,
		IsAgent:     voice.NewAgentMatcher(cfg.AgentIDPrefixes, cfg.AgentIDMarker),
	})

	handler := api.NewHandler(docStore, sessStore, orch, calls)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/events", hub.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	// End any live call so the transcript is archived before the
	// database closes.
	orch.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
