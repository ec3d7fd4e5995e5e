// EmergenSee - Emergency Medicine Scenario Training Server
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

	"github.com/emergensee/emergensee-server/internal/agent"
	"github.com/emergensee/emergensee-server/internal/api"
	"github.com/emergensee/emergensee-server/internal/catalog"
	"github.com/emergensee/emergensee-server/internal/config"
	"github.com/emergensee/emergensee-server/internal/identity"
	"github.com/emergensee/emergensee-server/internal/middleware"
	"github.com/emergensee/emergensee-server/internal/observability/metrics"
	"github.com/emergensee/emergensee-server/internal/simulation"
	"github.com/emergensee/emergensee-server/internal/store"
	"github.com/emergensee/emergensee-server/internal/stream"
	"github.com/emergensee/emergensee-server/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
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

	slog.Info("Starting server", "port", cfg.Port, "store", cfg.StoreBackend, "dev", cfg.IsDevelopment())

	repo, err := newRepository(cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected", "backend", cfg.StoreBackend)

	cases, err := catalog.BuiltIn()
	if err != nil {
		slog.Error("Failed to load patient case catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Patient case catalog loaded", "modules", len(cases.Summaries()))

	backend := agent.NewHTTPBackend(cfg.AgentURL, cfg.AgentTimeout, logger)
	simMetrics := metrics.NewSimulationMetrics(nil)
	engine := simulation.New(repo, cases, backend, simMetrics)

	hub := stream.NewHub()
	sessionHandler := api.NewSessionHandler(engine, cases, hub.Publish)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := stream.NewWebSocketHandler(engine, hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())
	sessionHandler.RegisterRoutes(r)
	r.Get("/ws/sessions/{sessionID}", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket streams stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simulation.StartSweeper(ctx, engine, cfg.SessionTTL, cfg.SweepInterval)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func newRepository(cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		return store.NewRedis(client)
	default:
		return store.NewSQLite(cfg.DBPath)
	}
}
