package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/gasto-obra/backend/internal/assistant"
	"github.com/gasto-obra/backend/internal/config"
	"github.com/gasto-obra/backend/internal/handler"
	"github.com/gasto-obra/backend/internal/logging"
	"github.com/gasto-obra/backend/internal/middleware"
	"github.com/gasto-obra/backend/internal/pending"
	"github.com/gasto-obra/backend/internal/repository"
	"github.com/gasto-obra/backend/internal/service"
	"github.com/gasto-obra/backend/internal/transport/whatsapp"
)

func main() {
	// Local development convenience; in deployment the env is real.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("gasto-obra-bot", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var extractor service.Extractor
	if cfg.GeminiAPIKey != "" {
		gemini, err := assistant.NewGemini(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			slog.Error("failed to create assistant client", "error", err)
			os.Exit(1)
		}
		extractor = gemini
	} else {
		slog.Warn("GEMINI_API_KEY not set: photo and audio intake disabled")
	}

	chat := whatsapp.NewClient(cfg.PhoneNumberID, cfg.AccessToken)

	router := service.NewRouter(
		repository.NewLinkRepository(db),
		repository.NewProjectRepository(db),
		repository.NewLedgerRepository(db),
		extractor,
		chat,
		pending.NewStore(cfg.PendingTTL),
		service.WithAppURL(cfg.AppURL),
	)

	webhook := handler.NewWebhookHandler(router, cfg.VerifyToken)
	health := handler.NewHealthHandler(db)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook", webhook.Verify)
	mux.HandleFunc("POST /webhook", webhook.Receive)
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /ready", health.Readiness)

	var root http.Handler = mux
	root = middleware.Logging(root)
	root = middleware.RequestID(root)
	root = middleware.Recovery(root)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
