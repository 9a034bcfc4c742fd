/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the FinShare settlement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Configure structured logging
  2. Load configuration from environment
  3. Initialize SQLite store
  4. Wire notifier, engine, scheduler, and API handler
  5. Start server with graceful shutdown

ENVIRONMENT:
  DB_PATH       SQLite database path (default: ./data/finshare.db)
                Use ":memory:" for an in-memory database
  SERVER_PORT   HTTP server port (default: 8080)
  ENVIRONMENT   development or production (default: development)
  LOG_LEVEL     debug, info, warn, error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  DB_PATH=./data/finshare.db ./server

  # Run with in-memory database
  DB_PATH=:memory: ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finshare/settle-engine/api"
	"github.com/finshare/settle-engine/config"
	"github.com/finshare/settle-engine/logging"
	"github.com/finshare/settle-engine/notify"
	"github.com/finshare/settle-engine/settlement"
	"github.com/finshare/settle-engine/store/sqlite"
)

func main() {
	logging.Setup()
	cfg := config.Load()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire the engine
	notifier := notify.NewLogNotifier(slog.Default())
	engine := settlement.NewEngine(store, store, notifier)

	// Background recurrence reminders
	scheduler := api.NewReminderScheduler(store, notifier)
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	handler := api.NewHandler(engine, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
