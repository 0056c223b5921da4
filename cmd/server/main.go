/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recurrence engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env, config file and RECURRENCE_* environment
  2. Apply command-line flags and validate
  3. Initialize logger and template store (SQLite or memory)
  4. Create service, API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (ShutdownTimeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/recurrence.db"

  # Run with a config file, JSON logs from the environment
  RECURRENCE_LOG_FORMAT=json ./server -config=config.yaml

  # Run without persistence
  RECURRENCE_STORE=memory ./server -port=3000

SEE ALSO:
  - config/config.go: Configuration fields and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/recurrence-engine/api"
	"github.com/warp/recurrence-engine/config"
	"github.com/warp/recurrence-engine/logging"
	"github.com/warp/recurrence-engine/recurrence"
	"github.com/warp/recurrence-engine/recurrence/store"
	"github.com/warp/recurrence-engine/store/sqlite"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(logging.Config{
		Level:     level,
		Format:    logging.Format(cfg.LogFormat),
		Component: logging.ComponentApp,
		Output:    os.Stdout,
	})
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Failure(context.Background(), "Server stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	templates, pinger, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize service
	svc := recurrence.NewService(templates, logger.WithComponent(logging.ComponentEngine).Slog())
	svc.Query.Malformed = recurrence.MalformedPolicy(cfg.MalformedPolicy)
	svc.Query.MaxRangeDays = cfg.MaxRangeDays
	svc.ScopeConcurrency = cfg.ScopeConcurrency

	// Initialize handler
	handler := api.NewHandler(svc, logger)
	handler.Storage = cfg.Store
	handler.Pinger = pinger

	// Create router
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			logging.FieldOperation, logging.OpStartup,
			"addr", server.Addr,
			"store", cfg.Store,
			"malformed_policy", cfg.MalformedPolicy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...", logging.FieldOperation, logging.OpShutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped", logging.FieldOperation, logging.OpShutdown)
	return nil
}

// openStore builds the configured TemplateStore. The returned pinger is nil
// for the memory store.
func openStore(cfg *config.Config, logger *logging.Logger) (recurrence.TemplateStore, api.Pinger, func(), error) {
	storageLogger := logger.WithComponent(logging.ComponentStorage)

	switch cfg.Store {
	case config.StoreMemory:
		storageLogger.Warn("Using in-memory store; templates are lost on restart")
		return store.NewMemory(), nil, func() {}, nil
	default:
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initialize database: %w", err)
		}
		storageLogger.Info("SQLite store ready", "path", cfg.DBPath)
		closeDB := func() {
			if err := db.Close(); err != nil {
				storageLogger.Failure(context.Background(), "Failed to close database", err)
			}
		}
		return db, db, closeDB, nil
	}
}
