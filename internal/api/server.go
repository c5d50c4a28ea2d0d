// Package api provides HTTP API server implementation for the PromptForge service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/promptforge/promptforge/internal/api/middleware"
	"github.com/promptforge/promptforge/internal/playground"
	"github.com/promptforge/promptforge/internal/storage"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	config          *ServerConfig
	startTime       time.Time
	apiKeyStore     storage.APIKeyStore
	rateLimiter     middleware.RateLimiter
	promptStore     *storage.PromptStore
	datasetStore    *storage.DatasetStore
	evalRunStore    *storage.EvalRunStore
	evalResultStore *storage.EvalResultStore
	shareTokenStore *storage.ShareTokenStore
	playgroundStore *storage.PlaygroundStore
	playgroundRun   *playground.Runner
}

// Deps bundles the storage and domain dependencies NewServer wires into routes.
// Configuration (ServerConfig) stays separate from dependencies (Deps).
type Deps struct {
	APIKeyStore     storage.APIKeyStore
	RateLimiter     middleware.RateLimiter
	PromptStore     *storage.PromptStore
	DatasetStore    *storage.DatasetStore
	EvalRunStore    *storage.EvalRunStore
	EvalResultStore *storage.EvalResultStore
	ShareTokenStore *storage.ShareTokenStore
	PlaygroundStore *storage.PlaygroundStore
	PlaygroundRun   *playground.Runner
}

// NewServer creates a new HTTP server instance with structured logging and middleware stack.
//
// Dependencies are injected explicitly rather than being part of ServerConfig,
// separating configuration (what) from dependencies (how). Every field of Deps
// except APIKeyStore and RateLimiter is required - the server panics if any of
// them is nil, since every HTTP route depends on at least one of them.
// APIKeyStore and RateLimiter are optional; when nil, client authentication
// or rate limiting respectively is disabled.
func NewServer(cfg *ServerConfig, deps Deps) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if deps.PromptStore == nil || deps.DatasetStore == nil || deps.EvalRunStore == nil ||
		deps.EvalResultStore == nil || deps.ShareTokenStore == nil || deps.PlaygroundStore == nil ||
		deps.PlaygroundRun == nil {
		logger.Error("one or more required storage dependencies is nil")
		panic("promptforge: storage dependencies cannot be nil - this indicates a configuration error")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:          logger,
		config:          cfg,
		apiKeyStore:     deps.APIKeyStore,
		rateLimiter:     deps.RateLimiter,
		promptStore:     deps.PromptStore,
		datasetStore:    deps.DatasetStore,
		evalRunStore:    deps.EvalRunStore,
		evalResultStore: deps.EvalResultStore,
		shareTokenStore: deps.ShareTokenStore,
		playgroundStore: deps.PlaygroundStore,
		playgroundRun:   deps.PlaygroundRun,
	}

	server.setupRoutes(mux)

	if deps.APIKeyStore != nil { // pragma: allowlist secret
		logger.Info("Client authentication middleware enabled")
	} else {
		logger.Warn("APIKeyStore not configured - client authentication middleware disabled")
	}

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. Client Auth - identify client and set ClientContext (optional)
	//   4. RateLimit - block requests before expensive operations (optional)
	//   5. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   6. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithClientAuth(deps.APIKeyStore, logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	server.httpServer = httpServer

	return server
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting PromptForge API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeDependency("API key store", s.apiKeyStore)
	s.closeDependency("rate limiter", s.rateLimiter)

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

// closeDependency attempts to close a server dependency that implements io.Closer.
// Logs the operation and its result. Errors are logged but don't stop shutdown (best-effort).
func (s *Server) closeDependency(name string, store interface{}) {
	if store == nil {
		return
	}

	s.logger.Info("Closing " + name)

	closer, ok := store.(io.Closer)
	if !ok {
		return
	}

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info(name + " closed successfully")
}
