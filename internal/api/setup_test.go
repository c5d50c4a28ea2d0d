package api

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/promptforge/promptforge/internal/config"
	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/playground"
	"github.com/promptforge/promptforge/internal/storage"
)

// testServer bundles a fully wired Server and the stores its handlers touch,
// so tests can both drive HTTP requests and assert on persisted state.
type testServer struct {
	server          *Server
	promptStore     *storage.PromptStore
	datasetStore    *storage.DatasetStore
	evalRunStore    *storage.EvalRunStore
	evalResultStore *storage.EvalResultStore
	shareTokenStore *storage.ShareTokenStore
}

// setupTestServer creates a server backed by a real, migrated PostgreSQL
// container, with no API key store or rate limiter, so every endpoint is
// reachable without authentication headers.
func setupTestServer(ctx context.Context, t *testing.T) *testServer {
	t.Helper()

	testDB := config.SetupTestDatabase(ctx, t)
	conn := &storage.Connection{DB: testDB.Connection}

	promptStore := storage.NewPromptStore(conn)
	datasetStore := storage.NewDatasetStore(conn)
	evalRunStore := storage.NewEvalRunStore(conn)
	evalResultStore := storage.NewEvalResultStore(conn)
	shareTokenStore := storage.NewShareTokenStore(conn)
	playgroundStore := storage.NewPlaygroundStore(conn)

	inv := invoker.New(ctx, invoker.Credentials{})
	runner := playground.NewRunner(promptStore, playgroundStore, inv)

	cfg := &ServerConfig{
		Port:               8080,
		Host:               "localhost",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		LogLevel:           slog.LevelWarn,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type"},
		CORSMaxAge:         86400,
	}

	server := NewServer(cfg, Deps{
		PromptStore:     promptStore,
		DatasetStore:    datasetStore,
		EvalRunStore:    evalRunStore,
		EvalResultStore: evalResultStore,
		ShareTokenStore: shareTokenStore,
		PlaygroundStore: playgroundStore,
		PlaygroundRun:   runner,
	})

	return &testServer{
		server:          server,
		promptStore:     promptStore,
		datasetStore:    datasetStore,
		evalRunStore:    evalRunStore,
		evalResultStore: evalResultStore,
		shareTokenStore: shareTokenStore,
	}
}
