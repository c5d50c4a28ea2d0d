// Package main provides the PromptForge HTTP API server.
//
// It exposes prompt, dataset, eval run, and playground management over
// REST, backed by PostgreSQL and the model invoker used directly for
// playground fan-outs.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/promptforge/promptforge/internal/api"
	"github.com/promptforge/promptforge/internal/api/middleware"
	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/playground"
	"github.com/promptforge/promptforge/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "promptforge-apiserver"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()
	cfg := &serverConfig

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting PromptForge API server",
		slog.String("service", name),
		slog.String("version", version),
	)

	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	apiKeyStore, err := storage.NewClientKeyStore(conn)
	if err != nil {
		logger.Error("failed to initialize client key store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	promptStore := storage.NewPromptStore(conn)
	datasetStore := storage.NewDatasetStore(conn)
	evalRunStore := storage.NewEvalRunStore(conn)
	evalResultStore := storage.NewEvalResultStore(conn)
	shareTokenStore := storage.NewShareTokenStore(conn)
	playgroundStore := storage.NewPlaygroundStore(conn)

	creds := invoker.Credentials{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
	}
	inv := invoker.New(context.Background(), creds)

	playgroundRunner := playground.NewRunner(promptStore, playgroundStore, inv)

	rateLimiter := middleware.NewInMemoryRateLimiter(middleware.LoadConfig())

	server := api.NewServer(cfg, api.Deps{
		APIKeyStore:     apiKeyStore,
		RateLimiter:     rateLimiter,
		PromptStore:     promptStore,
		DatasetStore:    datasetStore,
		EvalRunStore:    evalRunStore,
		EvalResultStore: evalResultStore,
		ShareTokenStore: shareTokenStore,
		PlaygroundStore: playgroundStore,
		PlaygroundRun:   playgroundRunner,
	})

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("PromptForge API server stopped")
}
