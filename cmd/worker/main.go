// Package main provides the PromptForge eval run worker.
//
// It polls for pending eval runs and drains each to completion via the
// scheduler's SKIP LOCKED dequeue loop, fanning out dataset items and
// models through the model invoker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/scheduler"
	"github.com/promptforge/promptforge/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "promptforge-worker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logLevel := new(slog.LevelVar)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	logger.Info("starting PromptForge worker", slog.String("service", name), slog.String("version", version))

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
	defer func() { _ = conn.Close() }()

	promptStore := storage.NewPromptStore(conn)
	datasetStore := storage.NewDatasetStore(conn)
	evalRunStore := storage.NewEvalRunStore(conn)
	evalResultStore := storage.NewEvalResultStore(conn)

	creds := invoker.Credentials{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inv := invoker.New(ctx, creds)

	sched := scheduler.New(evalRunStore, promptStore, datasetStore, evalResultStore, inv, scheduler.ConfigFromEnv(), logger)

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("PromptForge worker stopped")
}
