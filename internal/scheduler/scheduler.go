package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/storage"
)

// Scheduler repeatedly dequeues the oldest pending eval run and drains it to
// completion before dequeuing the next one. It is the only coordination
// primitive between multiple worker processes: the row-lock dequeue in
// EvalRunStore.Dequeue ensures at most one process ever claims a given run.
type Scheduler struct {
	runStore *storage.EvalRunStore
	executor *Executor
	config   Config
	logger   *slog.Logger
}

// New builds a Scheduler wired to the storage layer and model invoker.
func New(
	runStore *storage.EvalRunStore,
	promptStore *storage.PromptStore,
	datasetStore *storage.DatasetStore,
	resultStore *storage.EvalResultStore,
	inv *invoker.Invoker,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = defaultInvokeTimeout
	}

	return &Scheduler{
		runStore: runStore,
		executor: NewExecutor(promptStore, datasetStore, resultStore, runStore, inv, cfg.InvokeTimeout, logger),
		config:   cfg,
		logger:   logger,
	}
}

// Run polls for pending eval runs until ctx is canceled. Each claimed run is
// drained synchronously to completion before the next dequeue attempt; fan-out
// concurrency happens inside Executor.Drain, not across runs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Duration("poll_interval", s.config.PollInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")

			return nil
		default:
		}

		run, err := s.runStore.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			s.logger.Error("dequeue failed", slog.String("error", err.Error()))

			if !sleepOrDone(ctx, s.config.PollInterval) {
				return nil
			}

			continue
		}

		if run == nil {
			if !sleepOrDone(ctx, s.config.PollInterval) {
				return nil
			}

			continue
		}

		s.logger.Info("eval run claimed", slog.String("eval_run_id", run.ID), slog.Int("model_count", len(run.ModelIDs)))

		if err := s.executor.Drain(ctx, run); err != nil {
			s.logger.Error("eval run drain failed", slog.String("eval_run_id", run.ID), slog.String("error", err.Error()))
		} else {
			s.logger.Info("eval run completed", slog.String("eval_run_id", run.ID))
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, returning false if canceled.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
