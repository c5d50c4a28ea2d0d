package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/promptforge/promptforge/internal/assert"
	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/template"
)

// task is one (dataset item, model) pairing drawn from the Cartesian product
// the executor drains for a single eval run.
type task struct {
	item         *storage.DatasetItem
	modelID      string
	templateText string
}

// Executor drains one claimed eval run: materialising its prompt version and
// dataset, fanning out every item x model pairing under a semaphore, and
// persisting results plus a terminal summary.
type Executor struct {
	promptStore   *storage.PromptStore
	datasetStore  *storage.DatasetStore
	resultStore   *storage.EvalResultStore
	runStore      *storage.EvalRunStore
	invoker       *invoker.Invoker
	invokeTimeout time.Duration
	logger        *slog.Logger
}

// NewExecutor builds an Executor wired to the storage layer and the model invoker.
func NewExecutor(
	promptStore *storage.PromptStore,
	datasetStore *storage.DatasetStore,
	resultStore *storage.EvalResultStore,
	runStore *storage.EvalRunStore,
	inv *invoker.Invoker,
	invokeTimeout time.Duration,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		promptStore:   promptStore,
		datasetStore:  datasetStore,
		resultStore:   resultStore,
		runStore:      runStore,
		invoker:       inv,
		invokeTimeout: invokeTimeout,
		logger:        logger,
	}
}

// Drain runs the full fan-out pipeline for a run already claimed by Dequeue,
// persisting every result and the final summary before returning.
func (e *Executor) Drain(ctx context.Context, run *storage.EvalRun) error {
	version, err := e.promptStore.GetVersionByID(ctx, run.PromptVersionID)
	if err != nil {
		return e.failSetup(ctx, run, fmt.Errorf("failed to load prompt version: %w", err))
	}

	items, err := e.datasetStore.ListItems(ctx, run.DatasetID)
	if err != nil {
		return e.failSetup(ctx, run, fmt.Errorf("failed to load dataset items: %w", err))
	}

	if len(items) == 0 {
		return e.failSetup(ctx, run, fmt.Errorf("dataset %s has zero items", run.DatasetID))
	}

	var assertions []assert.Assertion
	if err := json.Unmarshal(run.Assertions, &assertions); err != nil {
		return e.failSetup(ctx, run, fmt.Errorf("failed to parse assertions: %w", err))
	}

	tasks := make([]task, 0, len(items)*len(run.ModelIDs))
	for _, item := range items {
		for _, modelID := range run.ModelIDs {
			tasks = append(tasks, task{item: item, modelID: modelID, templateText: version.TemplateText})
		}
	}

	if err := e.runStore.StartProgress(ctx, run.ID, len(tasks)); err != nil {
		e.logger.Error("failed to record eval run progress total", slog.String("eval_run_id", run.ID), slog.String("error", err.Error()))
	}

	concurrency := run.ConcurrencyLimit
	if concurrency <= 0 {
		concurrency = defaultConcurrencyLimit
	}

	maxRetries := run.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	results := e.runTasks(ctx, run.ID, tasks, concurrency, maxRetries, assertions)

	rows := make([]*storage.EvalResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			rows = append(rows, r)
		}
	}

	if err := e.resultStore.InsertBatch(ctx, rows); err != nil {
		e.logger.Error("failed to persist eval results", slog.String("eval_run_id", run.ID), slog.String("error", err.Error()))
	}

	summary := summarize(results, run.ModelIDs)

	if err := e.runStore.Complete(ctx, run.ID, storage.EvalRunStatusCompleted, summary, nil); err != nil {
		return fmt.Errorf("failed to complete eval run: %w", err)
	}

	return nil
}

// runTasks fans out every task under a semaphore of the given size, gathering
// results with no task's panic or error aborting the others. A task whose
// goroutine panics leaves its slot nil: it is counted as failed in the run's
// progress (IncrementProgress), but summarize omits it and it is never handed
// to InsertBatch, matching the "exception escapes, no row" rule.
func (e *Executor) runTasks(
	ctx context.Context,
	evalRunID string,
	tasks []task,
	concurrency, maxRetries int,
	assertions []assert.Assertion,
) []*storage.EvalResult {
	sem := make(chan struct{}, concurrency)
	results := make([]*storage.EvalResult, len(tasks))

	var wg sync.WaitGroup

	for i, t := range tasks {
		wg.Add(1)

		sem <- struct{}{}

		go func(i int, t task) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				failed := true

				if r := recover(); r != nil {
					e.logger.Error("eval task panicked",
						slog.String("eval_run_id", evalRunID),
						slog.String("dataset_item_id", t.item.ID),
						slog.String("model_id", t.modelID),
						slog.Any("panic", r),
					)

					results[i] = nil
				} else if results[i] != nil {
					failed = !results[i].Passed
				}

				if err := e.runStore.IncrementProgress(ctx, evalRunID, failed); err != nil {
					e.logger.Error("failed to increment eval run progress",
						slog.String("eval_run_id", evalRunID), slog.String("error", err.Error()))
				}
			}()

			results[i] = e.runOne(ctx, evalRunID, t, assertions, maxRetries)
		}(i, t)
	}

	wg.Wait()

	return results
}

// runOne executes the per-task pipeline: compile, invoke with retry, grade, record.
func (e *Executor) runOne(
	ctx context.Context,
	evalRunID string,
	t task,
	assertions []assert.Assertion,
	maxRetries int,
) *storage.EvalResult {
	now := time.Now().UTC()

	result := &storage.EvalResult{
		ID:            uuid.NewString(),
		EvalRunID:     evalRunID,
		DatasetItemID: t.item.ID,
		ModelID:       t.modelID,
		CreatedAt:     now,
		Attempt:       1,
	}

	dryRun := template.DryRun(template.TypeText, t.templateText, nil, t.item.InputVariables)
	if !dryRun.IsValid {
		msg := "Missing variables: " + fmt.Sprint(dryRun.MissingVariables)
		result.Error = &msg
		result.Assertions = json.RawMessage("[]")
		result.TokenUsage = json.RawMessage("{}")

		return result
	}

	result.RenderedPrompt = *dryRun.CompiledText

	resp := e.invokeWithRetry(ctx, invoker.Request{
		Messages: []invoker.Message{{Role: "user", Content: result.RenderedPrompt}},
		Model:    t.modelID,
	}, maxRetries, &result.Attempt)

	result.LatencyMs = resp.LatencyMs
	tokenUsage, err := json.Marshal(resp.Tokens)
	if err != nil {
		tokenUsage = []byte("{}")
	}

	result.TokenUsage = tokenUsage
	result.CostUSD = resp.CostUSD

	if resp.Error != nil {
		result.Error = resp.Error
		result.Assertions = json.RawMessage("[]")
		result.Passed = false

		return result
	}

	result.RawResponse = &resp.Output

	grading := assert.RunAssertions(resp.Output, t.item.Expected, assertions)

	assertionsJSON, err := json.Marshal(grading.Assertions)
	if err != nil {
		assertionsJSON = []byte("[]")
	}

	result.Assertions = assertionsJSON
	result.Passed = grading.Pass

	return result
}

// invokeWithRetry calls the invoker, retrying with 2^attempt backoff up to
// maxRetries whenever the response carries a non-nil error, so the invoker is
// called at most maxRetries+1 times. attempt is updated in place to the number
// of the attempt that was ultimately used.
func (e *Executor) invokeWithRetry(ctx context.Context, req invoker.Request, maxRetries int, attempt *int) invoker.Response {
	if maxRetries < 0 {
		maxRetries = 0
	}

	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(defaultRetryBaseInterval))

	var resp invoker.Response

	attemptNum := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptNum++

		callCtx, cancel := context.WithTimeout(ctx, e.invokeTimeout)
		defer cancel()

		resp = e.invoker.Invoke(callCtx, req)
		if resp.Error != nil {
			return retry.RetryableError(fmt.Errorf("invoke failed: %s", *resp.Error))
		}

		return nil
	})
	if attemptNum == 0 {
		// ctx was done before the first call could be made.
		msg := err.Error()
		resp.Error = &msg

		return resp
	}

	*attempt = attemptNum

	return resp
}

// failSetup transitions a run straight to failed when materialisation itself
// fails, per the setup-failure branch of the fan-out executor's failure model.
func (e *Executor) failSetup(ctx context.Context, run *storage.EvalRun, cause error) error {
	e.logger.Error("eval run setup failed", slog.String("eval_run_id", run.ID), slog.String("error", cause.Error()))

	msg := cause.Error()
	summary := &storage.Summary{ByModel: map[string]storage.ModelStats{}}

	if err := e.runStore.Complete(ctx, run.ID, storage.EvalRunStatusFailed, summary, &msg); err != nil {
		return fmt.Errorf("failed to mark run failed after setup error %q: %w", cause, err)
	}

	return cause
}

// summarize aggregates results into the run's terminal Summary. A nil entry
// is a task whose goroutine panicked: it is omitted from the summary
// entirely, per the fan-out executor's failure model (it still surfaces via
// the panic log in runTasks, but contributes no row and no summary count).
func summarize(results []*storage.EvalResult, modelIDs []string) *storage.Summary {
	summary := &storage.Summary{ByModel: make(map[string]storage.ModelStats, len(modelIDs))}

	scoreTotal := 0.0

	for _, r := range results {
		if r == nil {
			continue
		}

		summary.Total++

		stats := summary.ByModel[r.ModelID]
		stats.Total++

		if r.Passed {
			summary.Passed++
			stats.Passed++
		} else {
			summary.Failed++
		}

		summary.ByModel[r.ModelID] = stats

		summary.TotalLatencyMs += r.LatencyMs

		if r.CostUSD != nil {
			summary.TotalCostUSD += *r.CostUSD
		}

		var assertions []assert.Result
		if err := json.Unmarshal(r.Assertions, &assertions); err == nil && len(assertions) > 0 {
			for _, a := range assertions {
				scoreTotal += a.Score
			}
		} else if r.Passed {
			scoreTotal += 1.0
		}
	}

	if summary.Total > 0 {
		summary.PassRate = float64(summary.Passed) / float64(summary.Total)
		summary.AvgLatencyMs = float64(summary.TotalLatencyMs) / float64(summary.Total)
	}

	if summary.Passed+summary.Failed > 0 {
		summary.AvgScore = scoreTotal / float64(summary.Total)
	}

	for modelID, stats := range summary.ByModel {
		if stats.Total > 0 {
			stats.PassRate = float64(stats.Passed) / float64(stats.Total)
		}

		summary.ByModel[modelID] = stats
	}

	return summary
}
