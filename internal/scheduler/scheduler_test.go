package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/storage"
)

func TestSchedulerRunDrainsQueuedRunThenIdles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	_, promptStore, datasetStore, runStore, resultStore := setupSchedulerTest(t)

	prompt := &storage.Prompt{ID: uuid.NewString(), Name: "greeting", CreatedAt: time.Now().UTC()}
	if err := promptStore.CreatePrompt(ctx, prompt); err != nil {
		t.Fatalf("CreatePrompt() error = %v", err)
	}

	version := &storage.PromptVersion{ID: uuid.NewString(), PromptID: prompt.ID, TemplateText: "Hi {{name}}", CreatedAt: time.Now().UTC()}
	if err := promptStore.CreateVersion(ctx, version); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	dataset := &storage.Dataset{ID: uuid.NewString(), Name: "greetings", CreatedAt: time.Now().UTC()}
	if err := datasetStore.CreateDataset(ctx, dataset); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}

	item := &storage.DatasetItem{ID: uuid.NewString(), DatasetID: dataset.ID, InputVariables: map[string]any{"name": "Ada"}, CreatedAt: time.Now().UTC()}
	if err := datasetStore.AddItem(ctx, item); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}

	run := &storage.EvalRun{
		ID:              uuid.NewString(),
		PromptVersionID: version.ID,
		DatasetID:       dataset.ID,
		ModelIDs:        []string{"fake/ok-model"},
		CreatedAt:       time.Now().UTC(),
	}
	if err := runStore.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	sched := New(runStore, promptStore, datasetStore, resultStore, invoker.New(ctx, invoker.Credentials{}),
		Config{PollInterval: 20 * time.Millisecond, InvokeTimeout: time.Second}, discardLogger())

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sched.Run(runCtx) }()

	deadline := time.After(30 * time.Second)
	for {
		got, err := runStore.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}

		if got.Status == storage.EvalRunStatusCompleted {
			break
		}

		select {
		case <-deadline:
			t.Fatalf("run never reached completed status, last status %q", got.Status)
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
