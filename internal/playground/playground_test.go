package playground

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"

	"github.com/promptforge/promptforge/internal/config"
	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/template"
)

func setupPlaygroundTest(t *testing.T) (*storage.PromptStore, *storage.PlaygroundStore) {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := &storage.Connection{DB: testDB.Connection}

	return storage.NewPromptStore(conn), storage.NewPlaygroundStore(conn)
}

// TestRunMultiModelInvokesEveryModel exercises the compile-once fan-out path.
// No provider credentials are configured, so every invocation fails fast with
// Response.Error set; the assertion under test is that one sub-result is
// produced per model and the batch is recorded, not that the (uncredentialed)
// call itself succeeds.
func TestRunMultiModelInvokesEveryModel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	promptStore, playgroundStore := setupPlaygroundTest(t)

	runner := NewRunner(promptStore, playgroundStore, invoker.New(ctx, invoker.Credentials{}))

	results, err := runner.RunMultiModel(ctx, template.TypeText, "Hello {{name}}", nil,
		map[string]any{"name": "Ada"}, []string{"fake/model-a", "fake/model-b"})
	if err != nil {
		t.Fatalf("RunMultiModel() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("RunMultiModel() returned %d results, want 2", len(results))
	}

	seen := map[string]bool{}
	for _, r := range results {
		seen[r.ModelID] = true

		if r.Error == nil {
			t.Errorf("result for %s: Error = nil, want a dispatch error since no credentials are configured", r.ModelID)
		}
	}

	if !seen["fake/model-a"] || !seen["fake/model-b"] {
		t.Errorf("RunMultiModel() results = %+v, want one entry per model", results)
	}

	runs, err := playgroundStore.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}

	if len(runs) != 1 {
		t.Fatalf("ListRuns() returned %d runs, want 1", len(runs))
	}

	if len(runs[0].ModelIDs) != 2 {
		t.Errorf("recorded run ModelIDs = %v, want 2 entries", runs[0].ModelIDs)
	}
}

func TestRunMultiModelRejectsMissingVariables(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	promptStore, playgroundStore := setupPlaygroundTest(t)

	runner := NewRunner(promptStore, playgroundStore, invoker.New(ctx, invoker.Credentials{}))

	_, err := runner.RunMultiModel(ctx, template.TypeText, "Hello {{name}}", nil,
		map[string]any{"unrelated": "value"}, []string{"fake/model-a"})
	if err == nil {
		t.Fatal("RunMultiModel() with missing variables expected error, got nil")
	}
}

// TestRunMultiVersionFetchesAllVersionsThenFansOut exercises the
// sequential-fetch-then-parallel-invoke path across two prompt versions.
func TestRunMultiVersionFetchesAllVersionsThenFansOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	promptStore, playgroundStore := setupPlaygroundTest(t)

	prompt := &storage.Prompt{ID: uuid.NewString(), Name: "greeting", CreatedAt: time.Now().UTC()}
	if err := promptStore.CreatePrompt(ctx, prompt); err != nil {
		t.Fatalf("CreatePrompt() error = %v", err)
	}

	versionOne := &storage.PromptVersion{ID: uuid.NewString(), PromptID: prompt.ID, TemplateText: "Hi {{name}}", CreatedAt: time.Now().UTC()}
	if err := promptStore.CreateVersion(ctx, versionOne); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	versionTwo := &storage.PromptVersion{ID: uuid.NewString(), PromptID: prompt.ID, TemplateText: "Hello there, {{name}}", CreatedAt: time.Now().UTC()}
	if err := promptStore.CreateVersion(ctx, versionTwo); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	runner := NewRunner(promptStore, playgroundStore, invoker.New(ctx, invoker.Credentials{}))

	results, err := runner.RunMultiVersion(ctx, []string{versionOne.ID, versionTwo.ID},
		map[string]any{"name": "Ada"}, []string{"fake/model-a"})
	if err != nil {
		t.Fatalf("RunMultiVersion() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("RunMultiVersion() returned %d results, want 2", len(results))
	}

	seen := map[string]bool{}
	for _, r := range results {
		seen[r.PromptVersionID] = true
	}

	if !seen[versionOne.ID] || !seen[versionTwo.ID] {
		t.Errorf("RunMultiVersion() results = %+v, want one entry per version", results)
	}
}

func TestRunMultiVersionUnknownVersionFailsBeforeInvoking(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	promptStore, playgroundStore := setupPlaygroundTest(t)

	runner := NewRunner(promptStore, playgroundStore, invoker.New(ctx, invoker.Credentials{}))

	_, err := runner.RunMultiVersion(ctx, []string{uuid.NewString()}, map[string]any{"name": "Ada"}, []string{"fake/model-a"})
	if err == nil {
		t.Fatal("RunMultiVersion() with an unknown version expected error, got nil")
	}
}
