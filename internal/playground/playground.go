// Package playground implements the two synchronous playground fan-out
// operations: a multi-model run (one template, many models) and a
// multi-version run (many prompt versions, the same model set). Both reuse
// the template and invoker packages (no assertions are graded) but run against no persisted
// EvalRun — every result is returned directly to the caller and only
// recorded as an audit row, never scheduled or retried.
package playground

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/internal/invoker"
	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/template"
)

// Metrics mirrors the Model Invoker's token/cost/latency reporting for one
// playground sub-result.
type Metrics struct {
	LatencyMs        int64    `json:"latency_ms"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	CostUSD          *float64 `json:"cost_usd,omitempty"`
}

// Result is one model (and, for multi-version runs, prompt version)
// invocation outcome. A provider exception becomes Error; it never aborts
// the batch.
type Result struct {
	ModelID         string   `json:"model_id"`
	PromptVersionID string   `json:"prompt_version_id,omitempty"`
	Output          *string  `json:"output,omitempty"`
	Metrics         Metrics  `json:"metrics"`
	Error           *string  `json:"error,omitempty"`
}

// Runner executes playground fan-outs and records their history.
type Runner struct {
	promptStore     *storage.PromptStore
	playgroundStore *storage.PlaygroundStore
	invoker         *invoker.Invoker
}

// NewRunner builds a Runner wired to the prompt store (for multi-version
// fetches), the playground audit store, and the model invoker.
func NewRunner(promptStore *storage.PromptStore, playgroundStore *storage.PlaygroundStore, inv *invoker.Invoker) *Runner {
	return &Runner{promptStore: promptStore, playgroundStore: playgroundStore, invoker: inv}
}

// RunMultiModel compiles templateText once against vars, then invokes every
// model in modelIDs concurrently. There is no semaphore: the model count is
// small and operator-chosen, not derived from dataset size.
func (r *Runner) RunMultiModel(
	ctx context.Context,
	templateType, templateText string,
	messages []template.Message,
	vars map[string]any,
	modelIDs []string,
) ([]Result, error) {
	dryRun := template.DryRun(templateType, templateText, messages, vars)
	if !dryRun.IsValid {
		return nil, fmt.Errorf("template has missing variables: %v", dryRun.MissingVariables)
	}

	reqMessages := compiledMessages(dryRun)

	results := make([]Result, len(modelIDs))

	var wg sync.WaitGroup

	for i, modelID := range modelIDs {
		wg.Add(1)

		go func(i int, modelID string) {
			defer wg.Done()

			results[i] = r.invoke(ctx, modelID, "", reqMessages)
		}(i, modelID)
	}

	wg.Wait()

	if err := r.record(ctx, []string{}, modelIDs, vars, results); err != nil {
		return results, err
	}

	return results, nil
}

// RunMultiVersion fetches every referenced prompt version sequentially (the
// storage layer is not safe for concurrent reads against the same
// connection pool in this pattern), then fans out version x model
// invocations in parallel. A version with missing variables contributes only
// an errored sub-result for each of its models; it does not abort the batch.
func (r *Runner) RunMultiVersion(
	ctx context.Context,
	promptVersionIDs []string,
	vars map[string]any,
	modelIDs []string,
) ([]Result, error) {
	versions := make([]*storage.PromptVersion, 0, len(promptVersionIDs))

	for _, id := range promptVersionIDs {
		version, err := r.promptStore.GetVersionByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompt version %s: %w", id, err)
		}

		versions = append(versions, version)
	}

	type job struct {
		version *storage.PromptVersion
		modelID string
	}

	jobs := make([]job, 0, len(versions)*len(modelIDs))
	for _, version := range versions {
		for _, modelID := range modelIDs {
			jobs = append(jobs, job{version: version, modelID: modelID})
		}
	}

	results := make([]Result, len(jobs))

	var wg sync.WaitGroup

	for i, j := range jobs {
		wg.Add(1)

		go func(i int, j job) {
			defer wg.Done()

			dryRun := template.DryRun(template.TypeText, j.version.TemplateText, nil, vars)
			if !dryRun.IsValid {
				msg := fmt.Sprintf("template has missing variables: %v", dryRun.MissingVariables)
				results[i] = Result{ModelID: j.modelID, PromptVersionID: j.version.ID, Error: &msg}

				return
			}

			results[i] = r.invoke(ctx, j.modelID, j.version.ID, []invoker.Message{{Role: "user", Content: *dryRun.CompiledText}})
		}(i, j)
	}

	wg.Wait()

	if err := r.record(ctx, promptVersionIDs, modelIDs, vars, results); err != nil {
		return results, err
	}

	return results, nil
}

func (r *Runner) invoke(ctx context.Context, modelID, promptVersionID string, messages []invoker.Message) Result {
	resp := r.invoker.Invoke(ctx, invoker.Request{Messages: messages, Model: modelID})

	result := Result{
		ModelID:         modelID,
		PromptVersionID: promptVersionID,
		Error:           resp.Error,
		Metrics: Metrics{
			LatencyMs:        resp.LatencyMs,
			PromptTokens:     resp.Tokens.Prompt,
			CompletionTokens: resp.Tokens.Completion,
			TotalTokens:      resp.Tokens.Total,
			CostUSD:          resp.CostUSD,
		},
	}

	if resp.Error == nil {
		output := resp.Output
		result.Output = &output
	}

	return result
}

func (r *Runner) record(ctx context.Context, promptVersionIDs, modelIDs []string, vars map[string]any, results []Result) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal playground results: %w", err)
	}

	run := &storage.PlaygroundRun{
		ID:               uuid.NewString(),
		PromptVersionIDs: promptVersionIDs,
		ModelIDs:         modelIDs,
		InputVariables:   vars,
		Results:          resultsJSON,
		CreatedAt:        time.Now().UTC(),
	}

	if err := r.playgroundStore.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record playground run: %w", err)
	}

	return nil
}

func compiledMessages(dryRun template.DryRunResult) []invoker.Message {
	if dryRun.CompiledMessages != nil {
		out := make([]invoker.Message, len(dryRun.CompiledMessages))
		for i, m := range dryRun.CompiledMessages {
			out[i] = invoker.Message{Role: m.Role, Content: m.Content}
		}

		return out
	}

	return []invoker.Message{{Role: "user", Content: *dryRun.CompiledText}}
}
