// Package api provides HTTP API server implementation for the PromptForge service.
package api

import (
	"encoding/json"
	"time"
)

type (
	// CreatePromptRequest is the body of POST /api/v1/prompts.
	CreatePromptRequest struct {
		Name string `json:"name"`
	}

	// PromptResponse is the representation of a Prompt returned by the API.
	PromptResponse struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"` //nolint: tagliatelle
	}

	// PromptListResponse is the response for GET /api/v1/prompts.
	PromptListResponse struct {
		Prompts []PromptResponse `json:"prompts"`
		Limit   int              `json:"limit"`
		Offset  int              `json:"offset"`
	}

	// CreatePromptVersionRequest is the body of POST /api/v1/prompts/{id}/versions.
	CreatePromptVersionRequest struct {
		TemplateText string `json:"template_text"` //nolint: tagliatelle
	}

	// PromptVersionResponse is the representation of a PromptVersion returned by the API.
	PromptVersionResponse struct {
		ID            string    `json:"id"`
		PromptID      string    `json:"prompt_id"` //nolint: tagliatelle
		VersionNumber int       `json:"version_number"`
		TemplateText  string    `json:"template_text"` //nolint: tagliatelle
		Variables     []string  `json:"variables"`
		Labels        []string  `json:"labels"`
		CreatedAt     time.Time `json:"created_at"` //nolint: tagliatelle
	}

	// AddLabelRequest is the body of POST /api/v1/prompts/{id}/versions/{version}/label.
	AddLabelRequest struct {
		Label string `json:"label"`
	}

	// DryRunRequest is the body of POST /api/v1/prompts/{id}/versions/{version}/dry-run.
	DryRunRequest struct {
		Variables map[string]any `json:"variables"`
	}

	// DryRunResponse mirrors template.DryRunResult for the HTTP boundary.
	DryRunResponse struct {
		CompiledText       *string  `json:"compiled_text,omitempty"` //nolint: tagliatelle
		RequiredVariables  []string `json:"required_variables"`      //nolint: tagliatelle
		ProvidedVariables  []string `json:"provided_variables"`      //nolint: tagliatelle
		MissingVariables   []string `json:"missing_variables"`       //nolint: tagliatelle
		IsValid            bool     `json:"is_valid"`                //nolint: tagliatelle
	}

	// CreateDatasetRequest is the body of POST /api/v1/datasets.
	CreateDatasetRequest struct {
		Name string `json:"name"`
	}

	// DatasetResponse is the representation of a Dataset returned by the API.
	DatasetResponse struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"` //nolint: tagliatelle
	}

	// DatasetListResponse is the response for GET /api/v1/datasets.
	DatasetListResponse struct {
		Datasets []DatasetResponse `json:"datasets"`
		Limit    int               `json:"limit"`
		Offset   int               `json:"offset"`
	}

	// AddDatasetItemRequest is the body of POST /api/v1/datasets/{id}/items.
	AddDatasetItemRequest struct {
		InputVariables map[string]any `json:"input_variables"` //nolint: tagliatelle
		Expected       map[string]any `json:"expected,omitempty"`
	}

	// DatasetItemResponse is the representation of a DatasetItem returned by the API.
	DatasetItemResponse struct {
		ID             string         `json:"id"`
		DatasetID      string         `json:"dataset_id"` //nolint: tagliatelle
		InputVariables map[string]any `json:"input_variables"` //nolint: tagliatelle
		Expected       map[string]any `json:"expected,omitempty"`
		CreatedAt      time.Time      `json:"created_at"` //nolint: tagliatelle
	}

	// DatasetItemListResponse is the response for GET /api/v1/datasets/{id}/items.
	DatasetItemListResponse struct {
		Items []DatasetItemResponse `json:"items"`
	}

	// CreateEvalRunRequest is the body of POST /api/v1/eval-runs.
	CreateEvalRunRequest struct {
		PromptVersionID  string          `json:"prompt_version_id"` //nolint: tagliatelle
		DatasetID        string          `json:"dataset_id"`        //nolint: tagliatelle
		ModelIDs         []string        `json:"model_ids"`         //nolint: tagliatelle
		Assertions       json.RawMessage `json:"assertions,omitempty"`
		ConcurrencyLimit int             `json:"concurrency_limit,omitempty"` //nolint: tagliatelle
		MaxRetries       int             `json:"max_retries,omitempty"`       //nolint: tagliatelle
	}

	// EvalRunResponse is the representation of an EvalRun returned by the API.
	EvalRunResponse struct {
		ID               string             `json:"id"`
		PromptVersionID  string             `json:"prompt_version_id"` //nolint: tagliatelle
		DatasetID        string             `json:"dataset_id"`        //nolint: tagliatelle
		ModelIDs         []string           `json:"model_ids"`         //nolint: tagliatelle
		Status           string             `json:"status"`
		ConcurrencyLimit int                `json:"concurrency_limit"` //nolint: tagliatelle
		MaxRetries       int                `json:"max_retries"`       //nolint: tagliatelle
		Progress         EvalRunProgress    `json:"progress"`
		ErrorMessage     *string            `json:"error_message,omitempty"` //nolint: tagliatelle
		Summary          json.RawMessage    `json:"summary,omitempty"`
		CreatedAt        time.Time          `json:"created_at"`             //nolint: tagliatelle
		StartedAt        *time.Time         `json:"started_at,omitempty"`   //nolint: tagliatelle
		CompletedAt      *time.Time         `json:"completed_at,omitempty"` //nolint: tagliatelle
	}

	// EvalRunProgress mirrors storage.Progress for the HTTP boundary.
	EvalRunProgress struct {
		Total     int     `json:"total"`
		Completed int     `json:"completed"`
		Failed    int     `json:"failed"`
		Percent   float64 `json:"percent"`
	}

	// EvalRunListResponse is the response for GET /api/v1/eval-runs.
	EvalRunListResponse struct {
		Runs   []EvalRunResponse `json:"runs"`
		Limit  int               `json:"limit"`
		Offset int               `json:"offset"`
	}

	// EvalResultResponse is the representation of an EvalResult returned by the API.
	EvalResultResponse struct {
		ID               string          `json:"id"`
		EvalRunID        string          `json:"eval_run_id"` //nolint: tagliatelle
		DatasetItemID    string          `json:"dataset_item_id"` //nolint: tagliatelle
		ModelID          string          `json:"model_id"`     //nolint: tagliatelle
		RenderedPrompt   string          `json:"rendered_prompt"` //nolint: tagliatelle
		RawResponse      *string         `json:"raw_response,omitempty"` //nolint: tagliatelle
		ReasoningContent *string         `json:"reasoning_content,omitempty"` //nolint: tagliatelle
		Assertions       json.RawMessage `json:"assertions"`
		Passed           bool            `json:"passed"`
		LatencyMs        int64           `json:"latency_ms"`  //nolint: tagliatelle
		TokenUsage       json.RawMessage `json:"token_usage"` //nolint: tagliatelle
		CostUSD          *float64        `json:"cost_usd,omitempty"` //nolint: tagliatelle
		Error            *string         `json:"error,omitempty"`
		Attempt          int             `json:"attempt"`
		CreatedAt        time.Time       `json:"created_at"` //nolint: tagliatelle
	}

	// EvalResultListResponse is the response for GET /api/v1/eval-runs/{id}/results.
	EvalResultListResponse struct {
		Results []EvalResultResponse `json:"results"`
	}

	// MultiModelPlaygroundRequest is one of the two shapes accepted by
	// POST /api/v1/playground/run: a single template fanned out across models.
	MultiModelPlaygroundRequest struct {
		TemplateText string         `json:"template_text"` //nolint: tagliatelle
		Variables    map[string]any `json:"variables"`
		ModelIDs     []string       `json:"model_ids"` //nolint: tagliatelle
	}

	// MultiVersionPlaygroundRequest is the other shape accepted by
	// POST /api/v1/playground/run: several prompt versions fanned out across models.
	MultiVersionPlaygroundRequest struct {
		PromptVersionIDs []string       `json:"prompt_version_ids"` //nolint: tagliatelle
		Variables        map[string]any `json:"variables"`
		ModelIDs         []string       `json:"model_ids"` //nolint: tagliatelle
	}

	// PlaygroundRunRequest is the body of POST /api/v1/playground/run. A
	// non-empty TemplateText selects the multi-model fan-out; otherwise a
	// non-empty PromptVersionIDs selects the multi-version fan-out. When both
	// are set, TemplateText is used and PromptVersionIDs is ignored.
	PlaygroundRunRequest struct {
		TemplateText     string         `json:"template_text,omitempty"` //nolint: tagliatelle
		PromptVersionIDs []string       `json:"prompt_version_ids,omitempty"` //nolint: tagliatelle
		Variables        map[string]any `json:"variables"`
		ModelIDs         []string       `json:"model_ids"` //nolint: tagliatelle
	}

	// PlaygroundRunResponse wraps the sub-results of a playground fan-out.
	// It is sent with 200 when the runner returns no error; a per-result failure
	// surfaces only inside that result's Error field.
	PlaygroundRunResponse struct {
		Results []PlaygroundResultResponse `json:"results"`
	}

	// PlaygroundResultResponse is one model (and, for multi-version runs,
	// prompt version) invocation outcome.
	PlaygroundResultResponse struct {
		ModelID         string                   `json:"model_id"` //nolint: tagliatelle
		PromptVersionID string                   `json:"prompt_version_id,omitempty"` //nolint: tagliatelle
		Output          *string                  `json:"output,omitempty"`
		Metrics         PlaygroundMetricsResponse `json:"metrics"`
		Error           *string                  `json:"error,omitempty"`
	}

	// PlaygroundMetricsResponse mirrors playground.Metrics for the HTTP boundary.
	PlaygroundMetricsResponse struct {
		LatencyMs        int64    `json:"latency_ms"` //nolint: tagliatelle
		PromptTokens     int      `json:"prompt_tokens"` //nolint: tagliatelle
		CompletionTokens int      `json:"completion_tokens"` //nolint: tagliatelle
		TotalTokens      int      `json:"total_tokens"` //nolint: tagliatelle
		CostUSD          *float64 `json:"cost_usd,omitempty"` //nolint: tagliatelle
	}

	// IssueShareTokenRequest is the body of POST /api/v1/eval-runs/{id}/share.
	IssueShareTokenRequest struct {
		ExpiresInDays int `json:"expires_in_days,omitempty"` //nolint: tagliatelle
	}

	// ShareTokenResponse is the response for POST /api/v1/eval-runs/{id}/share.
	ShareTokenResponse struct {
		Token     string     `json:"token"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"` //nolint: tagliatelle
	}

	// PublicReportResponse is the response for GET /api/v1/public/reports/{token}.
	PublicReportResponse struct {
		EvalRun EvalRunResponse `json:"eval_run"` //nolint: tagliatelle
	}
)
