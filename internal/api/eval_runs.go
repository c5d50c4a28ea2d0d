package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/internal/storage"
)

func evalRunToResponse(run *storage.EvalRun) EvalRunResponse {
	var summary json.RawMessage
	if run.Summary != nil {
		if encoded, err := json.Marshal(run.Summary); err == nil {
			summary = encoded
		}
	}

	progress := run.Progress()

	return EvalRunResponse{
		ID:               run.ID,
		PromptVersionID:  run.PromptVersionID,
		DatasetID:        run.DatasetID,
		ModelIDs:         run.ModelIDs,
		Status:           run.Status,
		ConcurrencyLimit: run.ConcurrencyLimit,
		MaxRetries:       run.MaxRetries,
		Progress: EvalRunProgress{
			Total:     progress.Total,
			Completed: progress.Completed,
			Failed:    progress.Failed,
			Percent:   progress.Percent,
		},
		ErrorMessage: run.ErrorMessage,
		Summary:      summary,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
	}
}

func evalResultToResponse(r *storage.EvalResult) EvalResultResponse {
	return EvalResultResponse{
		ID:               r.ID,
		EvalRunID:        r.EvalRunID,
		DatasetItemID:    r.DatasetItemID,
		ModelID:          r.ModelID,
		RenderedPrompt:   r.RenderedPrompt,
		RawResponse:      r.RawResponse,
		ReasoningContent: r.ReasoningContent,
		Assertions:       r.Assertions,
		Passed:           r.Passed,
		LatencyMs:        r.LatencyMs,
		TokenUsage:       r.TokenUsage,
		CostUSD:          r.CostUSD,
		Error:            r.Error,
		Attempt:          r.Attempt,
		CreatedAt:        r.CreatedAt,
	}
}

// handleCreateEvalRun handles POST /api/v1/eval-runs.
func (s *Server) handleCreateEvalRun(w http.ResponseWriter, r *http.Request) {
	var req CreateEvalRunRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	if req.PromptVersionID == "" || req.DatasetID == "" || len(req.ModelIDs) == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("prompt_version_id, dataset_id, and model_ids are required"))

		return
	}

	assertions := req.Assertions
	if assertions == nil {
		assertions = json.RawMessage("[]")
	}

	run := &storage.EvalRun{
		ID:               uuid.NewString(),
		PromptVersionID:  req.PromptVersionID,
		DatasetID:        req.DatasetID,
		ModelIDs:         req.ModelIDs,
		Assertions:       assertions,
		ConcurrencyLimit: req.ConcurrencyLimit,
		MaxRetries:       req.MaxRetries,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.evalRunStore.CreateRun(r.Context(), run); err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to create eval run"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, evalRunToResponse(run))
}

// handleListEvalRuns handles GET /api/v1/eval-runs.
func (s *Server) handleListEvalRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryIntDefault(r, "limit", defaultPageSize)
	offset := queryIntDefault(r, "offset", 0)

	runs, err := s.evalRunStore.ListRuns(r.Context(), limit, offset)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to list eval runs"))

		return
	}

	resp := EvalRunListResponse{Runs: make([]EvalRunResponse, len(runs)), Limit: limit, Offset: offset}
	for i, run := range runs {
		resp.Runs[i] = evalRunToResponse(run)
	}

	writeJSON(w, r, s.logger, http.StatusOK, resp)
}

// handleGetEvalRun handles GET /api/v1/eval-runs/{id}.
func (s *Server) handleGetEvalRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.evalRunStore.GetRun(r.Context(), pathValue(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrEvalRunNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("eval run not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load eval run"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, evalRunToResponse(run))
}

// handleCancelEvalRun handles POST /api/v1/eval-runs/{id}/cancel.
func (s *Server) handleCancelEvalRun(w http.ResponseWriter, r *http.Request) {
	id := pathValue(r, "id")

	if err := s.evalRunStore.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, storage.ErrEvalRunNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("eval run not found"))
		case errors.Is(err, storage.ErrEvalRunNotCancel):
			WriteErrorResponse(w, r, s.logger, Conflict(err.Error()))
		default:
			WriteErrorResponse(w, r, s.logger, InternalServerError("failed to cancel eval run"))
		}

		return
	}

	run, err := s.evalRunStore.GetRun(r.Context(), id)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load canceled eval run"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, evalRunToResponse(run))
}

// handleListEvalResults handles GET /api/v1/eval-runs/{id}/results.
func (s *Server) handleListEvalResults(w http.ResponseWriter, r *http.Request) {
	limit := queryIntDefault(r, "limit", defaultPageSize)
	offset := queryIntDefault(r, "offset", 0)

	var modelID *string
	if v := r.URL.Query().Get("model_id"); v != "" {
		modelID = &v
	}

	var passed *bool
	if v := r.URL.Query().Get("passed"); v != "" {
		p := v == "true"
		passed = &p
	}

	results, err := s.evalResultStore.ListByRun(r.Context(), pathValue(r, "id"), modelID, passed, limit, offset)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to list eval results"))

		return
	}

	resp := EvalResultListResponse{Results: make([]EvalResultResponse, len(results))}
	for i, res := range results {
		resp.Results[i] = evalResultToResponse(res)
	}

	writeJSON(w, r, s.logger, http.StatusOK, resp)
}
