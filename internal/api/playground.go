package api

import (
	"net/http"

	"github.com/promptforge/promptforge/internal/playground"
	"github.com/promptforge/promptforge/internal/template"
)

func playgroundResultsToResponse(results []playground.Result) []PlaygroundResultResponse {
	out := make([]PlaygroundResultResponse, len(results))
	for i, res := range results {
		out[i] = PlaygroundResultResponse{
			ModelID:         res.ModelID,
			PromptVersionID: res.PromptVersionID,
			Output:          res.Output,
			Error:           res.Error,
			Metrics: PlaygroundMetricsResponse{
				LatencyMs:        res.Metrics.LatencyMs,
				PromptTokens:     res.Metrics.PromptTokens,
				CompletionTokens: res.Metrics.CompletionTokens,
				TotalTokens:      res.Metrics.TotalTokens,
				CostUSD:          res.Metrics.CostUSD,
			},
		}
	}

	return out
}

// handlePlaygroundRun handles POST /api/v1/playground/run. It dispatches to
// the multi-model or multi-version fan-out depending on which request shape
// is populated. Once a fan-out runs it answers 200: a per-model or per-version
// failure surfaces as an errored sub-result, not an HTTP error. A request
// without model_ids or without either shape gets 400, and when the runner
// returns an error (missing variables, an unknown prompt version, or a failure
// to record the run) the answer is 422.
func (s *Server) handlePlaygroundRun(w http.ResponseWriter, r *http.Request) {
	var req PlaygroundRunRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	if len(req.ModelIDs) == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("model_ids is required"))

		return
	}

	switch {
	case req.TemplateText != "":
		results, err := s.playgroundRun.RunMultiModel(
			r.Context(), template.TypeText, req.TemplateText, nil, req.Variables, req.ModelIDs,
		)
		if err != nil {
			WriteErrorResponse(w, r, s.logger, UnprocessableEntity(err.Error()))

			return
		}

		writeJSON(w, r, s.logger, http.StatusOK, PlaygroundRunResponse{Results: playgroundResultsToResponse(results)})
	case len(req.PromptVersionIDs) > 0:
		results, err := s.playgroundRun.RunMultiVersion(r.Context(), req.PromptVersionIDs, req.Variables, req.ModelIDs)
		if err != nil {
			WriteErrorResponse(w, r, s.logger, UnprocessableEntity(err.Error()))

			return
		}

		writeJSON(w, r, s.logger, http.StatusOK, PlaygroundRunResponse{Results: playgroundResultsToResponse(results)})
	default:
		WriteErrorResponse(w, r, s.logger, BadRequest("exactly one of template_text or prompt_version_ids is required"))
	}
}
