package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/template"
)

func promptToResponse(p *storage.Prompt) PromptResponse {
	return PromptResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt}
}

func promptVersionToResponse(v *storage.PromptVersion) PromptVersionResponse {
	labels := v.Labels
	if labels == nil {
		labels = []string{}
	}

	return PromptVersionResponse{
		ID:            v.ID,
		PromptID:      v.PromptID,
		VersionNumber: v.VersionNumber,
		TemplateText:  v.TemplateText,
		Variables:     v.Variables,
		Labels:        labels,
		CreatedAt:     v.CreatedAt,
	}
}

// handleCreatePrompt handles POST /api/v1/prompts.
func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	if req.Name == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("name is required"))

		return
	}

	prompt := &storage.Prompt{ID: uuid.NewString(), Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := s.promptStore.CreatePrompt(r.Context(), prompt); err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to create prompt"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, promptToResponse(prompt))
}

// handleListPrompts handles GET /api/v1/prompts.
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	limit := queryIntDefault(r, "limit", defaultPageSize)
	offset := queryIntDefault(r, "offset", 0)

	prompts, err := s.promptStore.ListPrompts(r.Context(), limit, offset)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to list prompts"))

		return
	}

	resp := PromptListResponse{Prompts: make([]PromptResponse, len(prompts)), Limit: limit, Offset: offset}
	for i, p := range prompts {
		resp.Prompts[i] = promptToResponse(p)
	}

	writeJSON(w, r, s.logger, http.StatusOK, resp)
}

// handleGetPrompt handles GET /api/v1/prompts/{id}.
func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := s.promptStore.GetPrompt(r.Context(), pathValue(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrPromptNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("prompt not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load prompt"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, promptToResponse(prompt))
}

// handleCreatePromptVersion handles POST /api/v1/prompts/{id}/versions.
func (s *Server) handleCreatePromptVersion(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptVersionRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	if req.TemplateText == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("template_text is required"))

		return
	}

	version := &storage.PromptVersion{
		ID:           uuid.NewString(),
		PromptID:     pathValue(r, "id"),
		TemplateText: req.TemplateText,
		Variables:    template.Extract(req.TemplateText),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.promptStore.CreateVersion(r.Context(), version); err != nil {
		if errors.Is(err, storage.ErrPromptNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("prompt not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to create prompt version"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, promptVersionToResponse(version))
}

// handleListPromptVersions handles GET /api/v1/prompts/{id}/versions.
func (s *Server) handleListPromptVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.promptStore.ListVersions(r.Context(), pathValue(r, "id"))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to list prompt versions"))

		return
	}

	resp := make([]PromptVersionResponse, len(versions))
	for i, v := range versions {
		resp[i] = promptVersionToResponse(v)
	}

	writeJSON(w, r, s.logger, http.StatusOK, resp)
}

// handleGetPromptVersion handles GET /api/v1/prompts/{id}/versions/{version}.
func (s *Server) handleGetPromptVersion(w http.ResponseWriter, r *http.Request) {
	versionNumber, ok := parsePathInt(w, r, s.logger, "version")
	if !ok {
		return
	}

	version, err := s.promptStore.GetVersion(r.Context(), pathValue(r, "id"), versionNumber)
	if err != nil {
		if errors.Is(err, storage.ErrPromptVersionNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("prompt version not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load prompt version"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, promptVersionToResponse(version))
}

// handleAddPromptVersionLabel handles POST /api/v1/prompts/{id}/versions/{version}/label.
// Adding a label a version already holds is a no-op; the label is first
// stripped from whichever other version of the same prompt previously held it.
func (s *Server) handleAddPromptVersionLabel(w http.ResponseWriter, r *http.Request) {
	versionNumber, ok := parsePathInt(w, r, s.logger, "version")
	if !ok {
		return
	}

	var req AddLabelRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	if err := s.promptStore.AddLabel(r.Context(), pathValue(r, "id"), versionNumber, req.Label); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidLabel):
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		case errors.Is(err, storage.ErrPromptVersionNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("prompt version not found"))
		default:
			WriteErrorResponse(w, r, s.logger, InternalServerError("failed to add label"))
		}

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRemovePromptVersionLabel handles DELETE /api/v1/prompts/{id}/versions/{version}/label.
// The label to remove is given via the ?label= query parameter. Removing a
// label the version does not hold is a no-op, not an error.
func (s *Server) handleRemovePromptVersionLabel(w http.ResponseWriter, r *http.Request) {
	versionNumber, ok := parsePathInt(w, r, s.logger, "version")
	if !ok {
		return
	}

	label := r.URL.Query().Get("label")
	if label == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("label query parameter is required"))

		return
	}

	if err := s.promptStore.RemoveLabel(r.Context(), pathValue(r, "id"), versionNumber, label); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidLabel):
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		case errors.Is(err, storage.ErrPromptVersionNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("prompt version not found"))
		default:
			WriteErrorResponse(w, r, s.logger, InternalServerError("failed to remove label"))
		}

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDryRunPromptVersion handles POST /api/v1/prompts/{id}/versions/{version}/dry-run.
func (s *Server) handleDryRunPromptVersion(w http.ResponseWriter, r *http.Request) {
	versionNumber, ok := parsePathInt(w, r, s.logger, "version")
	if !ok {
		return
	}

	var req DryRunRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	version, err := s.promptStore.GetVersion(r.Context(), pathValue(r, "id"), versionNumber)
	if err != nil {
		if errors.Is(err, storage.ErrPromptVersionNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("prompt version not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load prompt version"))

		return
	}

	result := template.DryRun(template.TypeText, version.TemplateText, nil, req.Variables)

	writeJSON(w, r, s.logger, http.StatusOK, DryRunResponse{
		CompiledText:      result.CompiledText,
		RequiredVariables: result.RequiredVariables,
		ProvidedVariables: result.ProvidedVariables,
		MissingVariables:  result.MissingVariables,
		IsValid:           result.IsValid,
	})
}

// parsePathInt parses a path parameter as an int, writing a 400 response and
// returning ok=false on failure.
func parsePathInt(w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string) (int, bool) {
	n, err := strconv.Atoi(pathValue(r, name))
	if err != nil {
		WriteErrorResponse(w, r, logger, BadRequest(name+" must be an integer"))

		return 0, false
	}

	return n, true
}
