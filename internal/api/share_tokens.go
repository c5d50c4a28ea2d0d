package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/promptforge/internal/storage"
)

const hoursPerDay = 24

// handleIssueShareToken handles POST /api/v1/eval-runs/{id}/share.
func (s *Server) handleIssueShareToken(w http.ResponseWriter, r *http.Request) {
	runID := pathValue(r, "id")

	if _, err := s.evalRunStore.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, storage.ErrEvalRunNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("eval run not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load eval run"))

		return
	}

	var req IssueShareTokenRequest
	if !decodeJSON(w, r, s.logger, &req) {
		return
	}

	token, err := storage.GenerateToken()
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to generate share token"))

		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpiresInDays) * hoursPerDay * time.Hour)
		expiresAt = &t
	}

	shareToken := &storage.ShareToken{
		ID:        uuid.NewString(),
		EvalRunID: runID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.shareTokenStore.Issue(r.Context(), shareToken); err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to issue share token"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, ShareTokenResponse{
		Token:     shareToken.Token,
		ExpiresAt: shareToken.ExpiresAt,
	})
}

// handleRevokeShareToken handles DELETE /api/v1/eval-runs/{id}/share.
func (s *Server) handleRevokeShareToken(w http.ResponseWriter, r *http.Request) {
	if err := s.shareTokenStore.Revoke(r.Context(), pathValue(r, "id")); err != nil {
		if errors.Is(err, storage.ErrShareTokenNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("share token not found"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to revoke share token"))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetPublicReport handles GET /api/v1/public/reports/{token}.
func (s *Server) handleGetPublicReport(w http.ResponseWriter, r *http.Request) {
	runID, err := s.shareTokenStore.Resolve(r.Context(), pathValue(r, "token"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrShareTokenNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("share token not found"))
		case errors.Is(err, storage.ErrShareTokenExpired):
			WriteErrorResponse(w, r, s.logger, Gone("share token expired or revoked"))
		default:
			WriteErrorResponse(w, r, s.logger, InternalServerError("failed to resolve share token"))
		}

		return
	}

	run, err := s.evalRunStore.GetRun(r.Context(), runID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to load eval run"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, PublicReportResponse{EvalRun: evalRunToResponse(run)})
}

// handleGetPublicReportResults handles GET /api/v1/public/reports/{token}/results.
func (s *Server) handleGetPublicReportResults(w http.ResponseWriter, r *http.Request) {
	runID, err := s.shareTokenStore.Resolve(r.Context(), pathValue(r, "token"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrShareTokenNotFound):
			WriteErrorResponse(w, r, s.logger, NotFound("share token not found"))
		case errors.Is(err, storage.ErrShareTokenExpired):
			WriteErrorResponse(w, r, s.logger, Gone("share token expired or revoked"))
		default:
			WriteErrorResponse(w, r, s.logger, InternalServerError("failed to resolve share token"))
		}

		return
	}

	limit := queryIntDefault(r, "limit", defaultPageSize)
	offset := queryIntDefault(r, "offset", 0)

	results, err := s.evalResultStore.ListByRun(r.Context(), runID, nil, nil, limit, offset)
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
