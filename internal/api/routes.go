// Package api provides HTTP API server implementation for the PromptForge service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/promptforge/promptforge/internal/api/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string
		Handler http.HandlerFunc
	}
)

// setupRoutes registers every HTTP route for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},
		Route{"GET /ready", s.handleReady},
		Route{"GET /health", s.handleHealth},
		Route{"GET /api/v1/public/reports/{token}", s.handleGetPublicReport},
		Route{"GET /api/v1/public/reports/{token}/results", s.handleGetPublicReportResults},
		Route{"/", s.handleNotFound},
	)

	mux.HandleFunc("POST /api/v1/prompts", s.handleCreatePrompt)
	mux.HandleFunc("GET /api/v1/prompts", s.handleListPrompts)
	mux.HandleFunc("GET /api/v1/prompts/{id}", s.handleGetPrompt)
	mux.HandleFunc("POST /api/v1/prompts/{id}/versions", s.handleCreatePromptVersion)
	mux.HandleFunc("GET /api/v1/prompts/{id}/versions", s.handleListPromptVersions)
	mux.HandleFunc("GET /api/v1/prompts/{id}/versions/{version}", s.handleGetPromptVersion)
	mux.HandleFunc("POST /api/v1/prompts/{id}/versions/{version}/label", s.handleAddPromptVersionLabel)
	mux.HandleFunc("DELETE /api/v1/prompts/{id}/versions/{version}/label", s.handleRemovePromptVersionLabel)
	mux.HandleFunc("POST /api/v1/prompts/{id}/versions/{version}/dry-run", s.handleDryRunPromptVersion)

	mux.HandleFunc("POST /api/v1/datasets", s.handleCreateDataset)
	mux.HandleFunc("GET /api/v1/datasets", s.handleListDatasets)
	mux.HandleFunc("GET /api/v1/datasets/{id}", s.handleGetDataset)
	mux.HandleFunc("POST /api/v1/datasets/{id}/items", s.handleAddDatasetItem)
	mux.HandleFunc("GET /api/v1/datasets/{id}/items", s.handleListDatasetItems)

	mux.HandleFunc("POST /api/v1/eval-runs", s.handleCreateEvalRun)
	mux.HandleFunc("GET /api/v1/eval-runs", s.handleListEvalRuns)
	mux.HandleFunc("GET /api/v1/eval-runs/{id}", s.handleGetEvalRun)
	mux.HandleFunc("POST /api/v1/eval-runs/{id}/cancel", s.handleCancelEvalRun)
	mux.HandleFunc("GET /api/v1/eval-runs/{id}/results", s.handleListEvalResults)
	mux.HandleFunc("POST /api/v1/eval-runs/{id}/share", s.handleIssueShareToken)
	mux.HandleFunc("DELETE /api/v1/eval-runs/{id}/share", s.handleRevokeShareToken)

	mux.HandleFunc("POST /api/v1/playground/run", s.handlePlaygroundRun)
}

// registerPublicRoutes registers HTTP routes that bypass client authentication.
// Rate limiting still applies to them.
// Security Warning: never register business logic endpoints as public routes
// unless, like the public report endpoints here, the whole point is
// unauthenticated access via a bearer-style share token in the path.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to Kubernetes readiness probes with storage backend health checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.apiKeyStore == nil { // pragma: allowlist secret
		s.logger.Warn("API key store not configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.apiKeyStore.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "promptforge",
		Version:     "v1.0.0",
		Uptime:      uptime,
	}

	writeJSON(w, r, s.logger, http.StatusOK, health)
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}

// queryIntDefault reads a query parameter as an int, falling back to def on
// absence or parse failure.
func queryIntDefault(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}

	return v
}
