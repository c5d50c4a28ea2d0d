package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/promptforge/promptforge/internal/api/middleware"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MiB
	defaultPageSize     = 50
)

// decodeJSON decodes r's body into dst, rejecting non-JSON content types and
// oversized bodies before attempting to parse.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, logger, UnsupportedMediaType("Content-Type must be application/json"))

		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteErrorResponse(w, r, logger, BadRequest("invalid request body: "+err.Error()))

		return false
	}

	return true
}

// writeJSON marshals v and writes it with the given status code, logging
// (but not retrying) any failure to encode or write.
func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		correlationID := middleware.GetCorrelationID(r.Context())
		logger.Error("failed to marshal response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, logger, InternalServerError("failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		correlationID := middleware.GetCorrelationID(r.Context())
		logger.Error("failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// pathValue reads a {name} path parameter registered via Go 1.22+ mux patterns.
func pathValue(r *http.Request, name string) string {
	return r.PathValue(name)
}
