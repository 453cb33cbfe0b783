// Package handlers provides the HTTP request handlers for the netrecon API.
// This file holds the response and request helpers shared by every handler.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/anstrom/netrecon/internal/api/middleware"
	"github.com/anstrom/netrecon/internal/errors"
)

// DefaultMaxRequestSize caps JSON request bodies when no limit is configured.
const DefaultMaxRequestSize = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	}
	if code := errors.GetCode(err); code != errors.CodeUnknown {
		response.Code = string(code)
	}
	writeJSON(w, r, statusCode, response)
}

// statusForError maps an error code to an HTTP status.
func statusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeValidation, errors.CodeTargetInvalid, errors.CodeConfiguration:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeCanceled:
		return http.StatusConflict
	case errors.CodeDatabaseConnection, errors.CodeGatewayUndetectable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err with the status its code maps to. Server-side
// failures are logged.
func handleError(w http.ResponseWriter, r *http.Request, err error, operation string, logger *slog.Logger) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Failed to "+operation,
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
	writeError(w, r, status, err)
}

// parseJSON decodes the request body into dest, rejecting unknown fields and
// bodies larger than maxSize.
func parseJSON(w http.ResponseWriter, r *http.Request, dest interface{}, maxSize int64) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.NewScanError(errors.CodeValidation, "request body is empty")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewScanError(errors.CodeValidation,
				fmt.Sprintf("request body too large (max %d bytes)", maxSize))
		}
		return errors.WrapScanError(errors.CodeValidation, "invalid JSON", err)
	}
	return nil
}

// extractStringFromPath returns the named path variable.
func extractStringFromPath(r *http.Request, key string) (string, error) {
	value, exists := mux.Vars(r)[key]
	if !exists || strings.TrimSpace(value) == "" {
		return "", errors.NewScanError(errors.CodeValidation, key+" not provided")
	}
	return value, nil
}

// getQueryParamInt extracts integer query parameter with default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ErrConfigInvalid(key, value)
	}
	return n, nil
}
