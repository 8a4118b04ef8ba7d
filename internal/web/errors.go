package web

// errors.go provides unified error response handling for the API.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusCode), or statusFor(err) first
//     when the status depends on the error
//  3. Error is mapped via core.MapError to get a user-friendly message
//  4. Technical error is logged with the request id for correlation
//  5. Client gets the JSON ErrorResponse

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/csvlint/internal/core"
	"github.com/JonMunkholm/csvlint/internal/csvw"
	"github.com/JonMunkholm/csvlint/internal/logging"
	"github.com/JonMunkholm/csvlint/internal/schema"
	"github.com/JonMunkholm/csvlint/internal/store"
)

var (
	errRateLimited  = errors.New("rate limit exceeded")
	errFileTooLarge = errors.New("file too large")
	errUnknownDoc   = errors.New("metadata: document is neither CSVW metadata nor a table schema")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error server-side and writes the mapped
// user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	log := logger.Warn
	if statusCode >= http.StatusInternalServerError {
		log = logger.Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor picks the HTTP status for an operational error.
func statusFor(err error) int {
	var (
		metaErr   *csvw.MetadataError
		schemaErr *schema.MetadataError
	)
	switch {
	case errors.As(err, &metaErr), errors.As(err, &schemaErr),
		errors.Is(err, core.ErrNoFiles), errors.Is(err, core.ErrUnknownTable),
		errors.Is(err, errUnknownDoc):
		return http.StatusBadRequest
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case core.IsUserFacing(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
