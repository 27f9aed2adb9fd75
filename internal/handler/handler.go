// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dermascan/dermascan/internal/handler/dto"
	"github.com/dermascan/dermascan/internal/inference"
	"github.com/dermascan/dermascan/internal/middleware"
	"github.com/dermascan/dermascan/internal/service"
)

// Error codes returned in dto.ErrorResponse.
const (
	CodeDuplicateUser      = "DUPLICATE_USER"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeValidation         = "VALIDATION_ERROR"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeInferenceError     = "INFERENCE_ERROR"
	CodeInferenceTimeout   = "INFERENCE_TIMEOUT"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

// Handler serves the service-level endpoints.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Root reports that the API is running.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.StatusResponse{
		Message: "Skin Disease Detection API",
		Status:  "running",
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// handleServiceError maps service and inference errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateUser):
		writeError(w, http.StatusConflict, CodeDuplicateUser, "Username already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid username or password")
	case errors.Is(err, service.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, detail(err, service.ErrValidation))
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, detail(err, service.ErrValidation))
	case errors.Is(err, inference.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, CodeInferenceTimeout, "The analysis service did not respond in time")
	case errors.Is(err, inference.ErrMalformedReply):
		writeError(w, http.StatusBadGateway, CodeInferenceError, "The analysis service returned an incomplete result")
	case errors.Is(err, inference.ErrUnsupportedImage):
		writeError(w, http.StatusBadGateway, CodeInferenceError, "The analysis service could not process this image")
	case errors.Is(err, inference.ErrInference):
		writeError(w, http.StatusBadGateway, CodeInferenceError, "The analysis service is unavailable")
	case errors.Is(err, service.ErrDatabase):
		logger.Error("database error",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, CodeDatabaseError, "A database error occurred")
	default:
		logger.Error("unhandled error",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

// detail strips the sentinel prefix so "validation failed: x" becomes "x".
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		msg = msg[len(prefix):]
	}
	if msg == "" {
		return sentinel.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
