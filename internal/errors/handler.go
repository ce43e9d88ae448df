// Package errors provides the error taxonomy and JSON error responses
package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"ragex-demo/internal/config"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	// RequestID is included in development/staging for debugging
	RequestID string `json:"request_id,omitempty"`
	// Details are only included in detailed error mode
	Details string `json:"details,omitempty"`
}

// ErrorHandler provides secure error handling based on configuration
type ErrorHandler struct {
	config *config.Config
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler with the given configuration
func NewErrorHandler(cfg *config.Config, logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		config: cfg,
		logger: logger,
	}
}

// HandleValidationError handles malformed submissions
func (h *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	response := ErrorResponse{
		Code:      http.StatusBadRequest,
		Status:    "Bad Request",
		Message:   "Invalid request",
		RequestID: h.getRequestID(requestID),
	}
	if h.detailed() {
		response.Message = "Invalid request parameters"
		response.Details = err.Error()
	}

	h.logError("VALIDATION_ERROR", err, requestID, r)
	h.writeJSONError(w, response)
}

// HandleMethodNotAllowed rejects requests using an unsupported method
func (h *ErrorHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request, requestID string) {
	response := ErrorResponse{
		Code:      http.StatusMethodNotAllowed,
		Status:    "Method Not Allowed",
		Message:   "Method not allowed",
		RequestID: h.getRequestID(requestID),
	}

	h.logError("METHOD_NOT_ALLOWED", nil, requestID, r)
	h.writeJSONError(w, response)
}

// HandleInternalError handles internal server errors
func (h *ErrorHandler) HandleInternalError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	response := ErrorResponse{
		Code:      http.StatusInternalServerError,
		Status:    "Internal Server Error",
		Message:   "An internal error occurred",
		RequestID: h.getRequestID(requestID),
	}

	// Never expose internal error details in production
	if h.config.IsDevelopment() && h.detailed() {
		response.Details = err.Error()
	}

	h.logError("INTERNAL_ERROR", err, requestID, r)
	h.writeJSONError(w, response)
}

func (h *ErrorHandler) detailed() bool {
	return h.config.Security.ErrorMode != "secure" && !h.config.IsProduction()
}

// writeJSONError writes an error response as JSON
func (h *ErrorHandler) writeJSONError(w http.ResponseWriter, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.Code)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("error encoding error response", zap.Error(err))
	}
}

// logError logs errors with request context
func (h *ErrorHandler) logError(errorType string, err error, requestID string, r *http.Request) {
	fields := []zap.Field{
		zap.String("type", errorType),
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("user_agent", r.Header.Get("User-Agent")),
		zap.String("remote_ip", getClientIP(r)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	h.logger.Error("request failed", fields...)
}

// getRequestID hides the request ID in secure production mode
func (h *ErrorHandler) getRequestID(requestID string) string {
	if h.config.IsProduction() && h.config.Security.ErrorMode == "secure" {
		return ""
	}
	return requestID
}

// getClientIP extracts the real client IP from request headers
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
