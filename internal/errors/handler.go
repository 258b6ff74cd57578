package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorHandler converts application errors into JSON API responses
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger: logger.With(slog.String("component", "error_handler")),
	}
}

// HandleError logs err and writes the matching API error
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	apiErr := ToAPIError(err)
	render.Status(r, apiErr.StatusCode)
	render.JSON(w, r, NewErrorResponse(apiErr))
}

// ToAPIError maps an error onto the API error taxonomy
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrTypeNotFound:
			return NewWithDetails(http.StatusNotFound, "NOT_FOUND", appErr.Message, appErr.Context)
		case ErrTypeValidation, ErrTypeParsing:
			return NewWithDetails(http.StatusBadRequest, string(appErr.Type), appErr.Message, appErr.Context)
		case ErrTypeInvariant:
			return NewWithDetails(http.StatusConflict, string(appErr.Type), appErr.Message, appErr.Context)
		}
	}

	return ErrInternalServer
}

// HandlePanic writes a 500 response for a recovered panic
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.String("panic", fmt.Sprintf("%v", recovered)),
		slog.String("path", r.URL.Path),
	)
	WriteError(w, ErrInternalServer)
}

// NotFound handles unknown routes
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, NotFoundError(r.URL.Path))
}

// RecoveryMiddleware provides panic recovery with proper error responses
func RecoveryMiddleware(handler *ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					handler.HandlePanic(w, r, err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
