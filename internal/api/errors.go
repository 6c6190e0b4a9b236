// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wms-admin/gateway/internal/client"
	"github.com/wms-admin/gateway/internal/errfile"
	"github.com/wms-admin/gateway/internal/importer"
	"github.com/wms-admin/gateway/internal/ingest"
	"github.com/wms-admin/gateway/internal/storage"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// mapDomainError translates typed domain errors into API errors so
// handlers can return them untouched. Exactly one user-visible message
// per logical failure.
func mapDomainError(err error) *APIError {
	var formatErr *ingest.UnsupportedFormatError
	if errors.As(err, &formatErr) {
		return &APIError{Status: http.StatusBadRequest, Code: "UNSUPPORTED_FORMAT", Message: formatErr.Error()}
	}
	var sizeErr *ingest.FileTooLargeError
	if errors.As(err, &sizeErr) {
		return &APIError{Status: http.StatusBadRequest, Code: "FILE_TOO_LARGE", Message: sizeErr.Error()}
	}
	var parseErr *ingest.ParseError
	if errors.As(err, &parseErr) {
		return &APIError{Status: http.StatusBadRequest, Code: "PARSE_ERROR", Message: parseErr.Error()}
	}

	switch {
	case errors.Is(err, importer.ErrUnknownEntity):
		return &APIError{Status: http.StatusNotFound, Code: "UNKNOWN_ENTITY", Message: "unsupported entity type"}
	case errors.Is(err, importer.ErrSessionNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "SESSION_NOT_FOUND", Message: "import session not found"}
	case errors.Is(err, importer.ErrNoDraft):
		return &APIError{Status: http.StatusNotFound, Code: "NO_DRAFT", Message: "no saved draft for this entity"}
	case errors.Is(err, importer.ErrSubmitInFlight):
		return &APIError{Status: http.StatusConflict, Code: "SUBMIT_IN_FLIGHT", Message: "a submission is already in progress for this session"}
	case errors.Is(err, importer.ErrRowsInvalid):
		return &APIError{Status: http.StatusConflict, Code: "ROWS_INVALID", Message: "rows still have validation errors; fix them or force the import"}
	case errors.Is(err, storage.ErrFileNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "FILE_NOT_FOUND", Message: "staged file not found"}
	}

	var stateErr *importer.StateError
	if errors.As(err, &stateErr) {
		return &APIError{Status: http.StatusConflict, Code: "WRONG_STATE", Message: stateErr.Error()}
	}

	var dlErr *errfile.DownloadError
	if errors.As(err, &dlErr) {
		status := http.StatusBadGateway
		switch dlErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			status = dlErr.Status
		case http.StatusNotFound:
			status = http.StatusNotFound
		}
		return &APIError{Status: status, Code: "DOWNLOAD_FAILED", Message: dlErr.Message}
	}

	var authErr *client.AuthError
	if errors.As(err, &authErr) {
		return &APIError{Status: http.StatusUnauthorized, Code: "AUTH_FAILED", Message: authErr.Message}
	}
	var refreshErr *client.RefreshError
	if errors.As(err, &refreshErr) {
		return &APIError{Status: http.StatusUnauthorized, Code: "AUTH_FAILED", Message: refreshErr.Message}
	}
	var netErr *client.NetworkError
	if errors.As(err, &netErr) {
		return &APIError{Status: http.StatusBadGateway, Code: "UPSTREAM_UNREACHABLE", Message: netErr.UserMessage()}
	}
	var upErr *client.UpstreamError
	if errors.As(err, &upErr) {
		return &APIError{Status: http.StatusBadGateway, Code: "UPSTREAM_ERROR", Message: upErr.Detail}
	}

	return nil
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		if mapped := mapDomainError(err); mapped != nil {
			apiErr = mapped
		} else {
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}
