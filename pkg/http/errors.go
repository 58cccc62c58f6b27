package http

import (
	"errors"
	"fmt"
	"net/http"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
		Params:  make(map[string]interface{}),
	}
}

// WithParam sets a single error param.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", message, http.StatusNotFound)
}

// NotFoundErrorf creates a 404 error with formatting.
func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", message, http.StatusBadRequest)
}

// BadRequestErrorf creates a 400 error with formatting.
func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

// TooManyRequestsError creates a 429 error.
func TooManyRequestsError(message string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", message, http.StatusTooManyRequests)
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

// FromError maps domain errors onto HTTP errors. Unknown errors become 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var ip *errs.InvalidParameterError
	var id *errs.InsufficientDataError
	switch {
	case errors.As(err, &ip):
		return NewAppError("ERR_INVALID_PARAMETER", ip.Param, ip.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, errs.ErrInvalidParameter):
		return NewAppError("ERR_INVALID_PARAMETER", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.As(err, &id):
		return NewAppError("ERR_INSUFFICIENT_DATA", "", id.Error(), http.StatusUnprocessableEntity).
			WithParam("need", id.Need).WithParam("got", id.Got).WithError(err)
	case errors.Is(err, errs.ErrInsufficientData):
		return NewAppError("ERR_INSUFFICIENT_DATA", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, errs.ErrAlignmentFailure):
		return NewAppError("ERR_ALIGNMENT_FAILURE", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, models.ErrReportNotFound):
		return NotFoundError(err.Error()).WithError(err)
	default:
		return InternalError("Something went wrong").WithError(err)
	}
}
