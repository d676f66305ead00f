package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorCodeBadInput           ErrorCode = "BAD_INPUT"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeUpstreamBlocked    ErrorCode = "UPSTREAM_BLOCKED"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    make(map[string]interface{}),
	}
}

func NewErrorWithDetails(code ErrorCode, message string, statusCode int, details map[string]interface{}) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

// Common error constructors
func NewBadInputError(message string, details map[string]interface{}) *AppError {
	return NewErrorWithDetails(ErrorCodeBadInput, message, http.StatusBadRequest, details)
}

func NewInvalidURLError(rawURL string, reason string) *AppError {
	return NewErrorWithDetails(
		ErrorCodeBadInput,
		"The provided URL is not a valid http(s) URL",
		http.StatusBadRequest,
		map[string]interface{}{
			"provided": rawURL,
			"reason":   reason,
		},
	)
}

func NewNotFoundError(rawURL string) *AppError {
	return NewErrorWithDetails(
		ErrorCodeNotFound,
		"No downloadable media found for this URL",
		http.StatusNotFound,
		map[string]interface{}{
			"url": rawURL,
		},
	)
}

func NewUpstreamBlockedError(lastStatus int, attempts int) *AppError {
	return NewErrorWithDetails(
		ErrorCodeUpstreamBlocked,
		fmt.Sprintf("Origin rejected every identity (last status %d)", lastStatus),
		http.StatusBadRequest,
		map[string]interface{}{
			"last_status": lastStatus,
			"attempts":    attempts,
		},
	)
}

func NewTimeoutError(operation string) *AppError {
	return NewError(
		ErrorCodeTimeout,
		fmt.Sprintf("Timed out while %s", operation),
		http.StatusGatewayTimeout,
	)
}

func NewUnauthorizedError() *AppError {
	return NewError(
		ErrorCodeUnauthorized,
		"Invalid or missing authentication",
		http.StatusUnauthorized,
	)
}

func NewRateLimitError() *AppError {
	return NewError(
		ErrorCodeRateLimitExceeded,
		"Too many requests",
		http.StatusTooManyRequests,
	)
}

func NewStorageUnavailableError() *AppError {
	return NewError(
		ErrorCodeStorageUnavailable,
		"Archive storage is not configured",
		http.StatusServiceUnavailable,
	)
}

func NewInternalError() *AppError {
	return NewError(
		ErrorCodeInternalError,
		"An unexpected error occurred",
		http.StatusInternalServerError,
	)
}

// AsAppError maps any error onto the public taxonomy. AppErrors pass through,
// deadline errors become Timeout and everything else is Internal.
func AsAppError(err error, operation string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(operation)
	}
	return NewInternalError()
}
