// Package errors provides the error taxonomy shared by the bridge components.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeValidationError      = "VALIDATION_ERROR"
	ErrCodeUnknownCommand       = "UNKNOWN_COMMAND"
	ErrCodeNotReady             = "NOT_READY"
	ErrCodeConnectorUnavailable = "CONNECTOR_UNAVAILABLE"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeRemoteExecution      = "REMOTE_EXECUTION"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// ValidationError creates a new validation error for a specific parameter.
func ValidationError(field string, message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidationError,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// UnknownCommand creates the error returned for a command name outside the known set.
func UnknownCommand(name string) *AppError {
	return &AppError{
		Code:       ErrCodeUnknownCommand,
		Message:    fmt.Sprintf("Unknown command: %s", name),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotReady creates the error returned when the bridge cannot accept a command.
func NotReady(state string) *AppError {
	return &AppError{
		Code:       ErrCodeNotReady,
		Message:    fmt.Sprintf("Bridge not ready (status: %s)", state),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// ConnectorUnavailable creates an error for connect and launch failures.
func ConnectorUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeConnectorUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Timeout creates a connector timeout error. Timeouts are a kind of
// connector unavailability, see IsConnectorUnavailable.
func Timeout(message string) *AppError {
	return &AppError{
		Code:       ErrCodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// RemoteExecution creates an error for a remote tool that replied with an error status.
func RemoteExecution(message string) *AppError {
	return &AppError{
		Code:       ErrCodeRemoteExecution,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
	}
}

// InternalError creates a new internal error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Code returns the error code of err, or ErrCodeInternalError for foreign errors.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// Message returns the human-readable message of err without the code prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return Code(err) == ErrCodeNotFound
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return Code(err) == ErrCodeValidationError
}

// IsUnknownCommand checks if the error is an unknown command error.
func IsUnknownCommand(err error) bool {
	return Code(err) == ErrCodeUnknownCommand
}

// IsTimeout checks if the error is a connector timeout.
func IsTimeout(err error) bool {
	return Code(err) == ErrCodeTimeout
}

// IsConnectorUnavailable checks if the error is a connect, launch or timeout failure.
func IsConnectorUnavailable(err error) bool {
	c := Code(err)
	return c == ErrCodeConnectorUnavailable || c == ErrCodeTimeout
}

// IsRemoteExecution checks if the error is a remote tool error reply.
func IsRemoteExecution(err error) bool {
	return Code(err) == ErrCodeRemoteExecution
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
