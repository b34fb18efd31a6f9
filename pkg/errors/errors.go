package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation           ErrorType = "VALIDATION"
	ErrorTypeNotFound             ErrorType = "NOT_FOUND"
	ErrorTypeConflict             ErrorType = "CONFLICT"
	ErrorTypeAlreadyResolved      ErrorType = "ALREADY_RESOLVED"
	ErrorTypeCooldownViolation    ErrorType = "COOLDOWN_VIOLATION"
	ErrorTypeInvalidConfiguration ErrorType = "INVALID_CONFIGURATION"
	ErrorTypeUnauthorized         ErrorType = "UNAUTHORIZED"

	// Application errors
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// Infrastructure errors
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// Cooldown reasons reported in CooldownViolation details.
const (
	ReasonMaxOpenRequests    = "max_open_requests"
	ReasonGenerationCooldown = "generation_cooldown"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetail sets a single detail value
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

func newAppError(errType ErrorType, status int, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message)
}

// NewNotFoundError creates a not found error for the given resource and id
func NewNotFoundError(resource, id string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("%s %s not found", resource, id)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, message)
}

// NewAlreadyResolvedError reports a lifecycle action against a terminal entity.
// Callers that retry should treat it as a no-op.
func NewAlreadyResolvedError(resource, id, status string) *AppError {
	return newAppError(ErrorTypeAlreadyResolved, http.StatusConflict,
		fmt.Sprintf("%s %s is already %s", resource, id, status)).
		WithDetail("id", id).
		WithDetail("status", status)
}

// NewCooldownViolationError reports a generation attempt refused by the cadence guardrail.
func NewCooldownViolationError(reason string, secondsRemaining int) *AppError {
	err := newAppError(ErrorTypeCooldownViolation, http.StatusTooManyRequests,
		fmt.Sprintf("request generation refused: %s", reason)).
		WithCode(reason).
		WithDetail("reason", reason)
	if secondsRemaining > 0 {
		err.WithDetail("cooldown_seconds_remaining", secondsRemaining)
	}
	return err
}

// NewInvalidConfigurationError describes a rejected tunable. The engine logs these and
// falls back to defaults rather than returning them to callers.
func NewInvalidConfigurationError(field string, value interface{}) *AppError {
	return newAppError(ErrorTypeInvalidConfiguration, http.StatusInternalServerError,
		fmt.Sprintf("invalid configuration value for %s: %v", field, value)).
		WithDetail("field", field)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return newAppError(ErrorTypeUnauthorized, http.StatusUnauthorized, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return newAppError(ErrorTypeTimeout, http.StatusGatewayTimeout, fmt.Sprintf("operation '%s' timed out", operation))
}

// NewUnavailableError creates a service unavailable error
func NewUnavailableError(service string) *AppError {
	return newAppError(ErrorTypeUnavailable, http.StatusServiceUnavailable, fmt.Sprintf("service '%s' is unavailable", service))
}

// NewDatabaseError creates a database error. Context deadlines are reported as timeouts.
func NewDatabaseError(operation string, err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(operation).WithCause(err)
	}
	return newAppError(ErrorTypeDatabase, http.StatusInternalServerError,
		fmt.Sprintf("database operation '%s' failed", operation)).WithCause(err)
}

// NewExternalError creates an external service error
func NewExternalError(service string, err error) *AppError {
	return newAppError(ErrorTypeExternal, http.StatusBadGateway, fmt.Sprintf("external service '%s' error", service)).WithCause(err)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }
func IsValidation(err error) bool { return IsType(err, ErrorTypeValidation) }
func IsAlreadyResolved(err error) bool { return IsType(err, ErrorTypeAlreadyResolved) }
func IsCooldownViolation(err error) bool { return IsType(err, ErrorTypeCooldownViolation) }
func IsUnauthorized(err error) bool { return IsType(err, ErrorTypeUnauthorized) }
func IsTimeout(err error) bool { return IsType(err, ErrorTypeTimeout) }

// IsCallerError reports errors caused by the request rather than the system.
// These must not trip circuit breakers.
func IsCallerError(err error) bool {
	return IsNotFound(err) || IsValidation(err) || IsAlreadyResolved(err) || IsCooldownViolation(err)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
