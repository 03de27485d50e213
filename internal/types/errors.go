package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and repositories use these constants instead
// of hardcoded strings so the admin API can map errors to HTTP statuses
// consistently.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidTime   ErrorCode = "validation_invalid_time"
	ErrCodeValidationInvalidZone   ErrorCode = "validation_invalid_timezone"
	ErrCodeValidationInvalidKind   ErrorCode = "validation_invalid_kind"
	ErrCodeValidationInvalidRange  ErrorCode = "validation_value_out_of_range"
	ErrCodeValidationInvalidCursor ErrorCode = "validation_invalid_cursor"

	// Auth (401)
	ErrCodeAuthKeyMissing ErrorCode = "auth_api_key_missing"
	ErrCodeAuthKeyInvalid ErrorCode = "auth_api_key_invalid"

	// Not Found (404)
	ErrCodeNotFoundUser          ErrorCode = "not_found_user"
	ErrCodeNotFoundEnrollment    ErrorCode = "not_found_enrollment"
	ErrCodeNotFoundLesson        ErrorCode = "not_found_lesson"
	ErrCodeNotFoundQuest         ErrorCode = "not_found_quest"
	ErrCodeNotFoundQuestionnaire ErrorCode = "not_found_questionnaire"
	ErrCodeNotFoundHabit         ErrorCode = "not_found_habit"
	ErrCodeNotFoundReminder      ErrorCode = "not_found_reminder"
	ErrCodeNotFoundJob           ErrorCode = "not_found_job"
	ErrCodeNotFoundDelivery      ErrorCode = "not_found_delivery"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamTransport  ErrorCode = "upstream_transport_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain and repository
// errors are expressed as AppError to enable consistent error formatting,
// HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
