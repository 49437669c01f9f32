package types

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// ErrorCode classifies an AppError. The prefix decides the HTTP status.
type ErrorCode string

const (
	// 400
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidField ErrorCode = "validation_invalid_field"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationTimeRange    ErrorCode = "validation_invalid_time_range"
	ErrCodeValidationPeriod       ErrorCode = "validation_invalid_period"
	ErrCodeValidationActivityID   ErrorCode = "validation_invalid_activity_id"
	ErrCodeValidationLimit        ErrorCode = "validation_invalid_limit"
	ErrCodeValidationUpstreamData ErrorCode = "validation_upstream_payload"

	// 401
	ErrCodeAuthStravaFailed    ErrorCode = "auth_strava_failed"
	ErrCodeAuthNoRefreshToken  ErrorCode = "auth_refresh_token_missing"
	ErrCodeAuthCodeUnavailable ErrorCode = "auth_authorization_code_unavailable"

	// 404
	ErrCodeNotFoundActivity ErrorCode = "not_found_activity"
	ErrCodeNotFoundSyncRun  ErrorCode = "not_found_sync_run"
	ErrCodeNotFoundGoal     ErrorCode = "not_found_goal"

	// 409
	ErrCodeConflictActivityExists ErrorCode = "conflict_activity_exists"
	ErrCodeConflictSyncRunning    ErrorCode = "conflict_sync_in_progress"

	// 500, 502 and 503
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStrava      ErrorCode = "upstream_strava_unavailable"
	ErrCodeUpstreamWeather     ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus returns the status served for c. Unknown prefixes are 500.
func (c ErrorCode) HTTPStatus() int {
	if c == ErrCodeUpstreamRateLimited {
		return http.StatusServiceUnavailable
	}

	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is an error that carries a stable code for API clients and sync
// results. Err keeps the cause for logs and is never serialized.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of e whose details are e's overlaid with
// details. e is left untouched.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+len(details))
	maps.Copy(cp.Details, e.Details)
	maps.Copy(cp.Details, details)
	return &cp
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}

// HasCode reports whether the first AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
