package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden     ErrorType = "FORBIDDEN"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidStatus    ErrorCode = "INVALID_STATUS"
	ErrCodeInvalidDate      ErrorCode = "INVALID_DATE"

	ErrCodeJobNotFound        ErrorCode = "JOB_NOT_FOUND"
	ErrCodeTenantNotFound     ErrorCode = "TENANT_NOT_FOUND"
	ErrCodeWorkerNotFound     ErrorCode = "WORKER_NOT_FOUND"
	ErrCodePeriodNotFound     ErrorCode = "PERIOD_NOT_FOUND"
	ErrCodeUnauthorizedAccess ErrorCode = "UNAUTHORIZED_ACCESS"

	ErrCodeConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeDuplicateArtifact ErrorCode = "DUPLICATE_ARTIFACT"
	ErrCodePeriodClosed      ErrorCode = "PERIOD_CLOSED"
	ErrCodePendingApproval   ErrorCode = "PENDING_APPROVAL"
	ErrCodePendingArtifacts  ErrorCode = "PENDING_ARTIFACTS"
	ErrCodeUnbalancedEntry   ErrorCode = "UNBALANCED_ENTRY"
)

// AppError is the single error shape crossing service boundaries. The five
// financial error classes (configuration, duplicate artifact, period closed,
// pending approval, pending artifacts) all surface through it with their own
// codes so handlers can map them onto user-facing messages.
type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewConfigurationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Code:       ErrCodeConfiguration,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrJobNotFound        = NewNotFoundError("job not found", ErrCodeJobNotFound)
	ErrTenantNotFound     = NewNotFoundError("tenant not found", ErrCodeTenantNotFound)
	ErrWorkerNotFound     = NewNotFoundError("worker profile not found", ErrCodeWorkerNotFound)
	ErrPeriodNotFound     = NewNotFoundError("payroll period not found", ErrCodePeriodNotFound)
	ErrUnauthorizedAccess = NewForbiddenError("actor is not allowed to perform this operation", ErrCodeUnauthorizedAccess)

	ErrDuplicateArtifact = NewConflictError("job already has a billing artifact", ErrCodeDuplicateArtifact)
	ErrPeriodClosed      = NewConflictError("financial period is closed for this date", ErrCodePeriodClosed)
	ErrPendingApproval   = NewConflictError("cash custody action out of sequence", ErrCodePendingApproval)
	ErrPendingArtifacts  = NewConflictError("period has unresolved draft artifacts", ErrCodePendingArtifacts)
	ErrUnbalancedEntry   = NewValidationError("ledger transaction debits and credits do not balance", ErrCodeUnbalancedEntry)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
