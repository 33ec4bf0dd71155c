package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Transaction Errors (TXN_*)
	ErrorCodeTxnNotFound     ErrorCode = "TXN_NOT_FOUND"
	ErrorCodeTxnInvalidState ErrorCode = "TXN_INVALID_STATE"

	// Provider Errors (PROVIDER_*)
	ErrorCodeProviderError       ErrorCode = "PROVIDER_ERROR"
	ErrorCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrorCodeProviderUnknown     ErrorCode = "PROVIDER_UNKNOWN"

	// Side-Effect Errors (SIDE_EFFECT_*) - logged and counted, never propagated
	ErrorCodeSideEffectNotify  ErrorCode = "SIDE_EFFECT_NOTIFY_FAILED"
	ErrorCodeSideEffectArchive ErrorCode = "SIDE_EFFECT_ARCHIVE_FAILED"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodeTxnNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// IsProviderError checks if an error came from the provider call itself
// rather than from the payment outcome
func IsProviderError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeProviderError ||
		code == ErrorCodeProviderUnavailable
}

// Structured error instances
var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "amount must be greater than zero")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrTxnNotFound     = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")
	ErrTxnInvalidState = NewDomainError(ErrorCodeTxnInvalidState, "transaction is in invalid state for this operation")

	ErrProviderError       = NewDomainError(ErrorCodeProviderError, "provider call failed")
	ErrProviderUnavailable = NewDomainError(ErrorCodeProviderUnavailable, "provider status query unavailable")
	ErrProviderUnknown     = NewDomainError(ErrorCodeProviderUnknown, "unsupported payment provider")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
