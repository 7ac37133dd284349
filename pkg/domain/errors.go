package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeProvider           = "PROVIDER_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeUsageLimitExceeded = "USAGE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewConfigurationError creates an error for unresolvable billing configuration,
// such as an unknown provider price id or a plan missing from the catalog.
func NewConfigurationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConfiguration,
		Message: msg,
	}
}

// NewProviderError wraps a transient billing provider failure. These are
// retried by the reconciliation sweep on its next run, never inline.
func NewProviderError(msg string, err error) error {
	return &DomainError{
		Code:    ErrCodeProvider,
		Message: msg,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewUsageLimitError creates a new usage limit exceeded error
func NewUsageLimitError(limit int) error {
	return &DomainError{
		Code:    ErrCodeUsageLimitExceeded,
		Message: fmt.Sprintf("Usage limit of %d exceeded. Please upgrade your plan.", limit),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

func hasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsProvider checks if the error is a provider error
func IsProvider(err error) bool {
	return hasCode(err, ErrCodeProvider)
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsUsageLimitExceeded checks if the error is a usage limit exceeded error
func IsUsageLimitExceeded(err error) bool {
	return hasCode(err, ErrCodeUsageLimitExceeded)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}
