// Package shared contains common domain types, errors, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrLimitExceeded    = errors.New("limit exceeded")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Concurrency errors
	ErrInProgress = errors.New("operation already in progress")

	// Infrastructure errors
	ErrTransport          = errors.New("transport error")
	ErrPersistence        = errors.New("persistence error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attendance", "exemption", "sweep"
	Op      string // Operation that failed, e.g., "Report", "Declare"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// validation builds a validation error that also matches a more specific kind.
func validation(domain, op string, kind error, message string) *DomainError {
	return WrapError(domain, op, ErrValidation, message, kind)
}

// Attendance domain errors
var (
	ErrNoPledge        = validation("attendance", "Report", ErrInvalidState, "no wake-up time set")
	ErrDuplicateReport = validation("attendance", "Report", ErrAlreadyProcessed, "already reported today")
	ErrMalformedTime   = validation("attendance", "SetWakeupTime", ErrInvalidFormat, "wake-up time must be 0-23 hours and 0-59 minutes")
	ErrInvalidMember   = validation("attendance", "Validate", ErrInvalidID, "member ID cannot be empty")
	ErrInvalidGroup    = validation("attendance", "Validate", ErrInvalidID, "group ID cannot be empty")
	ErrGroupNotFound   = NewDomainError("attendance", "Find", ErrNotFound, "group not found")
	ErrMemberNotFound  = NewDomainError("attendance", "Find", ErrNotFound, "member not found")
)

// Exemption domain errors
var (
	ErrExemptionTooLate   = validation("exemption", "Declare", ErrExpired, "exemption cutoff has passed")
	ErrQuotaExhausted     = validation("exemption", "Declare", ErrLimitExceeded, "weekly exemption already used")
	ErrExemptionNotActive = validation("exemption", "Revoke", ErrInvalidState, "no active exemption")
)

// Sweep errors
var (
	ErrSweepInProgress = NewDomainError("sweep", "Run", ErrInProgress, "sweep already running")
	ErrNotAdmin        = NewDomainError("admin", "Authorize", ErrForbidden, "admin privileges required")
)

// External service errors
var (
	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrTransport, "Telegram API request failed")
	ErrStoreUnavailable  = NewDomainError("store", "Ping", ErrServiceUnavailable, "state store is unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsTransport checks if the error came from an outbound messaging channel.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrRateLimited)
}

// IsPersistence checks if the error came from the state store.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
