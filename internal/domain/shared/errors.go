// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp too far in the future")

	// Idempotency
	ErrDuplicateEvent = errors.New("duplicate event")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrAlreadyApplied  = errors.New("already applied")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Infrastructure errors
	ErrStorage            = errors.New("storage error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "achievement", "streak", "reward"
	Op      string // Operation that failed, e.g., "Evaluate", "Dispatch"
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

// Activity domain errors
var (
	ErrMissingUserID    = NewDomainError("activity", "Validate", ErrEmptyValue, "user ID is required")
	ErrMissingEventType = NewDomainError("activity", "Validate", ErrEmptyValue, "event type is required")
	ErrMissingTimestamp = NewDomainError("activity", "Validate", ErrEmptyValue, "timestamp is required")
	ErrMissingDedupKey  = NewDomainError("activity", "Validate", ErrEmptyValue, "idempotency key is required")
	ErrTimestampSkew    = NewDomainError("activity", "Validate", ErrFutureTimestamp, "timestamp exceeds allowed future skew")
)

// Achievement domain errors
var (
	ErrDefinitionNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement definition not found")
	ErrProgressNotFound   = NewDomainError("achievement", "Find", ErrNotFound, "achievement progress not found")
	ErrAlreadyUnlocked    = NewDomainError("achievement", "Unlock", ErrAlreadyApplied, "achievement already unlocked")
	ErrInvalidDefinition  = NewDomainError("achievement", "Validate", ErrInvalidInput, "invalid achievement definition")
)

// Streak domain errors
var (
	ErrStreakNotFound = NewDomainError("streak", "Find", ErrNotFound, "streak state not found")
	ErrOutOfOrderDay  = NewDomainError("streak", "RecordActivity", ErrStateTransition, "activity day precedes last active day")
)

// Reward domain errors
var (
	ErrRewardApplied     = NewDomainError("reward", "Dispatch", ErrAlreadyApplied, "reward already applied")
	ErrLedgerEntryExists = NewDomainError("reward", "Append", ErrAlreadyExists, "ledger entry already exists")
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
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrFutureTimestamp)
}

// IsDuplicate checks if the error marks an already-processed event.
// Duplicates are successful no-ops, never failures.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEvent) || errors.Is(err, ErrAlreadyApplied)
}

// IsRetryable checks if the operation can be retried safely.
// Every mutating operation in the engine is idempotent by construction
// (dedup key, unlock-record presence, reward-ledger key), so transient
// infrastructure failures are always retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock)
}
