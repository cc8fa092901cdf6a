package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrValidation         = errors.New("validation failed")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Plan / configuration errors: operator-actionable misconfiguration.
	ErrInvalidPlan   = errors.New("unknown plan code")
	ErrConfiguration = errors.New("billing configuration invalid")

	// Integrity failures: rejected outright, never partially applied.
	ErrAmountMismatch       = errors.New("amount does not match expected charge")
	ErrSubscriptionMismatch = errors.New("payment does not belong to subscription")
	ErrSignatureInvalid     = errors.New("signature verification failed")

	// Expected business conditions, surfaced distinctly so callers can react.
	ErrInsufficientBalance  = errors.New("insufficient wallet balance")
	ErrBelowMinimumPayout   = errors.New("payout amount below configured minimum")
	ErrPayoutAlreadyPending = errors.New("a pending payout already exists")
	ErrInvalidTransition    = errors.New("status transition not allowed")

	// Transient: a conditional update lost a race; caller may retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrLockNotAcquired = errors.New("could not acquire lock")
)
