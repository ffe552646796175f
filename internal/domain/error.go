package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Payment pipeline errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrUnauthorizedWebhook = errors.New("webhook failed provider authenticity check")
	ErrUnmatchedReference  = errors.New("no session matches provider reference")
	ErrUnknownProvider     = errors.New("unknown payment provider")
	ErrSessionTerminal     = errors.New("session already in a terminal state")
	ErrLockHeld            = errors.New("reference is being reconciled elsewhere")

	// ErrInconsistentState marks a paid ledger row whose entitlement
	// activation did not complete. It is retryable and must be surfaced
	// for admin reconciliation, never swallowed.
	ErrInconsistentState = errors.New("ledger paid but entitlement not activated")
)
