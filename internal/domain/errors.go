package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Rejected before any write: unknown kind, negative points, bad score.
	ErrInvalidActivity = errors.New("invalid activity")

	// Any collaborator I/O failure, including collaborator timeouts.
	ErrStoreUnavailable = errors.New("progression store unavailable")

	// A defensive consistency check failed.
	ErrInvariantViolation = errors.New("progression invariant violated")

	// Input contract violation, e.g. negative XP handed to the level calculator.
	ErrInvalidState = errors.New("invalid progression state")

	// Compare-and-swap on a user record lost to a concurrent writer.
	ErrVersionConflict = errors.New("progress record version conflict")

	// Idempotency key already present in the ledger.
	ErrDuplicateEntry = errors.New("ledger entry already exists")

	// The activity was recorded but derived state could not be brought up to date.
	ErrDegraded = errors.New("activity recorded, derived state degraded")

	// Query for a user the engine has never seen.
	ErrUnknownUser = errors.New("unknown user")

	// Notification does not exist for the user.
	ErrNotificationNotFound = errors.New("notification not found")

	// Catalog definition rejected at load.
	ErrInvalidCatalog = errors.New("invalid achievement catalog")
)

// Error carries the operation and user behind a progression failure.
// errors.Is matches both Kind and the wrapped cause.
type Error struct {
	Op     string
	Kind   error
	UserID UserID
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.UserID != "" {
		msg += " [" + string(e.UserID) + "]"
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// StoreError wraps a collaborator failure as ErrStoreUnavailable.
// Sentinels the engine branches on pass through unchanged.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateEntry) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &Error{Op: op, Kind: ErrStoreUnavailable, Err: err}
}

// InvalidActivity builds a validation error for the given user.
func InvalidActivity(user UserID, format string, args ...any) error {
	return &Error{Op: "record_activity", Kind: ErrInvalidActivity, UserID: user, Err: fmt.Errorf(format, args...)}
}

// Invariant builds an ErrInvariantViolation for the given user.
func Invariant(op string, user UserID, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrInvariantViolation, UserID: user, Err: fmt.Errorf(format, args...)}
}

// IsRetryable reports whether a failure may succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrVersionConflict)
}
