/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with the helpers at the bottom instead of
  matching on message strings.

ERROR CATEGORIES:
  1. Validation errors - Business rule violations (share caps, bad status)
  2. Not-found errors  - Missing transactions, participants, merge requests
  3. Authorization errors - Creator-only mutations attempted by others

USAGE:
  if errors.Is(err, settlement.ErrSharesExceedTotal) { ... }

  var capErr *settlement.ShareCapError
  if errors.As(err, &capErr) { capErr.Total, capErr.Requested ... }

SEE ALSO:
  - split.go: Raises the share-cap errors
  - ledger.go: Raises not-found and status errors
*/
package settlement

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSharesExceedTotal is returned when explicit participant amounts sum
	// past the transaction amount. The whole creation rolls back.
	ErrSharesExceedTotal = errors.New("total participant shares exceed transaction amount")

	// ErrPercentExceedsTotal is returned when explicit percentages sum past 100.
	ErrPercentExceedsTotal = errors.New("total participant shares exceed 100 percent")

	// ErrNonPositiveAmount is returned for a transaction amount <= 0.
	ErrNonPositiveAmount = errors.New("transaction amount must be positive")

	// ErrInvalidStatus is returned for a response status outside
	// ACCEPTED/REJECTED.
	ErrInvalidStatus = errors.New("invalid participant status")

	// ErrTransactionNotFound is returned when a referenced transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrParticipantNotFound is returned when the caller has no participant
	// row on the transaction.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrMergeRequestNotFound is returned when a merge request doesn't exist
	// or the caller is not its target.
	ErrMergeRequestNotFound = errors.New("merge request not found")

	// ErrNotCreator is returned when a non-creator attempts a creator-only
	// mutation.
	ErrNotCreator = errors.New("only the transaction creator may do this")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ShareCapError details a share-cap violation during creation or update.
type ShareCapError struct {
	TransactionID TransactionID
	Total         Money
	Requested     Money
}

func (e *ShareCapError) Error() string {
	return fmt.Sprintf("total participant shares %s exceed transaction amount %s",
		e.Requested, e.Total)
}

func (e *ShareCapError) Unwrap() error { return ErrSharesExceedTotal }

// PercentCapError details a percentage-cap violation.
type PercentCapError struct {
	TransactionID TransactionID
	Requested     string
}

func (e *PercentCapError) Error() string {
	return fmt.Sprintf("total participant shares %s%% exceed 100%%", e.Requested)
}

func (e *PercentCapError) Unwrap() error { return ErrPercentExceedsTotal }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSharesExceedTotal) ||
		errors.Is(err, ErrPercentExceedsTotal) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsNotFound returns true if the error indicates a missing entity or a caller
// with no standing relationship to it.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrMergeRequestNotFound)
}

// IsForbidden returns true for creator-only violations.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotCreator)
}
