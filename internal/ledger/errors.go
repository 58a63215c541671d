package ledger

import "errors"

// Domain errors for the ledger package.
var (
	// ErrNotFound is returned when no attempt matches the given ID.
	ErrNotFound = errors.New("ledger: attempt not found")

	// ErrDuplicate is returned when an attempt ID is recorded twice.
	// The ledger is append-only; a duplicate insert is a caller bug.
	ErrDuplicate = errors.New("ledger: attempt already recorded")
)
