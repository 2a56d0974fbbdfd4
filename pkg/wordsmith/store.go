package wordsmith

import (
	"context"
	"time"
)

// Store defines the interface for ledger persistence.
// All methods use concrete types from this package to avoid import cycles.
//
// Reserve, Commit, Rollback and Refund must each execute as one atomic unit
// against the backend: either every write in the operation lands or none
// does. A write that would race another writer for the same account must
// either be serialized by the backend or fail with ErrStoreConflict, in
// which case the ledger re-issues it under its retry policy. Because the
// operation is all-or-nothing, re-issuing after a conflict is always safe.
type Store interface {
	// GetAccount retrieves a user's account.
	// Returns ErrUserNotFound if no account exists.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// PutAccount creates or replaces an account record.
	PutAccount(ctx context.Context, acct *Account) error

	// Reserve atomically checks the balance, decrements it by the
	// requested credits, creates a CREATED reservation and appends a
	// reserve transaction. Returns *InsufficientCreditsError when the
	// balance is too low and ErrUserNotFound when the account is missing.
	Reserve(ctx context.Context, req *ReserveRequest) (*Reservation, error)

	// Commit finalizes a reservation: marks it COMMITTED, returns the
	// unused portion of the reserved credits to the balance and appends a
	// commit transaction. Calling Commit on an already-terminal
	// reservation is a no-op and returns the reservation unchanged.
	Commit(ctx context.Context, req *CommitRequest) (*Reservation, error)

	// Rollback atomically restores the full reserved amount, marks the
	// reservation ROLLED_BACK and appends a rollback transaction.
	// Idempotent: a second call on a terminal reservation changes nothing.
	Rollback(ctx context.Context, req *RollbackRequest) (*Reservation, error)

	// Refund additively credits an account independent of any
	// reservation. Returns ErrUserNotFound if the account is missing.
	Refund(ctx context.Context, req *RefundRequest) error

	// GetReservation retrieves a reservation by id.
	// Returns ErrReservationNotFound if no reservation exists.
	GetReservation(ctx context.Context, reservationID string) (*Reservation, error)

	// Transactions returns the newest transactions for a user, most
	// recent first, at most limit entries.
	Transactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}

// ReserveRequest carries a credit reservation into the store. The ledger
// generates the ids and timestamp so the store can replay the request
// verbatim after a conflict retry.
type ReserveRequest struct {
	ReservationID string
	TransactionID string
	UserID        string
	Credits       int64
	ToolType      string
	WordCount     int
	Now           time.Time
}

// CommitRequest finalizes a reservation at its actual cost. The store
// computes the refunded difference from the stored reservation amount;
// ActualCredits above the reserved amount is clamped to it.
type CommitRequest struct {
	ReservationID string
	TransactionID string
	ActualCredits int64
	Now           time.Time
}

// RollbackRequest releases a reservation in full.
type RollbackRequest struct {
	ReservationID string
	TransactionID string
	Now           time.Time
}

// RefundRequest additively credits an account (billing events, manual
// corrections). Reason is recorded on the refund transaction so the
// history shows where the credits came from.
type RefundRequest struct {
	TransactionID string
	UserID        string
	Amount        int64
	Reason        string
	Now           time.Time
}
