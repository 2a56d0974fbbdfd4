// Package firestore provides a Firestore implementation of the
// wordsmith.Store interface. Balance mutations run inside
// RunTransaction, whose optimistic concurrency aborts one of two racing
// writers; aborted transactions surface as wordsmith.ErrStoreConflict so
// the ledger's retry policy can re-issue them.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

// Store implements wordsmith.Store using Google Cloud Firestore
type Store struct {
	client                 *firestore.Client
	accountsCollection     string
	reservationsCollection string
	transactionsCollection string
}

// Config holds Firestore store configuration
type Config struct {
	// AccountsCollection is the collection for credit accounts
	// Default: "credit_accounts"
	AccountsCollection string

	// ReservationsCollection is the collection for reservations
	// Default: "credit_reservations"
	ReservationsCollection string

	// TransactionsCollection is the collection for the append-only log
	// Default: "credit_transactions"
	TransactionsCollection string
}

// New creates a new Firestore store adapter
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.AccountsCollection == "" {
		config.AccountsCollection = "credit_accounts"
	}
	if config.ReservationsCollection == "" {
		config.ReservationsCollection = "credit_reservations"
	}
	if config.TransactionsCollection == "" {
		config.TransactionsCollection = "credit_transactions"
	}

	return &Store{
		client:                 client,
		accountsCollection:     config.AccountsCollection,
		reservationsCollection: config.ReservationsCollection,
		transactionsCollection: config.TransactionsCollection,
	}, nil
}

func mapError(err error) error {
	switch status.Code(err) {
	case codes.Aborted, codes.FailedPrecondition:
		return fmt.Errorf("%w: %v", wordsmith.ErrStoreConflict, err)
	}
	return err
}

func (s *Store) accountDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.accountsCollection).Doc(userID)
}

func (s *Store) reservationDoc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.reservationsCollection).Doc(id)
}

func (s *Store) transactionDoc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.transactionsCollection).Doc(id)
}

func txnData(id, userID string, kind wordsmith.TransactionKind, amount int64, toolType string, wordCount int, reason string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"userId":    userID,
		"kind":      string(kind),
		"amount":    amount,
		"toolType":  toolType,
		"wordCount": wordCount,
		"reason":    reason,
		"timestamp": now,
	}
}

// GetAccount implements wordsmith.Store
func (s *Store) GetAccount(ctx context.Context, userID string) (*wordsmith.Account, error) {
	snap, err := s.accountDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, wordsmith.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return accountFromSnap(userID, snap.Data()), nil
}

func accountFromSnap(userID string, data map[string]interface{}) *wordsmith.Account {
	return &wordsmith.Account{
		UserID:    userID,
		Plan:      wordsmith.PlanType(getString(data, "plan")),
		Balance:   getInt64(data, "balance"),
		UpdatedAt: getTime(data, "updatedAt"),
	}
}

// PutAccount implements wordsmith.Store
func (s *Store) PutAccount(ctx context.Context, acct *wordsmith.Account) error {
	if acct == nil || acct.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	updatedAt := acct.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.accountDoc(acct.UserID).Set(ctx, map[string]interface{}{
		"plan":      string(acct.Plan),
		"balance":   acct.Balance,
		"updatedAt": updatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}

// Reserve implements wordsmith.Store
func (s *Store) Reserve(ctx context.Context, req *wordsmith.ReserveRequest) (*wordsmith.Reservation, error) {
	if req.Credits <= 0 {
		return nil, wordsmith.ErrInvalidAmount
	}

	var insufficient *wordsmith.InsufficientCreditsError
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(s.accountDoc(req.UserID))
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return wordsmith.ErrUserNotFound
			}
			return err
		}

		balance := getInt64(snap.Data(), "balance")
		if balance < req.Credits {
			insufficient = &wordsmith.InsufficientCreditsError{Required: req.Credits, Available: balance}
			return nil // settled inside the transaction, no writes
		}

		if err := tx.Update(s.accountDoc(req.UserID), []firestore.Update{
			{Path: "balance", Value: balance - req.Credits},
			{Path: "updatedAt", Value: req.Now},
		}); err != nil {
			return err
		}

		if err := tx.Create(s.reservationDoc(req.ReservationID), map[string]interface{}{
			"userId":    req.UserID,
			"amount":    req.Credits,
			"state":     string(wordsmith.ReservationCreated),
			"createdAt": req.Now,
			"updatedAt": req.Now,
		}); err != nil {
			return err
		}

		return tx.Create(s.transactionDoc(req.TransactionID),
			txnData(req.TransactionID, req.UserID, wordsmith.TxnReserve,
				-req.Credits, req.ToolType, req.WordCount, "", req.Now))
	})
	if err != nil {
		if err == wordsmith.ErrUserNotFound {
			return nil, err
		}
		return nil, mapError(err)
	}
	if insufficient != nil {
		return nil, insufficient
	}

	return &wordsmith.Reservation{
		ID:        req.ReservationID,
		UserID:    req.UserID,
		Amount:    req.Credits,
		State:     wordsmith.ReservationCreated,
		CreatedAt: req.Now,
		UpdatedAt: req.Now,
	}, nil
}

// Commit implements wordsmith.Store
func (s *Store) Commit(ctx context.Context, req *wordsmith.CommitRequest) (*wordsmith.Reservation, error) {
	return s.finalize(ctx, req.ReservationID, req.TransactionID, wordsmith.ReservationCommitted,
		func(reserved int64) int64 {
			actual := req.ActualCredits
			if actual > reserved {
				actual = reserved
			}
			return reserved - actual
		}, req.Now)
}

// Rollback implements wordsmith.Store
func (s *Store) Rollback(ctx context.Context, req *wordsmith.RollbackRequest) (*wordsmith.Reservation, error) {
	return s.finalize(ctx, req.ReservationID, req.TransactionID, wordsmith.ReservationRolledBack,
		func(reserved int64) int64 { return reserved }, req.Now)
}

func (s *Store) finalize(ctx context.Context, reservationID, transactionID string,
	state wordsmith.ReservationState, delta func(reserved int64) int64, now time.Time) (*wordsmith.Reservation, error) {

	var out *wordsmith.Reservation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(s.reservationDoc(reservationID))
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return wordsmith.ErrReservationNotFound
			}
			return err
		}

		data := snap.Data()
		res := &wordsmith.Reservation{
			ID:        reservationID,
			UserID:    getString(data, "userId"),
			Amount:    getInt64(data, "amount"),
			State:     wordsmith.ReservationState(getString(data, "state")),
			CreatedAt: getTime(data, "createdAt"),
			UpdatedAt: getTime(data, "updatedAt"),
		}

		if res.State.Terminal() {
			out = res
			return nil // idempotent no-op
		}

		acctSnap, err := tx.Get(s.accountDoc(res.UserID))
		if err != nil {
			return err
		}
		balance := getInt64(acctSnap.Data(), "balance")
		diff := delta(res.Amount)

		if err := tx.Update(s.accountDoc(res.UserID), []firestore.Update{
			{Path: "balance", Value: balance + diff},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		if err := tx.Update(s.reservationDoc(reservationID), []firestore.Update{
			{Path: "state", Value: string(state)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		kind := wordsmith.TxnCommit
		if state == wordsmith.ReservationRolledBack {
			kind = wordsmith.TxnRollback
		}
		if err := tx.Create(s.transactionDoc(transactionID),
			txnData(transactionID, res.UserID, kind, diff, "", 0, "", now)); err != nil {
			return err
		}

		res.State = state
		res.UpdatedAt = now
		out = res
		return nil
	})
	if err != nil {
		if err == wordsmith.ErrReservationNotFound {
			return nil, err
		}
		return nil, mapError(err)
	}
	return out, nil
}

// Refund implements wordsmith.Store
func (s *Store) Refund(ctx context.Context, req *wordsmith.RefundRequest) error {
	if req.Amount <= 0 {
		return wordsmith.ErrInvalidAmount
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(s.accountDoc(req.UserID))
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return wordsmith.ErrUserNotFound
			}
			return err
		}

		balance := getInt64(snap.Data(), "balance")
		if err := tx.Update(s.accountDoc(req.UserID), []firestore.Update{
			{Path: "balance", Value: balance + req.Amount},
			{Path: "updatedAt", Value: req.Now},
		}); err != nil {
			return err
		}

		return tx.Create(s.transactionDoc(req.TransactionID),
			txnData(req.TransactionID, req.UserID, wordsmith.TxnRefund,
				req.Amount, "", 0, req.Reason, req.Now))
	})
	if err != nil {
		if err == wordsmith.ErrUserNotFound {
			return err
		}
		return mapError(err)
	}
	return nil
}

// GetReservation implements wordsmith.Store
func (s *Store) GetReservation(ctx context.Context, reservationID string) (*wordsmith.Reservation, error) {
	snap, err := s.reservationDoc(reservationID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, wordsmith.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	data := snap.Data()
	return &wordsmith.Reservation{
		ID:        reservationID,
		UserID:    getString(data, "userId"),
		Amount:    getInt64(data, "amount"),
		State:     wordsmith.ReservationState(getString(data, "state")),
		CreatedAt: getTime(data, "createdAt"),
		UpdatedAt: getTime(data, "updatedAt"),
	}, nil
}

// Transactions implements wordsmith.Store
// Requires a composite index on (userId ASC, timestamp DESC).
func (s *Store) Transactions(ctx context.Context, userID string, limit int) ([]*wordsmith.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.client.Collection(s.transactionsCollection).
		Where("userId", "==", userID).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []*wordsmith.Transaction
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}

		data := snap.Data()
		out = append(out, &wordsmith.Transaction{
			ID:        getString(data, "id"),
			UserID:    userID,
			Kind:      wordsmith.TransactionKind(getString(data, "kind")),
			Amount:    getInt64(data, "amount"),
			ToolType:  getString(data, "toolType"),
			WordCount: int(getInt64(data, "wordCount")),
			Reason:    getString(data, "reason"),
			Timestamp: getTime(data, "timestamp"),
		})
	}
	return out, nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
