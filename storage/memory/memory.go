// Package memory provides an in-memory implementation of the
// wordsmith.Store interface. This implementation is primarily intended
// for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

// Store implements wordsmith.Store using in-memory maps. A single mutex
// stands in for the transactional primitive a durable backend provides:
// every operation is atomic and per-user operations are linearized.
type Store struct {
	mu           sync.Mutex
	accounts     map[string]*wordsmith.Account
	reservations map[string]*wordsmith.Reservation
	transactions map[string][]*wordsmith.Transaction
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]*wordsmith.Account),
		reservations: make(map[string]*wordsmith.Reservation),
		transactions: make(map[string][]*wordsmith.Transaction),
	}
}

// GetAccount implements wordsmith.Store
func (s *Store) GetAccount(ctx context.Context, userID string) (*wordsmith.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, wordsmith.ErrUserNotFound
	}

	// Return a copy to prevent external mutations
	acctCopy := *acct
	return &acctCopy, nil
}

// PutAccount implements wordsmith.Store
func (s *Store) PutAccount(ctx context.Context, acct *wordsmith.Account) error {
	if acct == nil || acct.UserID == "" {
		return fmt.Errorf("invalid account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acctCopy := *acct
	s.accounts[acct.UserID] = &acctCopy
	return nil
}

// Reserve implements wordsmith.Store
func (s *Store) Reserve(ctx context.Context, req *wordsmith.ReserveRequest) (*wordsmith.Reservation, error) {
	if req.Credits <= 0 {
		return nil, wordsmith.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[req.UserID]
	if !ok {
		return nil, wordsmith.ErrUserNotFound
	}
	if acct.Balance < req.Credits {
		return nil, &wordsmith.InsufficientCreditsError{
			Required:  req.Credits,
			Available: acct.Balance,
		}
	}

	acct.Balance -= req.Credits
	acct.UpdatedAt = req.Now

	res := &wordsmith.Reservation{
		ID:        req.ReservationID,
		UserID:    req.UserID,
		Amount:    req.Credits,
		State:     wordsmith.ReservationCreated,
		CreatedAt: req.Now,
		UpdatedAt: req.Now,
	}
	s.reservations[res.ID] = res

	s.transactions[req.UserID] = append(s.transactions[req.UserID], &wordsmith.Transaction{
		ID:        req.TransactionID,
		UserID:    req.UserID,
		Kind:      wordsmith.TxnReserve,
		Amount:    -req.Credits,
		ToolType:  req.ToolType,
		WordCount: req.WordCount,
		Timestamp: req.Now,
	})

	resCopy := *res
	return &resCopy, nil
}

// Commit implements wordsmith.Store
func (s *Store) Commit(ctx context.Context, req *wordsmith.CommitRequest) (*wordsmith.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[req.ReservationID]
	if !ok {
		return nil, wordsmith.ErrReservationNotFound
	}
	if res.State.Terminal() {
		resCopy := *res
		return &resCopy, nil
	}

	actual := req.ActualCredits
	if actual > res.Amount {
		actual = res.Amount
	}
	diff := res.Amount - actual

	acct := s.accounts[res.UserID]
	acct.Balance += diff
	acct.UpdatedAt = req.Now

	res.State = wordsmith.ReservationCommitted
	res.UpdatedAt = req.Now

	s.transactions[res.UserID] = append(s.transactions[res.UserID], &wordsmith.Transaction{
		ID:        req.TransactionID,
		UserID:    res.UserID,
		Kind:      wordsmith.TxnCommit,
		Amount:    diff,
		Timestamp: req.Now,
	})

	resCopy := *res
	return &resCopy, nil
}

// Rollback implements wordsmith.Store
func (s *Store) Rollback(ctx context.Context, req *wordsmith.RollbackRequest) (*wordsmith.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[req.ReservationID]
	if !ok {
		return nil, wordsmith.ErrReservationNotFound
	}
	if res.State.Terminal() {
		resCopy := *res
		return &resCopy, nil
	}

	acct := s.accounts[res.UserID]
	acct.Balance += res.Amount
	acct.UpdatedAt = req.Now

	res.State = wordsmith.ReservationRolledBack
	res.UpdatedAt = req.Now

	s.transactions[res.UserID] = append(s.transactions[res.UserID], &wordsmith.Transaction{
		ID:        req.TransactionID,
		UserID:    res.UserID,
		Kind:      wordsmith.TxnRollback,
		Amount:    res.Amount,
		Timestamp: req.Now,
	})

	resCopy := *res
	return &resCopy, nil
}

// Refund implements wordsmith.Store
func (s *Store) Refund(ctx context.Context, req *wordsmith.RefundRequest) error {
	if req.Amount <= 0 {
		return wordsmith.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[req.UserID]
	if !ok {
		return wordsmith.ErrUserNotFound
	}

	acct.Balance += req.Amount
	acct.UpdatedAt = req.Now

	s.transactions[req.UserID] = append(s.transactions[req.UserID], &wordsmith.Transaction{
		ID:        req.TransactionID,
		UserID:    req.UserID,
		Kind:      wordsmith.TxnRefund,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Timestamp: req.Now,
	})

	return nil
}

// GetReservation implements wordsmith.Store
func (s *Store) GetReservation(ctx context.Context, reservationID string) (*wordsmith.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[reservationID]
	if !ok {
		return nil, wordsmith.ErrReservationNotFound
	}

	resCopy := *res
	return &resCopy, nil
}

// Transactions implements wordsmith.Store
func (s *Store) Transactions(ctx context.Context, userID string, limit int) ([]*wordsmith.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.transactions[userID]
	out := make([]*wordsmith.Transaction, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		txnCopy := *log[i]
		out = append(out, &txnCopy)
	}

	// The log is append-ordered; equal timestamps keep insertion order
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Clear removes all data (useful for testing)
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*wordsmith.Account)
	s.reservations = make(map[string]*wordsmith.Reservation)
	s.transactions = make(map[string][]*wordsmith.Transaction)
}
