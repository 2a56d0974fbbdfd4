package wordsmith

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LedgerConfig holds credit ledger configuration.
type LedgerConfig struct {
	// Ratios is the pricing table (default: DefaultRatioTable)
	Ratios RatioTable

	// Retry is the contention policy for atomic store calls
	// (default: DefaultRetryPolicy)
	Retry RetryPolicy

	// HistoryLimit caps TransactionHistory when the caller passes
	// limit <= 0 (default: 50)
	HistoryLimit int

	// Metrics tracks ledger operations (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger
}

// Ledger owns per-user credit balances. Every balance mutation goes
// through one of its atomic operations; concurrency safety comes from the
// store's transaction primitive, not from in-process locking.
type Ledger struct {
	store  Store
	config LedgerConfig
	now    func() time.Time
}

// NewLedger creates a credit ledger over the given store.
func NewLedger(store Store, config LedgerConfig) (*Ledger, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}

	if config.Ratios.WordsPerCredit == nil {
		config.Ratios = DefaultRatioTable()
	}
	config.Retry = config.Retry.withDefaults()
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}

	return &Ledger{
		store:  store,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// RequiredCredits computes the credit cost for a word count and tool type.
// Pure function, no I/O.
func (l *Ledger) RequiredCredits(words int, toolType string, op Operation) int64 {
	return l.config.Ratios.RequiredCredits(words, toolType, op)
}

// Reserve atomically removes credits from the user's balance pending a
// commit or rollback. Two concurrent reserves for the same user never both
// observe the same pre-decrement balance: the store either serializes them
// or rejects one with a conflict, which is retried here with exponential
// backoff. InsufficientCreditsError and ErrUserNotFound are fatal and
// never retried.
func (l *Ledger) Reserve(ctx context.Context, userID string, credits int64, toolType string, wordCount int) (*Reservation, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	req := &ReserveRequest{
		ReservationID: uuid.NewString(),
		TransactionID: uuid.NewString(),
		UserID:        userID,
		Credits:       credits,
		ToolType:      toolType,
		WordCount:     wordCount,
		Now:           l.now(),
	}

	var res *Reservation
	start := time.Now()
	err := l.config.Retry.Do(ctx, func() error {
		var err error
		res, err = l.store.Reserve(ctx, req)
		return err
	})
	l.config.Metrics.RecordStoreOperation("reserve", time.Since(start), err)
	l.config.Metrics.RecordReservation(userID, toolType, credits, err == nil)

	if err != nil {
		l.config.Logger.Warn("reserve failed",
			Field{"user_id", userID},
			Field{"credits", credits},
			errField(err),
		)
		return nil, err
	}

	l.config.Logger.Debug("credits reserved",
		Field{"user_id", userID},
		Field{"reservation_id", res.ID},
		Field{"credits", credits},
	)
	return res, nil
}

// Commit finalizes a reservation at its actual cost, returning the unused
// portion to the balance. Idempotent: committing an already-terminal
// reservation is a no-op.
func (l *Ledger) Commit(ctx context.Context, reservationID string, actualCredits int64) error {
	if actualCredits < 0 {
		return ErrInvalidAmount
	}

	req := &CommitRequest{
		ReservationID: reservationID,
		TransactionID: uuid.NewString(),
		ActualCredits: actualCredits,
		Now:           l.now(),
	}

	var res *Reservation
	start := time.Now()
	err := l.config.Retry.Do(ctx, func() error {
		var err error
		res, err = l.store.Commit(ctx, req)
		return err
	})
	l.config.Metrics.RecordStoreOperation("commit", time.Since(start), err)
	if err != nil {
		return err
	}

	l.config.Metrics.RecordCommit(res.UserID, res.Amount, actualCredits)
	l.config.Logger.Debug("reservation committed",
		Field{"reservation_id", reservationID},
		Field{"reserved", res.Amount},
		Field{"charged", actualCredits},
	)
	return nil
}

// Rollback restores the full reserved amount exactly once. Idempotent: a
// second rollback of the same reservation has no further balance effect.
func (l *Ledger) Rollback(ctx context.Context, reservationID string) error {
	req := &RollbackRequest{
		ReservationID: reservationID,
		TransactionID: uuid.NewString(),
		Now:           l.now(),
	}

	var res *Reservation
	start := time.Now()
	err := l.config.Retry.Do(ctx, func() error {
		var err error
		res, err = l.store.Rollback(ctx, req)
		return err
	})
	l.config.Metrics.RecordStoreOperation("rollback", time.Since(start), err)
	if err != nil {
		l.config.Logger.Error("rollback failed",
			Field{"reservation_id", reservationID},
			errField(err),
		)
		return err
	}

	l.config.Metrics.RecordRollback(res.UserID, res.Amount)
	l.config.Logger.Debug("reservation rolled back", Field{"reservation_id", reservationID})
	return nil
}

// Refund additively credits an account independent of any reservation,
// e.g. from an external billing event. Succeeds whenever the account
// exists.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	req := &RefundRequest{
		TransactionID: uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		Reason:        reason,
		Now:           l.now(),
	}

	start := time.Now()
	err := l.config.Retry.Do(ctx, func() error {
		return l.store.Refund(ctx, req)
	})
	l.config.Metrics.RecordStoreOperation("refund", time.Since(start), err)
	if err != nil {
		return err
	}

	l.config.Metrics.RecordRefund(reason, amount)
	l.config.Logger.Info("credits refunded",
		Field{"user_id", userID},
		Field{"amount", amount},
		Field{"reason", reason},
	)
	return nil
}

// Balance returns the user's current credit balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// TransactionHistory returns the user's newest transactions, most recent
// first. limit <= 0 falls back to the configured default.
func (l *Ledger) TransactionHistory(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = l.config.HistoryLimit
	}
	return l.store.Transactions(ctx, userID, limit)
}
