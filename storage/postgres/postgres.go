// Package postgres provides a PostgreSQL implementation of the
// wordsmith.Store interface. Balance mutations run inside SQL
// transactions with conditional updates and row locks; serialization and
// deadlock failures surface as wordsmith.ErrStoreConflict so the ledger's
// retry policy can re-issue them.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

// Store implements wordsmith.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store adapter
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Schema is the DDL for the ledger tables. The balance check constraint
// is the last line of defense; the conditional UPDATE in Reserve is the
// first.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id    TEXT PRIMARY KEY,
	plan       TEXT NOT NULL,
	balance    BIGINT NOT NULL CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reservations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES accounts(user_id),
	amount     BIGINT NOT NULL,
	state      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	amount     BIGINT NOT NULL,
	tool_type  TEXT NOT NULL DEFAULT '',
	word_count INT NOT NULL DEFAULT 0,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_user_created
	ON transactions (user_id, created_at DESC);
`

// InitSchema creates the ledger tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// mapError converts transient contention errors to ErrStoreConflict.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", wordsmith.ErrStoreConflict, err)
		}
	}
	return err
}

// GetAccount implements wordsmith.Store
func (s *Store) GetAccount(ctx context.Context, userID string) (*wordsmith.Account, error) {
	var acct wordsmith.Account
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, plan, balance, updated_at FROM accounts WHERE user_id = $1`,
		userID).Scan(&acct.UserID, &acct.Plan, &acct.Balance, &acct.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, wordsmith.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, plan, balance, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET
				plan = EXCLUDED.plan,
				balance = EXCLUDED.balance,
				updated_at = EXCLUDED.updated_at`,
		acct.UserID, acct.Plan, acct.Balance, updatedAt,
	)
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback(ctx)

	// Conditional decrement: succeeds only if the balance still covers
	// the credits at write time
	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2, updated_at = $3
			WHERE user_id = $1 AND balance >= $2`,
		req.UserID, req.Credits, req.Now)
	if err != nil {
		return nil, mapError(err)
	}

	if tag.RowsAffected() == 0 {
		var balance int64
		err := tx.QueryRow(ctx,
			`SELECT balance FROM accounts WHERE user_id = $1`, req.UserID).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wordsmith.ErrUserNotFound
		}
		if err != nil {
			return nil, mapError(err)
		}
		return nil, &wordsmith.InsufficientCreditsError{Required: req.Credits, Available: balance}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reservations (id, user_id, amount, state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)`,
		req.ReservationID, req.UserID, req.Credits, wordsmith.ReservationCreated, req.Now)
	if err != nil {
		return nil, mapError(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, kind, amount, tool_type, word_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.TransactionID, req.UserID, wordsmith.TxnReserve, -req.Credits,
		req.ToolType, req.WordCount, req.Now)
	if err != nil {
		return nil, mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
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

// finalize drives a reservation to a terminal state under a row lock and
// credits the balance delta back. Already-terminal reservations are
// returned unchanged.
func (s *Store) finalize(ctx context.Context, reservationID, transactionID string,
	state wordsmith.ReservationState, delta func(reserved int64) int64, now time.Time) (*wordsmith.Reservation, error) {

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback(ctx)

	var res wordsmith.Reservation
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, amount, state, created_at, updated_at
			FROM reservations WHERE id = $1 FOR UPDATE`,
		reservationID).Scan(&res.ID, &res.UserID, &res.Amount, &res.State, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, wordsmith.ErrReservationNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}

	if res.State.Terminal() {
		return &res, nil
	}

	diff := delta(res.Amount)

	_, err = tx.Exec(ctx,
		`UPDATE reservations SET state = $2, updated_at = $3 WHERE id = $1`,
		reservationID, state, now)
	if err != nil {
		return nil, mapError(err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = $3 WHERE user_id = $1`,
		res.UserID, diff, now)
	if err != nil {
		return nil, mapError(err)
	}

	kind := wordsmith.TxnCommit
	if state == wordsmith.ReservationRolledBack {
		kind = wordsmith.TxnRollback
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, kind, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
		transactionID, res.UserID, kind, diff, now)
	if err != nil {
		return nil, mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
	}

	res.State = state
	res.UpdatedAt = now
	return &res, nil
}

// Refund implements wordsmith.Store
func (s *Store) Refund(ctx context.Context, req *wordsmith.RefundRequest) error {
	if req.Amount <= 0 {
		return wordsmith.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = $3 WHERE user_id = $1`,
		req.UserID, req.Amount, req.Now)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return wordsmith.ErrUserNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, kind, amount, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
		req.TransactionID, req.UserID, wordsmith.TxnRefund, req.Amount, req.Reason, req.Now)
	if err != nil {
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// GetReservation implements wordsmith.Store
func (s *Store) GetReservation(ctx context.Context, reservationID string) (*wordsmith.Reservation, error) {
	var res wordsmith.Reservation
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, amount, state, created_at, updated_at
			FROM reservations WHERE id = $1`,
		reservationID).Scan(&res.ID, &res.UserID, &res.Amount, &res.State, &res.CreatedAt, &res.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, wordsmith.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &res, nil
}

// Transactions implements wordsmith.Store
func (s *Store) Transactions(ctx context.Context, userID string, limit int) ([]*wordsmith.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, kind, amount, tool_type, word_count, reason, created_at
			FROM transactions WHERE user_id = $1
			ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*wordsmith.Transaction
	for rows.Next() {
		var txn wordsmith.Transaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Kind, &txn.Amount,
			&txn.ToolType, &txn.WordCount, &txn.Reason, &txn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, &txn)
	}
	return out, rows.Err()
}
