// Package redis provides a Redis implementation of the wordsmith.Store
// interface. All balance-mutating operations run as Lua scripts so each
// reserve/commit/rollback/refund is a single atomic round trip; Redis
// serializes scripts per node, which linearizes concurrent reservations
// for the same user.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
)

// Store implements wordsmith.Store using Redis
type Store struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis store configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "wordsmith:")
	KeyPrefix string

	// ReservationTTL is the TTL for terminal reservation keys
	// (0 = no expiration). Open reservations never expire.
	ReservationTTL time.Duration

	// HistoryMax caps the transaction log length per user; older entries
	// are trimmed (default: 1000)
	HistoryMax int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:      "wordsmith:",
		ReservationTTL: 30 * 24 * time.Hour,
		HistoryMax:     1000,
	}
}

// New creates a new Redis store adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "wordsmith:"
	}
	if config.HistoryMax <= 0 {
		config.HistoryMax = 1000
	}

	s := &Store{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()
	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Store) loadScripts() {
	// Reserve credits atomically: balance check, decrement, reservation
	// record and transaction append in one unit
	s.scripts["reserve"] = redis.NewScript(`
		local accountKey = KEYS[1]
		local reservationKey = KEYS[2]
		local txnsKey = KEYS[3]
		local credits = tonumber(ARGV[1])
		local userID = ARGV[2]
		local now = ARGV[3]
		local txnData = ARGV[4]
		local historyMax = tonumber(ARGV[5])

		if redis.call('EXISTS', accountKey) == 0 then
			return {'not_found', 0}
		end

		local balance = tonumber(redis.call('HGET', accountKey, 'balance')) or 0
		if balance < credits then
			return {'insufficient', balance}
		end

		redis.call('HSET', accountKey, 'balance', balance - credits, 'updated_at', now)
		redis.call('HSET', reservationKey,
			'user_id', userID,
			'amount', credits,
			'state', 'CREATED',
			'created_at', now,
			'updated_at', now)
		redis.call('LPUSH', txnsKey, txnData)
		redis.call('LTRIM', txnsKey, 0, historyMax - 1)

		return {'ok', balance - credits}
	`)

	// Finalize a reservation: state gate keeps the operation idempotent
	s.scripts["commit"] = redis.NewScript(`
		local accountKey = KEYS[1]
		local reservationKey = KEYS[2]
		local txnsKey = KEYS[3]
		local diff = tonumber(ARGV[1])
		local newState = ARGV[2]
		local now = ARGV[3]
		local txnData = ARGV[4]
		local historyMax = tonumber(ARGV[5])
		local ttl = tonumber(ARGV[6])

		local state = redis.call('HGET', reservationKey, 'state')
		if not state then
			return 'not_found'
		end
		if state ~= 'CREATED' then
			return 'terminal'
		end

		if diff > 0 then
			local balance = tonumber(redis.call('HGET', accountKey, 'balance')) or 0
			redis.call('HSET', accountKey, 'balance', balance + diff)
		end
		redis.call('HSET', accountKey, 'updated_at', now)
		redis.call('HSET', reservationKey, 'state', newState, 'updated_at', now)
		redis.call('LPUSH', txnsKey, txnData)
		redis.call('LTRIM', txnsKey, 0, historyMax - 1)

		if ttl > 0 then
			redis.call('EXPIRE', reservationKey, ttl)
		end

		return 'ok'
	`)

	// Additive refund independent of reservations
	s.scripts["refund"] = redis.NewScript(`
		local accountKey = KEYS[1]
		local txnsKey = KEYS[2]
		local amount = tonumber(ARGV[1])
		local now = ARGV[2]
		local txnData = ARGV[3]
		local historyMax = tonumber(ARGV[4])

		if redis.call('EXISTS', accountKey) == 0 then
			return 'not_found'
		end

		local balance = tonumber(redis.call('HGET', accountKey, 'balance')) or 0
		redis.call('HSET', accountKey, 'balance', balance + amount, 'updated_at', now)
		redis.call('LPUSH', txnsKey, txnData)
		redis.call('LTRIM', txnsKey, 0, historyMax - 1)

		return 'ok'
	`)
}

func (s *Store) accountKey(userID string) string {
	return s.config.KeyPrefix + "account:" + userID
}

func (s *Store) reservationKey(id string) string {
	return s.config.KeyPrefix + "reservation:" + id
}

func (s *Store) txnsKey(userID string) string {
	return s.config.KeyPrefix + "txns:" + userID
}

// txnRecord is the JSON shape of one transaction log entry
type txnRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount"`
	ToolType  string `json:"tool_type,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func marshalTxn(id, userID string, kind wordsmith.TransactionKind, amount int64, toolType string, wordCount int, reason string, now time.Time) (string, error) {
	data, err := json.Marshal(txnRecord{
		ID:        id,
		UserID:    userID,
		Kind:      string(kind),
		Amount:    amount,
		ToolType:  toolType,
		WordCount: wordCount,
		Reason:    reason,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return string(data), nil
}

// GetAccount implements wordsmith.Store
func (s *Store) GetAccount(ctx context.Context, userID string) (*wordsmith.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.accountKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(fields) == 0 {
		return nil, wordsmith.ErrUserNotFound
	}

	acct := &wordsmith.Account{
		UserID: userID,
		Plan:   wordsmith.PlanType(fields["plan"]),
	}
	if _, err := fmt.Sscanf(fields["balance"], "%d", &acct.Balance); err != nil {
		return nil, fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		acct.UpdatedAt = ts
	}
	return acct, nil
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

	err := s.client.HSet(ctx, s.accountKey(acct.UserID),
		"plan", string(acct.Plan),
		"balance", acct.Balance,
		"updated_at", updatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
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

	txnData, err := marshalTxn(req.TransactionID, req.UserID, wordsmith.TxnReserve,
		-req.Credits, req.ToolType, req.WordCount, "", req.Now)
	if err != nil {
		return nil, err
	}

	keys := []string{s.accountKey(req.UserID), s.reservationKey(req.ReservationID), s.txnsKey(req.UserID)}
	raw, err := s.scripts["reserve"].Run(ctx, s.client, keys,
		req.Credits,
		req.UserID,
		req.Now.UTC().Format(time.RFC3339Nano),
		txnData,
		s.config.HistoryMax,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve script failed: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return nil, fmt.Errorf("unexpected reserve reply: %v", raw)
	}
	status, _ := reply[0].(string)
	balance, _ := reply[1].(int64)

	switch status {
	case "ok":
		return &wordsmith.Reservation{
			ID:        req.ReservationID,
			UserID:    req.UserID,
			Amount:    req.Credits,
			State:     wordsmith.ReservationCreated,
			CreatedAt: req.Now,
			UpdatedAt: req.Now,
		}, nil
	case "not_found":
		return nil, wordsmith.ErrUserNotFound
	case "insufficient":
		return nil, &wordsmith.InsufficientCreditsError{Required: req.Credits, Available: balance}
	default:
		return nil, fmt.Errorf("unexpected reserve status %q", status)
	}
}

// Commit implements wordsmith.Store
func (s *Store) Commit(ctx context.Context, req *wordsmith.CommitRequest) (*wordsmith.Reservation, error) {
	res, err := s.GetReservation(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}
	if res.State.Terminal() {
		return res, nil
	}

	actual := req.ActualCredits
	if actual > res.Amount {
		actual = res.Amount
	}
	diff := res.Amount - actual

	txnData, err := marshalTxn(req.TransactionID, res.UserID, wordsmith.TxnCommit,
		diff, "", 0, "", req.Now)
	if err != nil {
		return nil, err
	}

	return s.finalize(ctx, res, wordsmith.ReservationCommitted, diff, txnData, req.Now)
}

// Rollback implements wordsmith.Store
func (s *Store) Rollback(ctx context.Context, req *wordsmith.RollbackRequest) (*wordsmith.Reservation, error) {
	res, err := s.GetReservation(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}
	if res.State.Terminal() {
		return res, nil
	}

	txnData, err := marshalTxn(req.TransactionID, res.UserID, wordsmith.TxnRollback,
		res.Amount, "", 0, "", req.Now)
	if err != nil {
		return nil, err
	}

	return s.finalize(ctx, res, wordsmith.ReservationRolledBack, res.Amount, txnData, req.Now)
}

// finalize runs the commit script, which re-checks the reservation state
// so a racing terminal transition degrades to a no-op.
func (s *Store) finalize(ctx context.Context, res *wordsmith.Reservation, state wordsmith.ReservationState, diff int64, txnData string, now time.Time) (*wordsmith.Reservation, error) {
	keys := []string{s.accountKey(res.UserID), s.reservationKey(res.ID), s.txnsKey(res.UserID)}
	status, err := s.scripts["commit"].Run(ctx, s.client, keys,
		diff,
		string(state),
		now.UTC().Format(time.RFC3339Nano),
		txnData,
		s.config.HistoryMax,
		int64(s.config.ReservationTTL.Seconds()),
	).Text()
	if err != nil {
		return nil, fmt.Errorf("finalize script failed: %w", err)
	}

	switch status {
	case "ok":
		res.State = state
		res.UpdatedAt = now
		return res, nil
	case "terminal":
		// Lost a race against another finalizer; idempotent no-op
		return s.GetReservation(ctx, res.ID)
	case "not_found":
		return nil, wordsmith.ErrReservationNotFound
	default:
		return nil, fmt.Errorf("unexpected finalize status %q", status)
	}
}

// Refund implements wordsmith.Store
func (s *Store) Refund(ctx context.Context, req *wordsmith.RefundRequest) error {
	if req.Amount <= 0 {
		return wordsmith.ErrInvalidAmount
	}

	txnData, err := marshalTxn(req.TransactionID, req.UserID, wordsmith.TxnRefund,
		req.Amount, "", 0, req.Reason, req.Now)
	if err != nil {
		return err
	}

	keys := []string{s.accountKey(req.UserID), s.txnsKey(req.UserID)}
	status, err := s.scripts["refund"].Run(ctx, s.client, keys,
		req.Amount,
		req.Now.UTC().Format(time.RFC3339Nano),
		txnData,
		s.config.HistoryMax,
	).Text()
	if err != nil {
		return fmt.Errorf("refund script failed: %w", err)
	}
	if status == "not_found" {
		return wordsmith.ErrUserNotFound
	}
	return nil
}

// GetReservation implements wordsmith.Store
func (s *Store) GetReservation(ctx context.Context, reservationID string) (*wordsmith.Reservation, error) {
	fields, err := s.client.HGetAll(ctx, s.reservationKey(reservationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if len(fields) == 0 {
		return nil, wordsmith.ErrReservationNotFound
	}

	res := &wordsmith.Reservation{
		ID:     reservationID,
		UserID: fields["user_id"],
		State:  wordsmith.ReservationState(fields["state"]),
	}
	if _, err := fmt.Sscanf(fields["amount"], "%d", &res.Amount); err != nil {
		return nil, fmt.Errorf("corrupt reservation %s: %w", reservationID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		res.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		res.UpdatedAt = ts
	}
	return res, nil
}

// Transactions implements wordsmith.Store
func (s *Store) Transactions(ctx context.Context, userID string, limit int) ([]*wordsmith.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	entries, err := s.client.LRange(ctx, s.txnsKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	out := make([]*wordsmith.Transaction, 0, len(entries))
	for _, entry := range entries {
		var rec txnRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("corrupt transaction entry: %w", err)
		}
		txn := &wordsmith.Transaction{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Kind:      wordsmith.TransactionKind(rec.Kind),
			Amount:    rec.Amount,
			ToolType:  rec.ToolType,
			WordCount: rec.WordCount,
			Reason:    rec.Reason,
		}
		if ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
			txn.Timestamp = ts
		}
		out = append(out, txn)
	}
	return out, nil
}
