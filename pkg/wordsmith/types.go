package wordsmith

import (
	"strings"
	"time"
)

// PlanType identifies a subscription plan.
type PlanType string

const (
	// PlanFreemium is the free tier with tight prompt and output limits
	PlanFreemium PlanType = "freemium"
	// PlanPro is the paid tier with relaxed limits
	PlanPro PlanType = "pro"
	// PlanCustom is a negotiated plan; treated like pro for limit checks
	PlanCustom PlanType = "custom"
)

// QualityTier selects the generation mode for a request.
type QualityTier string

const (
	// TierStandard generates content without refinement
	TierStandard QualityTier = "standard"
	// TierPremium enables the bounded refinement loop at a higher
	// up-front reservation
	TierPremium QualityTier = "premium"
)

// Operation distinguishes credit pricing formulas.
type Operation string

const (
	// OperationGeneration prices by the tool's words-per-credit ratio
	OperationGeneration Operation = "generation"
	// OperationDetection prices per 1000 words scanned
	OperationDetection Operation = "detection"
)

// TransactionKind is the type of a ledger transaction.
type TransactionKind string

const (
	TxnReserve  TransactionKind = "reserve"
	TxnCommit   TransactionKind = "commit"
	TxnRollback TransactionKind = "rollback"
	TxnRefund   TransactionKind = "refund"
)

// ReservationState is the lifecycle state of a reservation.
// CREATED is the only non-terminal state; COMMITTED and ROLLED_BACK are
// terminal and a reservation reaches exactly one of them.
type ReservationState string

const (
	ReservationCreated    ReservationState = "CREATED"
	ReservationCommitted  ReservationState = "COMMITTED"
	ReservationRolledBack ReservationState = "ROLLED_BACK"
)

// Terminal reports whether the state admits no further transitions.
func (s ReservationState) Terminal() bool {
	return s == ReservationCommitted || s == ReservationRolledBack
}

// Account is a user's credit account. Balance is mutated only through
// ledger store operations and never goes negative.
type Account struct {
	UserID    string
	Plan      PlanType
	Balance   int64
	UpdatedAt time.Time
}

// Transaction is one append-only ledger log entry. Amount is signed:
// negative for reserve, non-negative for commit/rollback/refund. The
// balance is the running sum of all transaction amounts.
type Transaction struct {
	ID        string
	UserID    string
	Kind      TransactionKind
	Amount    int64
	ToolType  string
	WordCount int
	Reason    string
	Timestamp time.Time
}

// Reservation holds credits removed from a balance pending a commit or
// rollback outcome.
type Reservation struct {
	ID        string
	UserID    string
	Amount    int64
	State     ReservationState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GenerationRequest describes one content-generation job. Style, Tone and
// Subject are passed through to the backend untouched.
type GenerationRequest struct {
	Prompt             string
	RequestedWordCount int
	ToolType           string
	QualityTier        QualityTier
	RequiresCitations  bool
	CitationStyle      string
	Style              string
	Tone               string
	Subject            string
}

// ChunkResult is one bounded unit of generated text within a larger
// multi-part request.
type ChunkResult struct {
	Index     int
	Text      string
	WordCount int
}

// DetectionScore carries backend quality scores, each in [0,100].
type DetectionScore struct {
	Originality float64
	AIDetection float64
	Plagiarism  float64
	Composite   float64
}

// CountWords counts whitespace-separated words. It is the single word
// counting rule used for plan checks and chunk accounting.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
