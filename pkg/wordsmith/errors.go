package wordsmith

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when no account exists for a user
	ErrUserNotFound = errors.New("user not found")

	// ErrPlanNotFound is returned when a user's plan cannot be loaded
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidPlan is returned for an unknown plan type
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrReservationNotFound is returned for an unknown reservation id
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrStoreConflict is returned by storage adapters on transient
	// contention (optimistic-concurrency failure, serialization error).
	// The ledger retries these under its retry policy.
	ErrStoreConflict = errors.New("store conflict")

	// ErrCreditSystemUnavailable is returned after the retry policy is
	// exhausted against a contended or unreachable store
	ErrCreditSystemUnavailable = errors.New("credit system unavailable")

	// ErrGenerationUnderrun is returned when the generation backend keeps
	// under-producing and the orchestrator gives up
	ErrGenerationUnderrun = errors.New("generation underrun")

	// ErrStorageUnavailable is returned when no storage was configured
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBackendUnavailable is returned when no generation or detection
	// backend was configured
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidAmount is returned for negative credit or word amounts
	ErrInvalidAmount = errors.New("invalid amount")
)

// InsufficientCreditsError is returned when a reservation exceeds the
// available balance. It carries both sides for user-facing messaging.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// PlanLimitKind names which plan limit a request violated.
type PlanLimitKind string

const (
	PromptTooLong       PlanLimitKind = "prompt_too_long"
	OutputLimitExceeded PlanLimitKind = "output_limit_exceeded"
)

// PlanLimitError is returned by the plan gate when a request exceeds a
// plan limit. Value is the offending word count, Limit the plan maximum.
type PlanLimitError struct {
	Kind  PlanLimitKind
	Value int
	Limit int
}

func (e *PlanLimitError) Error() string {
	switch e.Kind {
	case PromptTooLong:
		return fmt.Sprintf("prompt too long: %d words, plan allows %d", e.Value, e.Limit)
	case OutputLimitExceeded:
		return fmt.Sprintf("requested output too large: %d words, plan allows %d", e.Value, e.Limit)
	default:
		return fmt.Sprintf("plan limit exceeded: %d > %d", e.Value, e.Limit)
	}
}
