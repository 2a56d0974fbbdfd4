package wordsmith

import (
	"context"
	"errors"
)

// PlanLimits defines per-request word limits for a plan.
// A zero MaxRequestWords means unlimited output.
type PlanLimits struct {
	MaxPromptWords  int
	MaxRequestWords int
}

// DefaultPlanLimits returns the standard plan limit table: freemium
// prompts are capped at 500 words and output at 1000 words per request;
// pro and custom plans allow 5000-word prompts with unlimited output.
func DefaultPlanLimits() map[PlanType]PlanLimits {
	return map[PlanType]PlanLimits{
		PlanFreemium: {MaxPromptWords: 500, MaxRequestWords: 1000},
		PlanPro:      {MaxPromptWords: 5000},
		PlanCustom:   {MaxPromptWords: 5000},
	}
}

// PlanGate validates a request against a user's plan limits before any
// spend occurs. Read-only, no side effects.
type PlanGate struct {
	store  Store
	plans  map[PlanType]PlanLimits
	logger Logger
}

// NewPlanGate creates a plan gate. A nil plans map falls back to
// DefaultPlanLimits.
func NewPlanGate(store Store, plans map[PlanType]PlanLimits, logger Logger) (*PlanGate, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	if plans == nil {
		plans = DefaultPlanLimits()
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &PlanGate{store: store, plans: plans, logger: logger}, nil
}

// Validate checks prompt and requested output sizes against the user's
// plan. Fails with ErrPlanNotFound when the user has no plan record,
// ErrInvalidPlan for an unknown plan type, or a *PlanLimitError carrying
// the offending value and the limit.
func (g *PlanGate) Validate(ctx context.Context, userID string, promptWords, requestedWords int, toolType string) error {
	acct, err := g.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrPlanNotFound
		}
		return err
	}

	limits, ok := g.plans[acct.Plan]
	if !ok {
		g.logger.Warn("unknown plan type",
			Field{"user_id", userID},
			Field{"plan", string(acct.Plan)},
		)
		return ErrInvalidPlan
	}

	if limits.MaxPromptWords > 0 && promptWords > limits.MaxPromptWords {
		return &PlanLimitError{Kind: PromptTooLong, Value: promptWords, Limit: limits.MaxPromptWords}
	}
	if limits.MaxRequestWords > 0 && requestedWords > limits.MaxRequestWords {
		return &PlanLimitError{Kind: OutputLimitExceeded, Value: requestedWords, Limit: limits.MaxRequestWords}
	}

	return nil
}
