package wordsmith

import "errors"

// Outcome is the structured result that crosses the service boundary:
// a success flag, a stable error-kind code and a human-readable message.
// Raw internal errors never leave the core.
type Outcome struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error-kind codes carried on boundary outcomes.
const (
	CodePlanNotFound        = "plan_not_found"
	CodeInvalidPlan         = "invalid_plan"
	CodePromptTooLong       = "prompt_too_long"
	CodeOutputLimitExceeded = "output_limit_exceeded"
	CodeUserNotFound        = "user_not_found"
	CodeInsufficientCredits = "insufficient_credits"
	CodeSystemUnavailable   = "credit_system_unavailable"
	CodeGenerationUnderrun  = "generation_underrun"
	CodeGenerationFailed    = "generation_failed"
)

// OutcomeFromError translates an internal error into a boundary outcome.
// A nil error maps to a successful outcome.
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return Outcome{Success: true}
	}

	var planErr *PlanLimitError
	if errors.As(err, &planErr) {
		code := CodePromptTooLong
		if planErr.Kind == OutputLimitExceeded {
			code = CodeOutputLimitExceeded
		}
		return Outcome{Code: code, Message: planErr.Error()}
	}

	var creditsErr *InsufficientCreditsError
	if errors.As(err, &creditsErr) {
		return Outcome{Code: CodeInsufficientCredits, Message: creditsErr.Error()}
	}

	switch {
	case errors.Is(err, ErrPlanNotFound):
		return Outcome{Code: CodePlanNotFound, Message: "no plan found for user"}
	case errors.Is(err, ErrInvalidPlan):
		return Outcome{Code: CodeInvalidPlan, Message: "user plan is not recognized"}
	case errors.Is(err, ErrUserNotFound):
		return Outcome{Code: CodeUserNotFound, Message: "no account found for user"}
	case errors.Is(err, ErrCreditSystemUnavailable):
		return Outcome{Code: CodeSystemUnavailable, Message: "credit system is temporarily unavailable, try again"}
	case errors.Is(err, ErrGenerationUnderrun):
		return Outcome{Code: CodeGenerationUnderrun, Message: "the generation service could not produce enough content"}
	default:
		return Outcome{Code: CodeGenerationFailed, Message: "generation failed"}
	}
}
