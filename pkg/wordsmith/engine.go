package wordsmith

import (
	"context"
	"errors"
	"time"
)

// EngineConfig holds pipeline configuration.
type EngineConfig struct {
	// PremiumReserveMultiplier scales the up-front reservation for
	// premium requests; the extra headroom is the sole budget for
	// refinement (default: 2)
	PremiumReserveMultiplier int64

	// RefinementEnabled turns the premium refinement loop on
	RefinementEnabled bool

	// Metrics tracks pipeline operations (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.PremiumReserveMultiplier <= 0 {
		c.PremiumReserveMultiplier = 2
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	return c
}

// GenerateResult is the boundary-facing result of one paid generation.
type GenerateResult struct {
	Content         string
	ActualWordCount int
	ChunksGenerated int
	Elapsed         time.Duration

	ReservedCredits int64
	ChargedCredits  int64

	Scores           *DetectionScore
	Verdict          Verdict
	RefinementCycles int
	RequiresReview   bool
}

// Engine wires the plan gate, credit ledger, orchestrator, refinement loop
// and acceptance gate into the full paid-generation pipeline.
type Engine struct {
	gate   *PlanGate
	ledger *Ledger
	orch   *Orchestrator
	refine *RefinementLoop
	accept *AcceptanceGate
	config EngineConfig
}

// NewEngine creates the generation pipeline. refine may be nil when
// refinement is disabled.
func NewEngine(gate *PlanGate, ledger *Ledger, orch *Orchestrator, refine *RefinementLoop, accept *AcceptanceGate, config EngineConfig) (*Engine, error) {
	if gate == nil || ledger == nil || orch == nil || accept == nil {
		return nil, errors.New("missing pipeline component")
	}
	config = config.withDefaults()
	if config.RefinementEnabled && refine == nil {
		return nil, ErrBackendUnavailable
	}
	return &Engine{
		gate:   gate,
		ledger: ledger,
		orch:   orch,
		refine: refine,
		accept: accept,
		config: config,
	}, nil
}

// Generate runs the full pipeline for one request:
// plan check, credit reservation, chunked generation, optional premium
// refinement, advisory acceptance, then commit at the actual cost.
//
// Any failure after a successful reservation rolls the reservation back
// before the error is surfaced; the rollback fires on every exit path,
// including panics and context cancellation. Credit is never left
// dangling.
func (e *Engine) Generate(ctx context.Context, userID string, req *GenerationRequest) (*GenerateResult, error) {
	promptWords := CountWords(req.Prompt)
	if err := e.gate.Validate(ctx, userID, promptWords, req.RequestedWordCount, req.ToolType); err != nil {
		return nil, err
	}

	premium := req.QualityTier == TierPremium
	estimate := e.ledger.RequiredCredits(req.RequestedWordCount, req.ToolType, OperationGeneration)
	if premium {
		estimate *= e.config.PremiumReserveMultiplier
	}

	res, err := e.ledger.Reserve(ctx, userID, estimate, req.ToolType, req.RequestedWordCount)
	if err != nil {
		return nil, err
	}

	settled := false
	defer func() {
		if settled {
			return
		}
		// The request context may already be cancelled or timed out;
		// the rollback must still reach the store.
		rbCtx := context.WithoutCancel(ctx)
		if rbErr := e.ledger.Rollback(rbCtx, res.ID); rbErr != nil {
			e.config.Logger.Error("rollback after failure did not complete",
				Field{"reservation_id", res.ID},
				Field{"user_id", userID},
				errField(rbErr),
			)
		}
	}()

	result, err := e.produce(ctx, req)
	if err != nil {
		return nil, err
	}

	actual := e.ledger.RequiredCredits(result.ActualWordCount, req.ToolType, OperationGeneration)
	if premium {
		actual *= e.config.PremiumReserveMultiplier
	}
	if actual > res.Amount {
		// The premium reservation is assumed to cover refinement; an
		// overrun is clamped rather than re-priced mid-flight.
		e.config.Logger.Warn("actual cost exceeded reservation, clamping",
			Field{"reservation_id", res.ID},
			Field{"reserved", res.Amount},
			Field{"actual", actual},
		)
		actual = res.Amount
	}

	if err := e.ledger.Commit(ctx, res.ID, actual); err != nil {
		return nil, err
	}
	settled = true

	result.ReservedCredits = res.Amount
	result.ChargedCredits = actual

	e.config.Logger.Info("generation completed",
		Field{"user_id", userID},
		Field{"tool_type", req.ToolType},
		Field{"words", result.ActualWordCount},
		Field{"chunks", result.ChunksGenerated},
		Field{"charged", actual},
		Field{"requires_review", result.RequiresReview},
	)
	return result, nil
}

// produce runs generation, refinement and acceptance; it touches no
// ledger state so the caller can roll back cleanly on any error.
func (e *Engine) produce(ctx context.Context, req *GenerationRequest) (*GenerateResult, error) {
	gen, err := e.orch.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{
		Content:         gen.Content,
		ActualWordCount: gen.ActualWordCount,
		ChunksGenerated: gen.ChunksGenerated,
		Elapsed:         gen.Elapsed,
	}

	if req.QualityTier == TierPremium && e.config.RefinementEnabled {
		ref, err := e.refine.Refine(ctx, result.Content, req)
		if err != nil {
			return nil, err
		}
		if ref.Content != result.Content {
			result.Content = ref.Content
			result.ActualWordCount = CountWords(ref.Content)
		}
		result.Scores = ref.Scores
		result.RefinementCycles = ref.Cycles
		result.RequiresReview = ref.RequiresReview
	}

	result.Verdict = e.accept.Evaluate(result.Scores)
	if result.Verdict.RequiresReview {
		result.RequiresReview = true
	}

	return result, nil
}
