package wordsmith

// AcceptanceConfig holds the advisory acceptance thresholds.
type AcceptanceConfig struct {
	// MinOriginality is the lowest acceptable originality score
	// (default: 70)
	MinOriginality float64

	// MaxAIDetection is the highest acceptable AI-likelihood score
	// (default: 30)
	MaxAIDetection float64
}

func (c AcceptanceConfig) withDefaults() AcceptanceConfig {
	if c.MinOriginality <= 0 {
		c.MinOriginality = 70
	}
	if c.MaxAIDetection <= 0 {
		c.MaxAIDetection = 30
	}
	return c
}

// Verdict is the advisory accept/review outcome for scored content.
type Verdict struct {
	IsAcceptable   bool
	RequiresReview bool
	QualityScore   float64
}

// AcceptanceGate combines detection scores into an advisory verdict. It is
// pure and side-effect free: it never mutates the ledger or the content.
type AcceptanceGate struct {
	config AcceptanceConfig
}

// NewAcceptanceGate creates an acceptance gate.
func NewAcceptanceGate(config AcceptanceConfig) *AcceptanceGate {
	return &AcceptanceGate{config: config.withDefaults()}
}

// Evaluate scores content against the configured thresholds. Unscored
// content (nil scores, e.g. a standard-tier run without detection) passes
// unjudged.
func (g *AcceptanceGate) Evaluate(scores *DetectionScore) Verdict {
	if scores == nil {
		return Verdict{IsAcceptable: true}
	}

	ok := scores.Originality >= g.config.MinOriginality &&
		scores.AIDetection <= g.config.MaxAIDetection

	return Verdict{
		IsAcceptable:   ok,
		RequiresReview: !ok,
		QualityScore:   scores.Composite,
	}
}
