package wordsmith

import "context"

// RefinementConfig holds refinement loop settings.
type RefinementConfig struct {
	// MaxCycles is the hard bound on revision cycles regardless of score
	// outcome (default: 2)
	MaxCycles int

	// AcceptThreshold is the composite score at or above which the loop
	// stops early (default: 75)
	AcceptThreshold float64

	// Metrics tracks refinement outcomes (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger
}

func (c RefinementConfig) withDefaults() RefinementConfig {
	if c.MaxCycles <= 0 {
		c.MaxCycles = 2
	}
	if c.AcceptThreshold <= 0 {
		c.AcceptThreshold = 75
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	return c
}

// RefinementResult is the outcome of a refinement pass. RequiresReview is
// set when the cycle bound was reached without crossing the threshold or
// when a backend failure cut the pass short; neither case is an error.
type RefinementResult struct {
	Content        string
	Scores         *DetectionScore
	Cycles         int
	RequiresReview bool
}

// RefinementLoop is the bounded quality-improvement pass for premium
// requests. It scores content via the detection backend and requests
// revisions while the composite score is below the acceptance threshold,
// for at most MaxCycles revisions. It never requests additional credit:
// the premium tier's higher up-front reservation is the sole budget for
// both initial generation and refinement.
type RefinementLoop struct {
	detector Detector
	gen      Generator
	config   RefinementConfig
}

// NewRefinementLoop creates a refinement loop.
func NewRefinementLoop(detector Detector, gen Generator, config RefinementConfig) (*RefinementLoop, error) {
	if detector == nil || gen == nil {
		return nil, ErrBackendUnavailable
	}
	return &RefinementLoop{
		detector: detector,
		gen:      gen,
		config:   config.withDefaults(),
	}, nil
}

// Refine runs the bounded score-and-revise loop over content. Backend
// failures inside the loop are non-fatal: the current content stands,
// remaining cycles are skipped and the result is flagged for review.
func (r *RefinementLoop) Refine(ctx context.Context, content string, req *GenerationRequest) (*RefinementResult, error) {
	result := &RefinementResult{Content: content}

	for {
		scores, err := r.detector.Score(ctx, result.Content)
		if err != nil {
			r.config.Logger.Warn("detection failed, skipping remaining refinement",
				Field{"cycles", result.Cycles},
				errField(err),
			)
			result.RequiresReview = true
			r.config.Metrics.RecordRefinement(result.Cycles, false)
			return result, nil
		}
		result.Scores = scores

		if scores.Composite >= r.config.AcceptThreshold {
			r.config.Metrics.RecordRefinement(result.Cycles, true)
			return result, nil
		}

		if result.Cycles >= r.config.MaxCycles {
			result.RequiresReview = true
			r.config.Metrics.RecordRefinement(result.Cycles, false)
			return result, nil
		}

		revised, err := r.gen.Revise(ctx, &ReviseRequest{
			Content:     result.Content,
			Scores:      scores,
			TargetWords: req.RequestedWordCount,
			ToolType:    req.ToolType,
			Style:       req.Style,
			Tone:        req.Tone,
		})
		if err != nil {
			r.config.Logger.Warn("revision failed, keeping current content",
				Field{"cycles", result.Cycles},
				errField(err),
			)
			result.RequiresReview = true
			r.config.Metrics.RecordRefinement(result.Cycles, false)
			return result, nil
		}

		result.Content = revised.Text
		result.Cycles++
		r.config.Logger.Debug("refinement cycle completed",
			Field{"cycle", result.Cycles},
			Field{"composite", scores.Composite},
		)
	}
}
