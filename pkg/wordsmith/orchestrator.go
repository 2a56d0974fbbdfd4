package wordsmith

import (
	"context"
	"strings"
	"time"
)

// OrchestratorConfig holds generation orchestration settings.
type OrchestratorConfig struct {
	// MultiChunkThreshold is the requested word count above which a
	// request is split into multiple sequential chunks (default: 800)
	MultiChunkThreshold int

	// MaxChunkWords caps the target size of a single chunk in multi-chunk
	// mode (default: 600)
	MaxChunkWords int

	// MaxChunkAttempts bounds the total number of backend calls for one
	// request regardless of progress (default: 10)
	MaxChunkAttempts int

	// UnderrunThreshold is the number of consecutive under-producing
	// chunks after which the run fails fast with ErrGenerationUnderrun
	// (default: 3). A chunk under-produces when it delivers less than
	// half its target word count.
	UnderrunThreshold int

	// CoherenceTailWords is how many trailing words of prior output are
	// passed to the next chunk call (default: 150)
	CoherenceTailWords int

	// Metrics tracks chunk production (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.MultiChunkThreshold <= 0 {
		c.MultiChunkThreshold = 800
	}
	if c.MaxChunkWords <= 0 {
		c.MaxChunkWords = 600
	}
	if c.MaxChunkAttempts <= 0 {
		c.MaxChunkAttempts = 10
	}
	if c.UnderrunThreshold <= 0 {
		c.UnderrunThreshold = 3
	}
	if c.CoherenceTailWords <= 0 {
		c.CoherenceTailWords = 150
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	return c
}

// GenerationResult is the orchestrator's assembled output.
// ActualWordCount always equals the sum of the chunk word counts.
type GenerationResult struct {
	Content         string
	ActualWordCount int
	ChunksGenerated int
	Elapsed         time.Duration
}

// Orchestrator turns a word-count budget into one or more sequential
// generation calls and assembles the final content. Chunks within one
// request are strictly sequential: each depends on the coherence tail of
// the previous one. The orchestrator never touches the ledger.
type Orchestrator struct {
	gen       Generator
	citations CitationAssembler
	config    OrchestratorConfig
}

// NewOrchestrator creates a generation orchestrator. citations may be nil,
// in which case citation requests are skipped.
func NewOrchestrator(gen Generator, citations CitationAssembler, config OrchestratorConfig) (*Orchestrator, error) {
	if gen == nil {
		return nil, ErrBackendUnavailable
	}
	return &Orchestrator{
		gen:       gen,
		citations: citations,
		config:    config.withDefaults(),
	}, nil
}

// Generate assembles content for the request. Requests at or below the
// multi-chunk threshold go out as a single call; larger requests loop,
// accumulating words until the total meets the request or the attempt
// ceiling is reached. A run of consecutive under-producing chunks aborts
// with ErrGenerationUnderrun so a misbehaving backend cannot consume
// unbounded resources.
func (o *Orchestrator) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	start := time.Now()

	result, err := o.assemble(ctx, req)
	o.config.Metrics.RecordGeneration(req.ToolType, time.Since(start), chunkCount(result), err)
	if err != nil {
		return nil, err
	}

	if req.RequiresCitations && o.citations != nil {
		cited, err := o.citations.Assemble(ctx, result.Content, req.CitationStyle)
		if err != nil {
			return nil, err
		}
		result.Content = cited
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

func chunkCount(r *GenerationResult) int {
	if r == nil {
		return 0
	}
	return r.ChunksGenerated
}

func (o *Orchestrator) assemble(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	if req.RequestedWordCount <= o.config.MultiChunkThreshold {
		chunk, err := o.gen.GenerateChunk(ctx, &ChunkRequest{
			Prompt:      req.Prompt,
			TargetWords: req.RequestedWordCount,
			Index:       0,
			ToolType:    req.ToolType,
			Style:       req.Style,
			Tone:        req.Tone,
			Subject:     req.Subject,
		})
		if err != nil {
			return nil, err
		}
		o.config.Metrics.RecordChunk(req.ToolType, req.RequestedWordCount, chunk.WordCount)
		return &GenerationResult{
			Content:         chunk.Text,
			ActualWordCount: chunk.WordCount,
			ChunksGenerated: 1,
		}, nil
	}

	var (
		parts     []string
		total     int
		chunks    int
		underruns int
	)

	for attempt := 0; attempt < o.config.MaxChunkAttempts && total < req.RequestedWordCount; attempt++ {
		remaining := req.RequestedWordCount - total
		target := remaining
		if target > o.config.MaxChunkWords {
			target = o.config.MaxChunkWords
		}

		chunk, err := o.gen.GenerateChunk(ctx, &ChunkRequest{
			Prompt:      req.Prompt,
			Tail:        coherenceTail(parts, o.config.CoherenceTailWords),
			TargetWords: target,
			Index:       chunks,
			ToolType:    req.ToolType,
			Style:       req.Style,
			Tone:        req.Tone,
			Subject:     req.Subject,
		})
		if err != nil {
			return nil, err
		}
		o.config.Metrics.RecordChunk(req.ToolType, target, chunk.WordCount)

		if chunk.WordCount*2 < target {
			underruns++
			o.config.Logger.Warn("chunk underrun",
				Field{"target_words", target},
				Field{"realized_words", chunk.WordCount},
				Field{"consecutive", underruns},
			)
			if underruns >= o.config.UnderrunThreshold {
				return nil, ErrGenerationUnderrun
			}
		} else {
			underruns = 0
		}

		if chunk.WordCount > 0 {
			parts = append(parts, chunk.Text)
			total += chunk.WordCount
			chunks++
		}
	}

	return &GenerationResult{
		Content:         strings.Join(parts, "\n\n"),
		ActualWordCount: total,
		ChunksGenerated: chunks,
	}, nil
}

// coherenceTail returns the last n words of the assembled output so far,
// spanning part boundaries when the newest part alone is shorter than n.
func coherenceTail(parts []string, n int) string {
	var words []string
	for i := len(parts) - 1; i >= 0 && len(words) < n; i-- {
		words = append(strings.Fields(parts[i]), words...)
	}
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
