package wordsmith

import "context"

// ChunkRequest asks the generation backend for one bounded unit of text.
// Tail carries the end of the previously assembled output so consecutive
// chunks stay coherent.
type ChunkRequest struct {
	Prompt      string
	Tail        string
	TargetWords int
	Index       int
	ToolType    string
	Style       string
	Tone        string
	Subject     string
}

// ReviseRequest asks the generation backend to rework content that scored
// below the acceptance threshold.
type ReviseRequest struct {
	Content     string
	Scores      *DetectionScore
	TargetWords int
	ToolType    string
	Style       string
	Tone        string
}

// Generator is the content-generation backend. It may over- or
// under-produce relative to the target word count; WordCount on the result
// must be the realized count.
type Generator interface {
	// GenerateChunk produces one chunk of text toward a larger request.
	GenerateChunk(ctx context.Context, req *ChunkRequest) (*ChunkResult, error)

	// Revise reworks existing content, used by the refinement loop.
	Revise(ctx context.Context, req *ReviseRequest) (*ChunkResult, error)
}

// Detector is the content-detection backend, returning scores in [0,100].
type Detector interface {
	Score(ctx context.Context, text string) (*DetectionScore, error)
}

// CitationAssembler formats citations into assembled content. It runs at
// most once per request, after full assembly, and never touches the
// ledger.
type CitationAssembler interface {
	Assemble(ctx context.Context, content, style string) (string, error)
}
