package wordsmith_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordsmithlabs/wordsmith/pkg/wordsmith"
	"github.com/wordsmithlabs/wordsmith/storage/memory"
)

type engineFixture struct {
	engine *wordsmith.Engine
	store  *memory.Store
	gen    *fakeGenerator
	det    *fakeDetector
}

func newEngineFixture(t *testing.T, gen *fakeGenerator, det *fakeDetector, config wordsmith.EngineConfig) *engineFixture {
	t.Helper()

	store := memory.New()
	ledger, err := wordsmith.NewLedger(store, wordsmith.LedgerConfig{})
	require.NoError(t, err)
	gate, err := wordsmith.NewPlanGate(store, nil, nil)
	require.NoError(t, err)
	orch, err := wordsmith.NewOrchestrator(gen, nil, wordsmith.OrchestratorConfig{})
	require.NoError(t, err)

	var refine *wordsmith.RefinementLoop
	if det != nil {
		refine, err = wordsmith.NewRefinementLoop(det, gen, wordsmith.RefinementConfig{})
		require.NoError(t, err)
	}
	accept := wordsmith.NewAcceptanceGate(wordsmith.AcceptanceConfig{})

	engine, err := wordsmith.NewEngine(gate, ledger, orch, refine, accept, config)
	require.NoError(t, err)

	return &engineFixture{engine: engine, store: store, gen: gen, det: det}
}

func (f *engineFixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	acct, err := f.store.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return acct.Balance
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := wordsmith.NewEngine(nil, nil, nil, nil, nil, wordsmith.EngineConfig{})
	assert.Error(t, err)

	// Refinement enabled without a loop is a configuration error
	store := memory.New()
	ledger, err := wordsmith.NewLedger(store, wordsmith.LedgerConfig{})
	require.NoError(t, err)
	gate, err := wordsmith.NewPlanGate(store, nil, nil)
	require.NoError(t, err)
	orch, err := wordsmith.NewOrchestrator(&fakeGenerator{}, nil, wordsmith.OrchestratorConfig{})
	require.NoError(t, err)
	accept := wordsmith.NewAcceptanceGate(wordsmith.AcceptanceConfig{})

	_, err = wordsmith.NewEngine(gate, ledger, orch, nil, accept, wordsmith.EngineConfig{RefinementEnabled: true})
	assert.ErrorIs(t, err, wordsmith.ErrBackendUnavailable)
}

func TestEngine_StandardGeneration(t *testing.T) {
	f := newEngineFixture(t, &fakeGenerator{}, nil, wordsmith.EngineConfig{})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 100)

	result, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "write an essay about credit systems",
		RequestedWordCount: 210,
		ToolType:           "writing",
		QualityTier:        wordsmith.TierStandard,
	})
	require.NoError(t, err)

	assert.Equal(t, 210, result.ActualWordCount)
	assert.EqualValues(t, 70, result.ReservedCredits)
	assert.EqualValues(t, 70, result.ChargedCredits)
	assert.True(t, result.Verdict.IsAcceptable)
	assert.False(t, result.RequiresReview)
	assert.Nil(t, result.Scores)

	assert.EqualValues(t, 30, f.balance(t, "user1"))
}

func TestEngine_ChargesForRealizedWords(t *testing.T) {
	// Backend delivers 150 of the 210 requested words: charge 50, not 70
	gen := &fakeGenerator{produce: func(call, target int) int { return 150 }}
	f := newEngineFixture(t, gen, nil, wordsmith.EngineConfig{})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 100)

	result, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "short piece",
		RequestedWordCount: 210,
		ToolType:           "writing",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 70, result.ReservedCredits)
	assert.EqualValues(t, 50, result.ChargedCredits)
	assert.EqualValues(t, 50, f.balance(t, "user1"))
}

func TestEngine_GenerationFailureRollsBack(t *testing.T) {
	backendErr := errors.New("model overloaded")
	f := newEngineFixture(t, &fakeGenerator{chunkErr: backendErr}, nil, wordsmith.EngineConfig{})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 100)

	_, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "doomed essay",
		RequestedWordCount: 210,
		ToolType:           "writing",
	})
	require.ErrorIs(t, err, backendErr)

	// The reservation was rolled back in full
	assert.EqualValues(t, 100, f.balance(t, "user1"))

	txns, err := f.store.Transactions(ctx, "user1", 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, wordsmith.TxnRollback, txns[0].Kind)
	assert.Equal(t, wordsmith.TxnReserve, txns[1].Kind)
}

func TestEngine_UnderrunRollsBack(t *testing.T) {
	gen := &fakeGenerator{produce: func(call, target int) int { return target / 10 }}
	f := newEngineFixture(t, gen, nil, wordsmith.EngineConfig{})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 5000)

	_, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "very long essay",
		RequestedWordCount: 6000,
		ToolType:           "writing",
	})
	require.ErrorIs(t, err, wordsmith.ErrGenerationUnderrun)
	assert.EqualValues(t, 5000, f.balance(t, "user1"))
}

func TestEngine_PlanLimitBlocksBeforeSpend(t *testing.T) {
	f := newEngineFixture(t, &fakeGenerator{}, nil, wordsmith.EngineConfig{})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanFreemium, 1000)

	_, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "short prompt",
		RequestedWordCount: 2000,
		ToolType:           "writing",
	})

	var limitErr *wordsmith.PlanLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, wordsmith.OutputLimitExceeded, limitErr.Kind)

	// No reservation was ever made
	assert.EqualValues(t, 1000, f.balance(t, "user1"))
	txns, err := f.store.Transactions(ctx, "user1", 10)
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Empty(t, f.gen.calls)
}

func TestEngine_InsufficientCredits(t *testing.T) {
	f := newEngineFixture(t, &fakeGenerator{}, nil, wordsmith.EngineConfig{})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 10)

	_, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "essay",
		RequestedWordCount: 210,
		ToolType:           "writing",
	})

	var insufficient *wordsmith.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Empty(t, f.gen.calls)
}

func TestEngine_PremiumReservesDouble(t *testing.T) {
	det := &fakeDetector{scores: []*wordsmith.DetectionScore{score(90)}}
	f := newEngineFixture(t, &fakeGenerator{}, det, wordsmith.EngineConfig{RefinementEnabled: true})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 200)

	result, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "premium essay",
		RequestedWordCount: 210,
		ToolType:           "writing",
		QualityTier:        wordsmith.TierPremium,
	})
	require.NoError(t, err)

	// Premium reserves and charges at twice the standard rate
	assert.EqualValues(t, 140, result.ReservedCredits)
	assert.EqualValues(t, 140, result.ChargedCredits)
	assert.EqualValues(t, 60, f.balance(t, "user1"))

	assert.NotNil(t, result.Scores)
	assert.Equal(t, 0, result.RefinementCycles)
	assert.True(t, result.Verdict.IsAcceptable)
}

func TestEngine_PremiumInsufficientForDouble(t *testing.T) {
	det := &fakeDetector{scores: []*wordsmith.DetectionScore{score(90)}}
	f := newEngineFixture(t, &fakeGenerator{}, det, wordsmith.EngineConfig{RefinementEnabled: true})
	ctx := context.Background()

	// Enough for a standard run but not the premium double reservation
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 100)

	_, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "premium essay",
		RequestedWordCount: 210,
		ToolType:           "writing",
		QualityTier:        wordsmith.TierPremium,
	})

	var insufficient *wordsmith.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 140, insufficient.Required)
}

func TestEngine_PremiumLowScoresFlagReview(t *testing.T) {
	gen := &fakeGenerator{reviseFn: func(req *wordsmith.ReviseRequest) (*wordsmith.ChunkResult, error) {
		return &wordsmith.ChunkResult{Text: req.Content, WordCount: wordsmith.CountWords(req.Content)}, nil
	}}
	det := &fakeDetector{scores: []*wordsmith.DetectionScore{score(40)}}
	f := newEngineFixture(t, gen, det, wordsmith.EngineConfig{RefinementEnabled: true})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 200)

	result, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "premium essay",
		RequestedWordCount: 210,
		ToolType:           "writing",
		QualityTier:        wordsmith.TierPremium,
	})
	require.NoError(t, err)

	// Low scores never fail the run; the user is still charged and the
	// result is flagged
	assert.True(t, result.RequiresReview)
	assert.False(t, result.Verdict.IsAcceptable)
	assert.Equal(t, 2, result.RefinementCycles)
	assert.EqualValues(t, 60, f.balance(t, "user1"))
}

func TestEngine_StandardTierSkipsRefinement(t *testing.T) {
	det := &fakeDetector{scores: []*wordsmith.DetectionScore{score(40)}}
	f := newEngineFixture(t, &fakeGenerator{}, det, wordsmith.EngineConfig{RefinementEnabled: true})
	ctx := context.Background()
	seedAccount(t, f.store, "user1", wordsmith.PlanPro, 100)

	result, err := f.engine.Generate(ctx, "user1", &wordsmith.GenerationRequest{
		Prompt:             "standard essay",
		RequestedWordCount: 210,
		ToolType:           "writing",
		QualityTier:        wordsmith.TierStandard,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, det.calls)
	assert.Nil(t, result.Scores)
	assert.EqualValues(t, 70, result.ChargedCredits)
}
