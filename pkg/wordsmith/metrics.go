package wordsmith

import "time"

// Metrics defines the interface for tracking ledger and generation
// operations.
type Metrics interface {
	// RecordReservation records a credit reservation attempt.
	RecordReservation(userID, toolType string, credits int64, success bool)

	// RecordCommit records a finalized reservation with its reserved and
	// charged amounts.
	RecordCommit(userID string, reserved, charged int64)

	// RecordRollback records a released reservation.
	RecordRollback(userID string, amount int64)

	// RecordRefund records an additive refund.
	RecordRefund(reason string, amount int64)

	// RecordStoreOperation records the duration and status of an atomic
	// store operation.
	RecordStoreOperation(operation string, duration time.Duration, err error)

	// RecordChunk records one generation chunk with its target and
	// realized word counts.
	RecordChunk(toolType string, targetWords, realizedWords int)

	// RecordGeneration records a completed (or failed) generation run.
	RecordGeneration(toolType string, duration time.Duration, chunks int, err error)

	// RecordRefinement records a refinement loop outcome.
	RecordRefinement(cycles int, accepted bool)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordReservation(userID, toolType string, credits int64, success bool)          {}
func (n *NoopMetrics) RecordCommit(userID string, reserved, charged int64)                             {}
func (n *NoopMetrics) RecordRollback(userID string, amount int64)                                      {}
func (n *NoopMetrics) RecordRefund(reason string, amount int64)                                        {}
func (n *NoopMetrics) RecordStoreOperation(operation string, duration time.Duration, err error)        {}
func (n *NoopMetrics) RecordChunk(toolType string, targetWords, realizedWords int)                     {}
func (n *NoopMetrics) RecordGeneration(toolType string, duration time.Duration, chunks int, err error) {}
func (n *NoopMetrics) RecordRefinement(cycles int, accepted bool)                                      {}
