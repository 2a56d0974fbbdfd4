package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg, "test"), reg
}

func TestMetrics_RecordReservation(t *testing.T) {
	metrics, _ := newTestMetrics(t)

	metrics.RecordReservation("user1", "writing", 70, true)
	metrics.RecordReservation("user1", "writing", 200, false)

	if got := testutil.ToFloat64(metrics.reservationsTotal.WithLabelValues("writing", "true")); got != 1 {
		t.Errorf("Expected 1 successful reservation, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.reservationsTotal.WithLabelValues("writing", "false")); got != 1 {
		t.Errorf("Expected 1 failed reservation, got %v", got)
	}
}

func TestMetrics_RecordCommitTracksRefundedDifference(t *testing.T) {
	metrics, _ := newTestMetrics(t)

	metrics.RecordCommit("user1", 70, 50)
	metrics.RecordCommit("user1", 70, 70)

	if got := testutil.ToFloat64(metrics.commitsTotal); got != 2 {
		t.Errorf("Expected 2 commits, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.refundedOnCommit); got != 20 {
		t.Errorf("Expected 20 refunded credits, got %v", got)
	}
}

func TestMetrics_RecordStoreOperation(t *testing.T) {
	metrics, _ := newTestMetrics(t)

	metrics.RecordStoreOperation("reserve", 5*time.Millisecond, nil)
	metrics.RecordStoreOperation("reserve", 5*time.Millisecond, errors.New("conflict"))

	if got := testutil.ToFloat64(metrics.storeOpsErrors.WithLabelValues("reserve")); got != 1 {
		t.Errorf("Expected 1 store error, got %v", got)
	}
}

func TestMetrics_GatherExposesAllFamilies(t *testing.T) {
	metrics, reg := newTestMetrics(t)

	metrics.RecordReservation("user1", "writing", 70, true)
	metrics.RecordCommit("user1", 70, 70)
	metrics.RecordRollback("user1", 70)
	metrics.RecordRefund("purchase", 500)
	metrics.RecordStoreOperation("commit", time.Millisecond, nil)
	metrics.RecordChunk("writing", 600, 580)
	metrics.RecordGeneration("writing", 100*time.Millisecond, 3, nil)
	metrics.RecordRefinement(2, false)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) < 8 {
		t.Errorf("Expected at least 8 metric families, got %d", len(families))
	}
}
