package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements wordsmith.Metrics using Prometheus.
type Metrics struct {
	reservationsTotal  *prometheus.CounterVec
	reservationCredits *prometheus.HistogramVec
	commitsTotal       prometheus.Counter
	refundedOnCommit   prometheus.Counter
	rollbacksTotal     prometheus.Counter
	refundsTotal       *prometheus.CounterVec
	storeOpsDuration   *prometheus.HistogramVec
	storeOpsErrors     *prometheus.CounterVec
	chunkRealizedWords *prometheus.HistogramVec
	generationDuration *prometheus.HistogramVec
	generationErrors   *prometheus.CounterVec
	refinementCycles   prometheus.Histogram
	refinementAccepted *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		reservationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_reservations_total",
			Help:      "Total number of credit reservation attempts.",
		}, []string{"tool_type", "success"}),

		reservationCredits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "credit_reservation_amount",
			Help:      "Distribution of reserved credit amounts.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
		}, []string{"tool_type"}),

		commitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_commits_total",
			Help:      "Total number of committed reservations.",
		}),

		refundedOnCommit: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_commit_refunded_total",
			Help:      "Total credits returned as reserve/actual differences.",
		}),

		rollbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_rollbacks_total",
			Help:      "Total number of rolled-back reservations.",
		}),

		refundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_refunds_total",
			Help:      "Total number of additive refunds.",
		}, []string{"reason"}),

		storeOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of atomic store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storeOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Total number of store operation errors.",
		}, []string{"operation"}),

		chunkRealizedWords: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_chunk_words",
			Help:      "Distribution of realized words per generation chunk.",
			Buckets:   []float64{50, 100, 200, 400, 600, 800, 1200},
		}, []string{"tool_type"}),

		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of full generation runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool_type"}),

		generationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Total number of failed generation runs.",
		}, []string{"tool_type"}),

		refinementCycles: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refinement_cycles",
			Help:      "Distribution of refinement cycles per premium request.",
			Buckets:   []float64{0, 1, 2, 3},
		}),

		refinementAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refinement_outcomes_total",
			Help:      "Total refinement outcomes by acceptance.",
		}, []string{"accepted"}),
	}
}

func (m *Metrics) RecordReservation(userID, toolType string, credits int64, success bool) {
	m.reservationsTotal.WithLabelValues(toolType, strconv.FormatBool(success)).Inc()
	if success {
		m.reservationCredits.WithLabelValues(toolType).Observe(float64(credits))
	}
}

func (m *Metrics) RecordCommit(userID string, reserved, charged int64) {
	m.commitsTotal.Inc()
	if diff := reserved - charged; diff > 0 {
		m.refundedOnCommit.Add(float64(diff))
	}
}

func (m *Metrics) RecordRollback(userID string, amount int64) {
	m.rollbacksTotal.Inc()
}

func (m *Metrics) RecordRefund(reason string, amount int64) {
	m.refundsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	m.storeOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storeOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordChunk(toolType string, targetWords, realizedWords int) {
	m.chunkRealizedWords.WithLabelValues(toolType).Observe(float64(realizedWords))
}

func (m *Metrics) RecordGeneration(toolType string, duration time.Duration, chunks int, err error) {
	m.generationDuration.WithLabelValues(toolType).Observe(duration.Seconds())
	if err != nil {
		m.generationErrors.WithLabelValues(toolType).Inc()
	}
}

func (m *Metrics) RecordRefinement(cycles int, accepted bool) {
	m.refinementCycles.Observe(float64(cycles))
	m.refinementAccepted.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}
