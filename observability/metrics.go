package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OracleMetrics records update and query activity for the price oracle.
type OracleMetrics struct {
	updatesAccepted prometheus.Counter
	updatesRejected *prometheus.CounterVec
	fxLookups       *prometheus.CounterVec
	queryLatency    *prometheus.HistogramVec
}

var (
	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics
)

// Oracle returns the lazily-initialised metrics registry for the oracle
// engine and its query surface.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			updatesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "yieldoracle",
				Subsystem: "engine",
				Name:      "updates_accepted_total",
				Help:      "Total accepted yield-rate update batches.",
			}),
			updatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldoracle",
				Subsystem: "engine",
				Name:      "updates_rejected_total",
				Help:      "Total rejected update batches segmented by failure kind.",
			}, []string{"reason"}),
			fxLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldoracle",
				Subsystem: "fx",
				Name:      "lookups_total",
				Help:      "Outbound FX oracle lookups segmented by outcome.",
			}, []string{"outcome"}),
			queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "yieldoracle",
				Subsystem: "query",
				Name:      "duration_seconds",
				Help:      "Latency of price queries segmented by operation.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			oracleRegistry.updatesAccepted,
			oracleRegistry.updatesRejected,
			oracleRegistry.fxLookups,
			oracleRegistry.queryLatency,
		)
	})
	return oracleRegistry
}

// UpdateAccepted counts a committed update batch.
func (m *OracleMetrics) UpdateAccepted() {
	if m == nil {
		return
	}
	m.updatesAccepted.Inc()
}

// UpdateRejected counts a rejected update batch by failure kind.
func (m *OracleMetrics) UpdateRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.updatesRejected.WithLabelValues(reason).Inc()
}

// FxLookup counts an outbound FX oracle read.
func (m *OracleMetrics) FxLookup(outcome string) {
	if m == nil {
		return
	}
	m.fxLookups.WithLabelValues(outcome).Inc()
}

// ObserveQuery records the latency of a completed query.
func (m *OracleMetrics) ObserveQuery(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryLatency.WithLabelValues(op).Observe(duration.Seconds())
}
