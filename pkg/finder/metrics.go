package finder

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "crescent"

// Metrics tracks finder counters in-process and, when constructed with a
// registerer, as Prometheus series.
type Metrics struct {
	Invocations atomic.Int64
	Accepted    atomic.Int64
	TimedOut    atomic.Int64
	Failed      atomic.Int64
	Cancelled   atomic.Int64
	Polls       atomic.Int64
	Retries     atomic.Int64
	WaitNanos   atomic.Int64

	invocations *prometheus.CounterVec
	polls       *prometheus.HistogramVec
	waitSeconds *prometheus.HistogramVec
	retries     *prometheus.CounterVec
}

// NewMetrics creates a collector. A nil registerer keeps only the atomic
// counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	if reg == nil {
		return m
	}
	factory := promauto.With(reg)
	m.invocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "finder",
			Name:      "invocations_total",
			Help:      "Finder invocations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	m.polls = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "finder",
			Name:      "polls_per_invocation",
			Help:      "Number of evaluations per finder invocation",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1 to 128
		},
		[]string{"operation"},
	)
	m.waitSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "finder",
			Name:      "wait_seconds",
			Help:      "Time spent waiting per finder invocation",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"operation"},
	)
	m.retries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "finder",
			Name:      "retryable_errors_total",
			Help:      "Missing or stale element errors absorbed by the poll loop",
		},
		[]string{"operation"},
	)
	return m
}

func (m *Metrics) record(operation string, stats pollStats) {
	if m == nil {
		return
	}
	m.Invocations.Add(1)
	m.Polls.Add(int64(stats.polls))
	m.Retries.Add(int64(stats.retries))
	m.WaitNanos.Add(stats.elapsed.Nanoseconds())
	switch stats.outcome {
	case outcomeAccepted:
		m.Accepted.Add(1)
	case outcomeTimeout:
		m.TimedOut.Add(1)
	case outcomeFailed:
		m.Failed.Add(1)
	case outcomeCancelled:
		m.Cancelled.Add(1)
	}

	if m.invocations == nil {
		return
	}
	m.invocations.WithLabelValues(operation, string(stats.outcome)).Inc()
	m.polls.WithLabelValues(operation).Observe(float64(stats.polls))
	m.waitSeconds.WithLabelValues(operation).Observe(stats.elapsed.Seconds())
	if stats.retries > 0 {
		m.retries.WithLabelValues(operation).Add(float64(stats.retries))
	}
}

// Snapshot returns a point-in-time copy of the atomic counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	invocations := m.Invocations.Load()
	var avgWait time.Duration
	var avgPolls float64
	if invocations > 0 {
		avgWait = time.Duration(m.WaitNanos.Load() / invocations)
		avgPolls = float64(m.Polls.Load()) / float64(invocations)
	}
	return MetricsSnapshot{
		Invocations:  invocations,
		Accepted:     m.Accepted.Load(),
		TimedOut:     m.TimedOut.Load(),
		Failed:       m.Failed.Load(),
		Cancelled:    m.Cancelled.Load(),
		Polls:        m.Polls.Load(),
		Retries:      m.Retries.Load(),
		AveragePolls: avgPolls,
		AverageWait:  avgWait,
		TotalWait:    time.Duration(m.WaitNanos.Load()),
	}
}

// MetricsSnapshot is a point-in-time copy of finder metrics.
type MetricsSnapshot struct {
	Invocations  int64
	Accepted     int64
	TimedOut     int64
	Failed       int64
	Cancelled    int64
	Polls        int64
	Retries      int64
	AveragePolls float64
	AverageWait  time.Duration
	TotalWait    time.Duration
}
