package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/*
Vote outcomes and item creations are CounterVecs labelled by outcome so
"already voted" and "aborted" can be told apart on a dashboard. The
reconciler exposes how many snapshots it has applied and the size of the
latest list.

A nil *Metrics is valid and records nothing, so services can run
without a registry in tests.
*/

const (
	OutcomeSuccess      = "success"
	OutcomeAlreadyVoted = "already_voted"
	OutcomeNotFound     = "not_found"
	OutcomeAborted      = "aborted"
	OutcomeValidation   = "validation"
	OutcomeFailed       = "failed"
)

type Metrics struct {
	VotesCast          *prometheus.CounterVec
	VoteDuration       prometheus.Histogram
	ItemsCreated       *prometheus.CounterVec
	SnapshotsApplied   prometheus.Counter
	SnapshotsDropped   prometheus.Counter
	ListSize           prometheus.Gauge
	SubscriptionErrors prometheus.Counter
}

func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VotesCast: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "votes",
				Name:      "cast_total",
				Help:      "Vote attempts by final outcome",
			},
			[]string{"outcome"},
		),
		VoteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "votes",
				Name:      "transaction_seconds",
				Help:      "Time spent in the vote transaction including conflict retries",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		ItemsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "items",
				Name:      "created_total",
				Help:      "Item creation attempts by outcome",
			},
			[]string{"outcome"},
		),
		SnapshotsApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "list",
				Name:      "snapshots_applied_total",
				Help:      "Snapshots applied to the local ranked list",
			},
		),
		SnapshotsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "list",
				Name:      "snapshots_dropped_total",
				Help:      "Stale snapshots ignored because a newer one was already applied",
			},
		),
		ListSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "list",
				Name:      "items",
				Help:      "Number of items in the latest snapshot",
			},
		),
		SubscriptionErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "list",
				Name:      "subscription_errors_total",
				Help:      "Live query subscriptions that ended with an error",
			},
		),
	}
}

func (m *Metrics) ObserveVote(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.VotesCast.WithLabelValues(outcome).Inc()
	m.VoteDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveItem(outcome string) {
	if m == nil {
		return
	}
	m.ItemsCreated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSnapshot(applied bool, size int) {
	if m == nil {
		return
	}
	if !applied {
		m.SnapshotsDropped.Inc()
		return
	}
	m.SnapshotsApplied.Inc()
	m.ListSize.Set(float64(size))
}

func (m *Metrics) ObserveSubscriptionError() {
	if m == nil {
		return
	}
	m.SubscriptionErrors.Inc()
}
