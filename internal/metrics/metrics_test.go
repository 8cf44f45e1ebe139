package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVote(OutcomeSuccess, time.Millisecond)
		m.ObserveItem(OutcomeSuccess)
		m.ObserveSnapshot(true, 3)
		m.ObserveSubscriptionError()
	})
}

func TestObserveSnapshot(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	m.ObserveSnapshot(true, 3)
	m.ObserveSnapshot(false, 0)
	m.ObserveSnapshot(true, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsDropped))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ListSize))
}

func TestObserveVote(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	m.ObserveVote(OutcomeSuccess, 2*time.Millisecond)
	m.ObserveVote(OutcomeAlreadyVoted, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesCast.WithLabelValues(OutcomeAlreadyVoted)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.VotesCast))
	assert.Equal(t, 1, testutil.CollectAndCount(m.VoteDuration))
}
