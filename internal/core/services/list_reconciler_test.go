package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/places/internal/core/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func item(id string, votes int64, age time.Duration) domain.Item {
	return domain.Item{
		ID:        id,
		Name:      id,
		CreatorID: "creator",
		VoteCount: votes,
		CreatedAt: base.Add(-age),
	}
}

func ids(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

type stateLog struct {
	mu     sync.Mutex
	states []domain.ListState
}

func (l *stateLog) record(state domain.ListState, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, state)
}

func (l *stateLog) all() []domain.ListState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ListState(nil), l.states...)
}

func TestReconcilerLifecycle(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)
	log := &stateLog{}
	r.OnStateChanged(log.record)

	assert.Equal(t, domain.ListIdle, r.State())

	require.NoError(t, r.Activate(context.Background()))
	assert.Equal(t, domain.ListLoading, r.State())
	assert.Empty(t, r.CurrentList())

	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 1})
	assert.Equal(t, domain.ListReady, r.State())
	assert.Empty(t, r.CurrentList(), "an empty list is a valid ready state")

	r.Deactivate()
	assert.Equal(t, domain.ListIdle, r.State())

	assert.Equal(t, []domain.ListState{domain.ListLoading, domain.ListReady, domain.ListIdle}, log.all())
}

func TestReconcilerKeepsStoreOrder(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)
	require.NoError(t, r.Activate(context.Background()))

	// A is newer than B at equal counts
	a := item("A", 5, time.Minute)
	b := item("B", 5, time.Hour)
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 1, Items: []domain.Item{a, b}})
	assert.Equal(t, []string{"A", "B"}, ids(r.CurrentList()))

	// whatever order the store sends is taken as is
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 2, Items: []domain.Item{b, a}})
	assert.Equal(t, []string{"B", "A"}, ids(r.CurrentList()))
}

func TestReconcilerListUpdatedOncePerSnapshot(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)

	var versions []uint64
	remove := r.OnListUpdated(func(s domain.Snapshot) { versions = append(versions, s.Version) })
	require.NoError(t, r.Activate(context.Background()))

	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 1})
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 2, Items: []domain.Item{item("A", 0, 0)}})
	remove()
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 3})

	assert.Equal(t, []uint64{1, 2}, versions)
}

func TestReconcilerDropsStaleSnapshots(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)
	require.NoError(t, r.Activate(context.Background()))

	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 4, Items: []domain.Item{item("new", 2, 0)}})
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 3, Items: []domain.Item{item("old", 1, 0)}})
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 4, Items: []domain.Item{item("dup", 1, 0)}})

	assert.Equal(t, []string{"new"}, ids(r.CurrentList()))
	assert.Equal(t, uint64(4), r.Version())
}

func TestReconcilerCurrentListIsACopy(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)
	require.NoError(t, r.Activate(context.Background()))
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 1, Items: []domain.Item{item("A", 1, 0)}})

	list := r.CurrentList()
	list[0].VoteCount = 99

	assert.Equal(t, int64(1), r.CurrentList()[0].VoteCount)
}

func TestReconcilerSubscriptionError(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)
	require.NoError(t, r.Activate(context.Background()))
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 1, Items: []domain.Item{item("A", 1, 0)}})

	repo.feed(0).OnError(errors.New("connection reset"))

	assert.Equal(t, domain.ListError, r.State())
	assert.ErrorIs(t, r.Err(), domain.ErrSubscription)
	assert.Equal(t, 1, repo.subs[0].Cancels())

	// no reconnect on its own
	assert.Equal(t, 1, repo.subscriptions())

	// deliveries from the broken feed are ignored
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 2})
	assert.Equal(t, domain.ListError, r.State())
}

func TestReconcilerReactivatesAfterError(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)
	require.NoError(t, r.Activate(context.Background()))
	repo.feed(0).OnError(errors.New("connection reset"))

	require.NoError(t, r.Activate(context.Background()))
	assert.Equal(t, domain.ListLoading, r.State())
	assert.NoError(t, r.Err())
	require.Equal(t, 2, repo.subscriptions())

	repo.feed(1).OnSnapshot(domain.Snapshot{Version: 1, Items: []domain.Item{item("A", 0, 0)}})
	assert.Equal(t, domain.ListReady, r.State())
	assert.Equal(t, []string{"A"}, ids(r.CurrentList()))
}

func TestReconcilerSubscribeFailure(t *testing.T) {
	repo := &fakeRepo{subscribeErr: errors.New("permission denied")}
	r := NewListReconciler(repo, nil, nil)

	err := r.Activate(context.Background())
	assert.ErrorIs(t, err, domain.ErrSubscription)
	assert.Equal(t, domain.ListError, r.State())
	assert.ErrorIs(t, r.Err(), domain.ErrSubscription)
}

func TestReconcilerActivateTwiceSubscribesOnce(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)

	require.NoError(t, r.Activate(context.Background()))
	require.NoError(t, r.Activate(context.Background()))
	assert.Equal(t, 1, repo.subscriptions())
}

func TestReconcilerDeactivateIsIdempotent(t *testing.T) {
	repo := &fakeRepo{}
	r := NewListReconciler(repo, nil, nil)
	require.NoError(t, r.Activate(context.Background()))
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 1, Items: []domain.Item{item("A", 0, 0)}})

	r.Deactivate()
	r.Deactivate()

	assert.Equal(t, 1, repo.subs[0].Cancels())
	assert.Equal(t, domain.ListIdle, r.State())
	assert.Empty(t, r.CurrentList())

	// a late callback from the released feed changes nothing
	repo.feed(0).OnSnapshot(domain.Snapshot{Version: 2, Items: []domain.Item{item("B", 0, 0)}})
	assert.Equal(t, domain.ListIdle, r.State())
	assert.Empty(t, r.CurrentList())
}

func TestReconcilerOverMemoryStore(t *testing.T) {
	store := newTestStore(t)
	items := NewItemService(store, nil, nil, nil)
	votes := NewVoteService(store, nil, nil, nil)
	r := NewListReconciler(store, nil, nil)

	require.NoError(t, r.Activate(context.Background()))
	defer r.Deactivate()

	require.Eventually(t, func() bool { return r.State() == domain.ListReady }, time.Second, 5*time.Millisecond)

	// participant A adds two places, B and C vote for Canyon at the same time
	ctx := context.Background()
	alpha, err := items.CreateItem(ctx, "Alpha", "a")
	require.NoError(t, err)
	canyon, err := items.CreateItem(ctx, "Canyon", "a")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, voter := range []string{"b", "c"} {
		wg.Add(1)
		go func(voter string) {
			defer wg.Done()
			_, err := votes.CastVote(ctx, canyon.ID, voter)
			assert.NoError(t, err)
		}(voter)
	}
	wg.Wait()

	beach, err := items.CreateItem(ctx, "Beach", "d")
	require.NoError(t, err)

	want := []string{canyon.ID, beach.ID, alpha.ID}
	require.Eventually(t, func() bool {
		list := r.CurrentList()
		return assert.ObjectsAreEqual(want, ids(list)) && list[0].VoteCount == 2
	}, time.Second, 5*time.Millisecond)

	var voters []string
	for _, v := range store.Votes(canyon.ID) {
		voters = append(voters, v.VoterID)
	}
	assert.Equal(t, []string{"b", "c"}, voters)
	assert.Empty(t, store.Votes(alpha.ID))
}

func TestReconcilerErrorFromStore(t *testing.T) {
	store := newTestStore(t)
	r := NewListReconciler(store, nil, nil)
	require.NoError(t, r.Activate(context.Background()))
	require.Eventually(t, func() bool { return r.State() == domain.ListReady }, time.Second, 5*time.Millisecond)

	store.BreakSubscriptions(errors.New("stream closed"))

	require.Eventually(t, func() bool { return r.State() == domain.ListError }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, r.Err(), domain.ErrSubscription)

	r.Deactivate()
	r.Deactivate()
	assert.Equal(t, domain.ListIdle, r.State())
}
