package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []domain.Snapshot
	errs      []error
}

func (r *recorder) OnSnapshot(s domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) last() (domain.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return domain.Snapshot{}, false
	}
	return r.snapshots[len(r.snapshots)-1], true
}

func (r *recorder) failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) versions() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.snapshots))
	for i, s := range r.snapshots {
		out[i] = s.Version
	}
	return out
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func vote(ctx context.Context, s *Store, itemID, voterID string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, voted, err := tx.GetVote(ctx, itemID, voterID)
		if err != nil {
			return err
		}
		if voted {
			return domain.ErrAlreadyVoted
		}
		item, found, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrItemNotFound
		}
		if _, err := tx.CreateVote(ctx, itemID, voterID); err != nil {
			return err
		}
		return tx.SetVoteCount(ctx, itemID, item.VoteCount+1)
	})
}

func TestCreateItemAssignsIncreasingTimes(t *testing.T) {
	s := NewStore(WithClock(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))))

	first, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)
	second, err := s.CreateItem(context.Background(), ports.NewItem{Name: "B", CreatorID: "x"})
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, s.Writes())
}

func TestCreateItemRejectsInvalidDocument(t *testing.T) {
	s := NewStore()

	_, err := s.CreateItem(context.Background(), ports.NewItem{Name: "", CreatorID: "x"})
	assert.ErrorIs(t, err, domain.ErrSchema)
	assert.Zero(t, s.Writes())
}

func TestTransactionCommitsAtomically(t *testing.T) {
	s := NewStore()
	item, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)

	require.NoError(t, vote(context.Background(), s, item.ID, "v1"))

	stored, _ := s.Item(item.ID)
	assert.Equal(t, int64(1), stored.VoteCount)
	votes := s.Votes(item.ID)
	require.Len(t, votes, 1)
	assert.Equal(t, "v1", votes[0].VoterID)
	assert.Equal(t, 3, s.Writes())
}

func TestTransactionDiscardsWritesOnError(t *testing.T) {
	s := NewStore()
	item, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)
	boom := errors.New("boom")

	err = s.RunTransaction(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if _, err := tx.CreateVote(ctx, item.ID, "v1"); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Votes(item.ID))
	assert.Equal(t, 1, s.Writes())
}

func TestTransactionDetectsConcurrentChange(t *testing.T) {
	s := NewStore(WithRetryPolicy(ports.ImmediateRetryPolicy(1)))
	item, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)

	err = s.RunTransaction(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		current, _, err := tx.GetItem(ctx, item.ID)
		if err != nil {
			return err
		}
		// another writer commits between our read and our commit
		require.NoError(t, vote(context.Background(), s, item.ID, "other"))
		return tx.SetVoteCount(ctx, item.ID, current.VoteCount+1)
	})

	assert.ErrorIs(t, err, domain.ErrTransactionAborted)
	stored, _ := s.Item(item.ID)
	assert.Equal(t, int64(1), stored.VoteCount)
}

func TestTransactionReexecutesBodyOnConflict(t *testing.T) {
	s := NewStore(WithRetryPolicy(ports.ImmediateRetryPolicy(5)))
	item, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)
	s.InjectConflicts(2)

	runs := 0
	err = s.RunTransaction(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		runs++
		current, _, err := tx.GetItem(ctx, item.ID)
		if err != nil {
			return err
		}
		return tx.SetVoteCount(ctx, item.ID, current.VoteCount+1)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	stored, _ := s.Item(item.ID)
	assert.Equal(t, int64(1), stored.VoteCount)
}

func TestReadOnlyTransactionWritesNothing(t *testing.T) {
	s := NewStore()
	item, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)
	s.InjectConflicts(1)

	err = s.RunTransaction(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, _, err := tx.GetItem(ctx, item.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Writes())
}

func TestSetVoteCountRejectsNegative(t *testing.T) {
	s := NewStore()
	item, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)

	err = s.RunTransaction(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.SetVoteCount(ctx, item.ID, -1)
	})
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestSubscribeRankedDeliversOrderedSnapshots(t *testing.T) {
	s := NewStore()
	rec := &recorder{}
	sub, err := s.SubscribeRanked(context.Background(), rec)
	require.NoError(t, err)
	defer sub.Cancel()

	a, err := s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)
	b, err := s.CreateItem(context.Background(), ports.NewItem{Name: "B", CreatorID: "x"})
	require.NoError(t, err)
	require.NoError(t, vote(context.Background(), s, a.ID, "v1"))

	require.Eventually(t, func() bool {
		snap, ok := rec.last()
		return ok && len(snap.Items) == 2 && snap.Items[0].VoteCount == 1
	}, time.Second, 5*time.Millisecond)

	snap, _ := rec.last()
	assert.Equal(t, a.ID, snap.Items[0].ID)
	assert.Equal(t, b.ID, snap.Items[1].ID)

	versions := rec.versions()
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestSubscriptionCancelIsIdempotent(t *testing.T) {
	s := NewStore()
	rec := &recorder{}
	sub, err := s.SubscribeRanked(context.Background(), rec)
	require.NoError(t, err)

	sub.Cancel()
	sub.Cancel()

	_, err = s.CreateItem(context.Background(), ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, snap := range rec.snapshots {
		assert.Empty(t, snap.Items)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.SubscribeRanked(ctx, &recorder{})
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subs) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestBreakSubscriptions(t *testing.T) {
	s := NewStore()
	rec := &recorder{}
	_, err := s.SubscribeRanked(context.Background(), rec)
	require.NoError(t, err)

	s.BreakSubscriptions(errors.New("stream closed"))

	require.Eventually(t, func() bool { return len(rec.failures()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.failures()[0], domain.ErrSubscription)
}

func TestSubscribeWithCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().SubscribeRanked(ctx, &recorder{})
	assert.ErrorIs(t, err, domain.ErrSubscription)
}

func TestLedgerTalliesVoteDocuments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a, err := s.CreateItem(ctx, ports.NewItem{Name: "A", CreatorID: "x"})
	require.NoError(t, err)
	b, err := s.CreateItem(ctx, ports.NewItem{Name: "B", CreatorID: "x"})
	require.NoError(t, err)

	require.NoError(t, vote(ctx, s, a.ID, "v1"))
	require.NoError(t, vote(ctx, s, a.ID, "v2"))
	require.NoError(t, vote(ctx, s, b.ID, "v1"))

	ids, err := s.ItemIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	tally, found, err := s.Tally(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ports.ItemTally{ItemID: a.ID, Stored: 2, Counted: 2}, tally)

	_, found, err = s.Tally(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
