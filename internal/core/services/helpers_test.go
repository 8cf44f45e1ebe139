package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/places/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

func newTestStore(t *testing.T, opts ...memory.Option) *memory.Store {
	t.Helper()
	opts = append([]memory.Option{memory.WithRetryPolicy(ports.ImmediateRetryPolicy(200))}, opts...)
	return memory.NewStore(opts...)
}

func createItem(t *testing.T, store *memory.Store, name, creatorID string) *domain.Item {
	t.Helper()
	item, err := NewItemService(store, nil, nil, nil).CreateItem(context.Background(), name, creatorID)
	require.NoError(t, err)
	return item
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// fakeRepo hands snapshots to the reconciler synchronously. Every call to
// SubscribeRanked is recorded so tests can drive old and new feeds.
type fakeRepo struct {
	mu           sync.Mutex
	subscribeErr error
	feeds        []ports.SnapshotHandler
	subs         []*fakeSubscription
}

func (f *fakeRepo) CreateItem(context.Context, ports.NewItem) (*domain.Item, error) {
	return nil, errors.New("not supported")
}

func (f *fakeRepo) SubscribeRanked(_ context.Context, handler ports.SnapshotHandler) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &fakeSubscription{}
	f.feeds = append(f.feeds, handler)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeRepo) feed(i int) ports.SnapshotHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeds[i]
}

func (f *fakeRepo) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeSubscription struct {
	mu      sync.Mutex
	cancels int
}

func (s *fakeSubscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSubscription) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}
