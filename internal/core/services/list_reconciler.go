package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
	"github.com/vncsmyrnk/places/internal/metrics"
)

// ListReconciler keeps the local copy of the ranked item list. It takes
// the order exactly as the store delivers it and performs no writes.
type ListReconciler struct {
	repo    ports.ItemRepository
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu         sync.RWMutex
	state      domain.ListState
	err        error
	items      []domain.Item
	version    uint64
	active     bool
	generation uint64
	sub        ports.Subscription

	nextListener  int
	listListeners map[int]func(domain.Snapshot)
	stateWatchers map[int]func(domain.ListState, error)
}

func NewListReconciler(repo ports.ItemRepository, m *metrics.Metrics, logger *slog.Logger) *ListReconciler {
	return &ListReconciler{
		repo:          repo,
		metrics:       m,
		logger:        resolveLogger(logger),
		listListeners: make(map[int]func(domain.Snapshot)),
		stateWatchers: make(map[int]func(domain.ListState, error)),
	}
}

// Activate subscribes to the ranked query. It is a no-op while a
// subscription is live; after Deactivate or an error it subscribes again.
func (r *ListReconciler) Activate(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = true
	r.generation++
	gen := r.generation
	r.items = nil
	r.version = 0
	r.err = nil
	watchers := r.setStateLocked(domain.ListLoading)
	r.mu.Unlock()
	notifyState(watchers, domain.ListLoading, nil)

	sub, err := r.repo.SubscribeRanked(ctx, &reconcilerFeed{reconciler: r, generation: gen})
	if err != nil {
		err = asSubscriptionError(err)
		r.fail(gen, err)
		return err
	}

	r.mu.Lock()
	if !r.active || r.generation != gen {
		// Deactivated or failed while subscribing.
		r.mu.Unlock()
		sub.Cancel()
		return r.Err()
	}
	r.sub = sub
	r.mu.Unlock()

	return nil
}

// Deactivate releases the subscription. Calling it again is harmless.
func (r *ListReconciler) Deactivate() {
	r.mu.Lock()
	if !r.active && r.sub == nil && r.state == domain.ListIdle {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.generation++
	sub := r.sub
	r.sub = nil
	r.items = nil
	r.version = 0
	r.err = nil
	watchers := r.setStateLocked(domain.ListIdle)
	r.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	notifyState(watchers, domain.ListIdle, nil)
}

func (r *ListReconciler) CurrentList() []domain.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneItems(r.items)
}

func (r *ListReconciler) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *ListReconciler) State() domain.ListState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *ListReconciler) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// OnListUpdated registers fn to run once per applied snapshot. The
// returned func removes it.
func (r *ListReconciler) OnListUpdated(fn func(domain.Snapshot)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextListener
	r.nextListener++
	r.listListeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listListeners, id)
	}
}

// OnStateChanged registers fn to run on every state transition.
func (r *ListReconciler) OnStateChanged(fn func(domain.ListState, error)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextListener
	r.nextListener++
	r.stateWatchers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.stateWatchers, id)
	}
}

func (r *ListReconciler) apply(gen uint64, snapshot domain.Snapshot) {
	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return
	}
	if r.state == domain.ListReady && snapshot.Version <= r.version {
		r.mu.Unlock()
		r.metrics.ObserveSnapshot(false, 0)
		r.logger.Debug("stale snapshot dropped", "version", snapshot.Version, "current", r.version)
		return
	}

	r.items = cloneItems(snapshot.Items)
	r.version = snapshot.Version
	var watchers []func(domain.ListState, error)
	if r.state != domain.ListReady {
		watchers = r.setStateLocked(domain.ListReady)
	}
	listeners := make([]func(domain.Snapshot), 0, len(r.listListeners))
	for _, fn := range r.listListeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	r.metrics.ObserveSnapshot(true, len(snapshot.Items))
	notifyState(watchers, domain.ListReady, nil)
	for _, fn := range listeners {
		fn(domain.Snapshot{Version: snapshot.Version, Items: cloneItems(snapshot.Items)})
	}
}

func (r *ListReconciler) fail(gen uint64, err error) {
	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.generation++
	sub := r.sub
	r.sub = nil
	r.err = err
	watchers := r.setStateLocked(domain.ListError)
	r.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	r.metrics.ObserveSubscriptionError()
	r.logger.Error("live list subscription failed", "error", err)
	notifyState(watchers, domain.ListError, err)
}

func (r *ListReconciler) setStateLocked(state domain.ListState) []func(domain.ListState, error) {
	r.state = state
	watchers := make([]func(domain.ListState, error), 0, len(r.stateWatchers))
	for _, fn := range r.stateWatchers {
		watchers = append(watchers, fn)
	}
	return watchers
}

func notifyState(watchers []func(domain.ListState, error), state domain.ListState, err error) {
	for _, fn := range watchers {
		fn(state, err)
	}
}

func asSubscriptionError(err error) error {
	if errors.Is(err, domain.ErrSubscription) || errors.Is(err, domain.ErrSchema) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrSubscription, err)
}

func cloneItems(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	copy(out, items)
	return out
}

// reconcilerFeed binds deliveries to the activation that requested them,
// so a late callback from a canceled subscription is ignored.
type reconcilerFeed struct {
	reconciler *ListReconciler
	generation uint64
}

func (f *reconcilerFeed) OnSnapshot(snapshot domain.Snapshot) {
	f.reconciler.apply(f.generation, snapshot)
}

func (f *reconcilerFeed) OnError(err error) {
	f.reconciler.fail(f.generation, asSubscriptionError(err))
}
