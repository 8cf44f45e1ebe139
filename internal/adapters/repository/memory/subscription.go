package memory

import (
	"fmt"
	"sync"

	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

// subscription delivers snapshots from a single goroutine. Writers never
// block on a slow handler: only the newest undelivered snapshot is kept,
// which is enough because every snapshot is complete.
type subscription struct {
	store   *Store
	handler ports.SnapshotHandler

	mu      sync.Mutex
	pending *domain.Snapshot
	failure error

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscription(store *Store, handler ports.SnapshotHandler) *subscription {
	return &subscription{
		store:   store,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscription) push(snapshot domain.Snapshot) {
	s.mu.Lock()
	s.pending = &snapshot
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	s.failure = fmt.Errorf("%w: %w", domain.ErrSubscription, err)
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		snapshot, failure := s.pending, s.failure
		s.pending = nil
		s.mu.Unlock()

		if failure != nil {
			s.Cancel()
			s.handler.OnError(failure)
			return
		}
		if snapshot != nil && !s.canceled() {
			s.handler.OnSnapshot(*snapshot)
		}
	}
}

func (s *subscription) canceled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.store.unsubscribe(s)
	})
}
