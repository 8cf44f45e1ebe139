package redisadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

// SubscribeRanked listens on the change channel and reloads the whole
// ranked list after every message.
func (s *Store) SubscribeRanked(ctx context.Context, handler ports.SnapshotHandler) (ports.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, changedChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: failed to subscribe to %s: %w", domain.ErrSubscription, changedChannel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		store:   s,
		handler: handler,
		pubsub:  pubsub,
		cancel:  cancel,
	}
	go sub.run(subCtx)

	return sub, nil
}

type subscription struct {
	store   *Store
	handler ports.SnapshotHandler
	pubsub  *redis.PubSub
	version uint64

	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) run(ctx context.Context) {
	defer s.Cancel()

	if !s.deliver(ctx) {
		return
	}

	for {
		if _, err := s.pubsub.ReceiveMessage(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.handler.OnError(fmt.Errorf("%w: %w", domain.ErrSubscription, err))
			return
		}
		if !s.deliver(ctx) {
			return
		}
	}
}

func (s *subscription) deliver(ctx context.Context) bool {
	items, err := s.store.listRanked(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		s.handler.OnError(err)
		return false
	}
	s.version++
	s.handler.OnSnapshot(domain.Snapshot{Version: s.version, Items: items})
	return true
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		if err := s.pubsub.Close(); err != nil {
			s.store.logger.Debug("failed to close pubsub", "error", err)
		}
	})
}
