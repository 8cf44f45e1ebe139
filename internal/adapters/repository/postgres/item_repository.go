package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

const itemsChangedChannel = "items_changed"

const rankedItemsQuery = `
	SELECT id, name, creator_id, vote_count, created_at
	FROM items
	ORDER BY vote_count DESC, created_at DESC, id ASC
`

type itemRepository struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger
}

// NewItemRepository needs the connection string next to the pool because
// the live query holds its own LISTEN connection.
func NewItemRepository(db *sql.DB, dsn string, logger *slog.Logger) ports.ItemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &itemRepository{
		db:     db,
		dsn:    dsn,
		logger: logger,
	}
}

func (r *itemRepository) CreateItem(ctx context.Context, input ports.NewItem) (*domain.Item, error) {
	item := domain.Item{
		ID:        uuid.NewString(),
		Name:      input.Name,
		CreatorID: input.CreatorID,
	}

	query := `
		INSERT INTO items (id, name, creator_id)
		VALUES ($1, $2, $3)
		RETURNING vote_count, created_at
	`
	err := r.db.QueryRowContext(ctx, query, item.ID, item.Name, item.CreatorID).Scan(&item.VoteCount, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()

	return &item, nil
}

func (r *itemRepository) SubscribeRanked(ctx context.Context, handler ports.SnapshotHandler) (ports.Subscription, error) {
	sub := &subscription{
		repo:     r,
		handler:  handler,
		failures: make(chan error, 1),
		done:     make(chan struct{}),
	}

	sub.listener = pq.NewListener(r.dsn, 10*time.Millisecond, time.Minute, sub.onListenerEvent)

	// Listen blocks until a connection exists, so a failed first attempt or
	// the caller giving up has to end the wait instead.
	listened := make(chan error, 1)
	go func() { listened <- sub.listener.Listen(itemsChangedChannel) }()

	var err error
	select {
	case err = <-listened:
	case err = <-sub.failures:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		sub.listener.Close()
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", domain.ErrSubscription, itemsChangedChannel, err)
	}

	go sub.run(ctx)

	return sub, nil
}

func (r *itemRepository) listRanked(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, rankedItemsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatorID, &item.VoteCount, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan item: %w", domain.ErrSchema, err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		if err := item.Validate(); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// subscription re-reads the ranked query whenever the items trigger
// fires a notification. One goroutine does all deliveries, so versions
// reach the handler in order.
type subscription struct {
	repo     *itemRepository
	handler  ports.SnapshotHandler
	listener *pq.Listener
	failures chan error
	version  uint64

	done chan struct{}
	once sync.Once
}

func (s *subscription) onListenerEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		if err == nil {
			err = errors.New("listener connection lost")
		}
		select {
		case s.failures <- err:
		default:
		}
	}
}

func (s *subscription) run(ctx context.Context) {
	defer s.Cancel()

	if !s.deliver(ctx) {
		return
	}

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case err := <-s.failures:
			if s.canceled() {
				return
			}
			s.handler.OnError(fmt.Errorf("%w: %w", domain.ErrSubscription, err))
			return
		case _, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			s.drain()
			if !s.deliver(ctx) {
				return
			}
		case <-ping.C:
			go s.listener.Ping()
		}
	}
}

// drain folds notifications that queued up while the last query ran;
// the next snapshot covers them all.
func (s *subscription) drain() {
	for {
		select {
		case _, ok := <-s.listener.Notify:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *subscription) deliver(ctx context.Context) bool {
	items, err := s.repo.listRanked(ctx)
	if s.canceled() {
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
		if err := s.listener.Close(); err != nil {
			s.repo.logger.Debug("failed to close listener", "error", err)
		}
	})
}
