package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

// Store is an in-process transactional document store. Documents live at
// items/{itemId} and items/{itemId}/votes/{voterId}; every document has
// a version and commits are rejected when a document read by the
// transaction changed in between.
type Store struct {
	retry ports.RetryPolicy
	clock func() time.Time

	mu        sync.Mutex
	items     map[string]domain.Item
	votes     map[string]domain.Vote
	versions  map[string]uint64
	snapshot  uint64
	lastTime  time.Time
	conflicts int
	writes    int
	subs      map[*subscription]struct{}
}

type Option func(*Store)

func WithRetryPolicy(policy ports.RetryPolicy) Option {
	return func(s *Store) { s.retry = policy }
}

// WithClock replaces the server clock. Timestamps handed out are still
// forced to be strictly increasing.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		retry:    ports.DefaultRetryPolicy(),
		clock:    time.Now,
		items:    make(map[string]domain.Item),
		votes:    make(map[string]domain.Vote),
		versions: make(map[string]uint64),
		subs:     make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func itemPath(itemID string) string {
	return "items/" + itemID
}

func votePath(itemID, voterID string) string {
	return "items/" + itemID + "/votes/" + voterID
}

func (s *Store) CreateItem(_ context.Context, input ports.NewItem) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := domain.Item{
		ID:        uuid.NewString(),
		Name:      input.Name,
		CreatorID: input.CreatorID,
		VoteCount: 0,
		CreatedAt: s.nowLocked(),
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	path := itemPath(item.ID)
	s.items[item.ID] = item
	s.versions[path]++
	s.writes++
	s.publishLocked()

	return &item, nil
}

func (s *Store) SubscribeRanked(ctx context.Context, handler ports.SnapshotHandler) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscription, err)
	}

	sub := newSubscription(s, handler)

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.push(s.snapshotLocked())
	s.mu.Unlock()

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.done:
		}
	}()

	return sub, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	return s.retry.Run(ctx, func(ctx context.Context, _ int) error {
		tx := &transaction{
			store:  s,
			reads:  make(map[string]uint64),
			counts: make(map[string]int64),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(tx)
	})
}

// InjectConflicts makes the next n commits fail as if another writer won
// the race.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// BreakSubscriptions ends every live subscription with err.
func (s *Store) BreakSubscriptions(err error) {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// Writes counts committed document writes.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) Item(itemID string) (domain.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	return item, ok
}

// Votes lists the vote documents of an item ordered by voter id.
func (s *Store) Votes(itemID string) []domain.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := itemPath(itemID) + "/votes/"
	var out []domain.Vote
	for path, vote := range s.votes {
		if strings.HasPrefix(path, prefix) {
			out = append(out, vote)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out
}

func (s *Store) commit(tx *transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tx.newVotes) == 0 && len(tx.counts) == 0 {
		return nil
	}
	if s.conflicts > 0 {
		s.conflicts--
		return fmt.Errorf("%w: injected", ports.ErrConflict)
	}
	for path, seen := range tx.reads {
		if s.versions[path] != seen {
			return fmt.Errorf("%w: %s changed", ports.ErrConflict, path)
		}
	}
	for _, vote := range tx.newVotes {
		path := votePath(vote.ItemID, vote.VoterID)
		if _, exists := s.votes[path]; exists {
			return fmt.Errorf("%w: %s exists", ports.ErrConflict, path)
		}
	}
	for itemID := range tx.counts {
		if _, ok := s.items[itemID]; !ok {
			return domain.ErrItemNotFound
		}
	}

	for _, vote := range tx.newVotes {
		path := votePath(vote.ItemID, vote.VoterID)
		s.votes[path] = vote
		s.versions[path]++
		s.writes++
	}
	for itemID, count := range tx.counts {
		item := s.items[itemID]
		item.VoteCount = count
		s.items[itemID] = item
		s.versions[itemPath(itemID)]++
		s.writes++
	}
	s.publishLocked()

	return nil
}

func (s *Store) nowLocked() time.Time {
	now := s.clock().UTC()
	if !now.After(s.lastTime) {
		now = s.lastTime.Add(time.Nanosecond)
	}
	s.lastTime = now
	return now
}

func (s *Store) snapshotLocked() domain.Snapshot {
	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return domain.Ranks(items[i], items[j]) })
	return domain.Snapshot{Version: s.snapshot, Items: items}
}

func (s *Store) publishLocked() {
	s.snapshot++
	snap := s.snapshotLocked()
	for sub := range s.subs {
		sub.push(snap)
	}
}

func (s *Store) unsubscribe(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

type transaction struct {
	store    *Store
	reads    map[string]uint64
	newVotes []domain.Vote
	counts   map[string]int64
	now      time.Time
}

func (t *transaction) GetVote(_ context.Context, itemID, voterID string) (*domain.Vote, bool, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	path := votePath(itemID, voterID)
	t.reads[path] = s.versions[path]
	vote, ok := s.votes[path]
	if !ok {
		return nil, false, nil
	}
	return &vote, true, nil
}

func (t *transaction) GetItem(_ context.Context, itemID string) (*domain.Item, bool, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	path := itemPath(itemID)
	t.reads[path] = s.versions[path]
	item, ok := s.items[itemID]
	if !ok {
		return nil, false, nil
	}
	return &item, true, nil
}

func (t *transaction) CreateVote(_ context.Context, itemID, voterID string) (*domain.Vote, error) {
	if t.now.IsZero() {
		t.store.mu.Lock()
		t.now = t.store.nowLocked()
		t.store.mu.Unlock()
	}
	vote := domain.Vote{ItemID: itemID, VoterID: voterID, CastAt: t.now}
	t.newVotes = append(t.newVotes, vote)
	return &vote, nil
}

func (t *transaction) SetVoteCount(_ context.Context, itemID string, count int64) error {
	if count < 0 {
		return fmt.Errorf("%w: negative vote count for %s", domain.ErrSchema, itemID)
	}
	t.counts[itemID] = count
	return nil
}

func (s *Store) ItemIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Tally(_ context.Context, itemID string) (ports.ItemTally, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return ports.ItemTally{}, false, nil
	}
	prefix := itemPath(itemID) + "/votes/"
	tally := ports.ItemTally{ItemID: itemID, Stored: item.VoteCount}
	for path := range s.votes {
		if strings.HasPrefix(path, prefix) {
			tally.Counted++
		}
	}
	return tally, true, nil
}
