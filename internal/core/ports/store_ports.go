package ports

import (
	"context"

	"github.com/vncsmyrnk/places/internal/core/domain"
)

type NewItem struct {
	Name      string
	CreatorID string
}

// SnapshotHandler receives the deliveries of one live query. Calls for a
// single subscription are serialized and arrive in snapshot order.
type SnapshotHandler interface {
	OnSnapshot(snapshot domain.Snapshot)
	OnError(err error)
}

// Subscription releases a live query. Cancel may be called any number
// of times.
type Subscription interface {
	Cancel()
}

type ItemRepository interface {
	// CreateItem stores a new item with zero votes. The id and creation
	// time are assigned by the store.
	CreateItem(ctx context.Context, input NewItem) (*domain.Item, error)
	// SubscribeRanked delivers every item ordered by vote count desc,
	// then creation time desc, as full snapshots.
	SubscribeRanked(ctx context.Context, handler SnapshotHandler) (Subscription, error)
}

// Tx is the read-verify-write view of a single transaction attempt.
// Reads register the documents the commit is conditioned on.
type Tx interface {
	GetVote(ctx context.Context, itemID, voterID string) (*domain.Vote, bool, error)
	GetItem(ctx context.Context, itemID string) (*domain.Item, bool, error)
	// CreateVote writes the vote with the transaction's server time.
	CreateVote(ctx context.Context, itemID, voterID string) (*domain.Vote, error)
	SetVoteCount(ctx context.Context, itemID string, count int64) error
}

type Transactor interface {
	// RunTransaction executes fn atomically. On a write conflict the whole
	// body is discarded and run again according to the store's
	// RetryPolicy. Errors returned by fn abort without retry.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Store interface {
	ItemRepository
	Transactor
}

// ItemTally pairs an item's stored counter with the number of vote
// documents under it, both read from one snapshot.
type ItemTally struct {
	ItemID  string
	Stored  int64
	Counted int64
}

// VoteLedger exposes stored counters next to the raw vote documents so
// the two can be compared.
type VoteLedger interface {
	ItemIDs(ctx context.Context) ([]string, error)
	// Tally reports false when the item no longer exists.
	Tally(ctx context.Context, itemID string) (ItemTally, bool, error)
}
