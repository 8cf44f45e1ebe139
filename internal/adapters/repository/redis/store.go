package redisadapter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

const (
	itemsIndexKey  = "items"
	changedChannel = "items:changed"
)

func itemKey(itemID string) string {
	return "items:" + itemID
}

// Votes live outside the items: namespace so no item id can name a vote.
func voteKey(itemID, voterID string) string {
	return "votes:" + itemID + ":" + voterID
}

// votersKey holds the set of voter ids of one item, written in the same
// MULTI as the vote and the counter.
func votersKey(itemID string) string {
	return "voters:" + itemID
}

type Store struct {
	client *redis.Client
	policy ports.RetryPolicy
	logger *slog.Logger
}

func NewStore(client *redis.Client, policy ports.RetryPolicy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		policy: policy,
		logger: logger,
	}
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return c, nil
}

func (s *Store) CreateItem(ctx context.Context, input ports.NewItem) (*domain.Item, error) {
	now, err := s.client.Time(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading server time: %w", err)
	}

	item := domain.Item{
		ID:        uuid.NewString(),
		Name:      input.Name,
		CreatorID: input.CreatorID,
		VoteCount: 0,
		CreatedAt: now.UTC(),
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, itemKey(item.ID), encodeItem(item))
		p.SAdd(ctx, itemsIndexKey, item.ID)
		p.Publish(ctx, changedChannel, item.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error storing item: %w", err)
	}

	return &item, nil
}

// listRanked reads every item and orders it by the ranking rule. The
// ordering is done here so subscribers never sort on their own.
func (s *Store) listRanked(ctx context.Context) ([]domain.Item, error) {
	ids, err := s.client.SMembers(ctx, itemsIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading item index: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, itemKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading items: %w", err)
	}

	items := make([]domain.Item, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		item, err := decodeItem(id, fields)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return domain.Ranks(items[i], items[j]) })
	return items, nil
}

func encodeItem(item domain.Item) map[string]any {
	return map[string]any{
		"name":       item.Name,
		"creator_id": item.CreatorID,
		"vote_count": item.VoteCount,
		"created_at": item.CreatedAt.UnixNano(),
	}
}

func decodeItem(id string, fields map[string]string) (domain.Item, error) {
	count, err := strconv.ParseInt(fields["vote_count"], 10, 64)
	if err != nil {
		return domain.Item{}, fmt.Errorf("%w: item %s vote_count: %w", domain.ErrSchema, id, err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return domain.Item{}, fmt.Errorf("%w: item %s created_at: %w", domain.ErrSchema, id, err)
	}

	item := domain.Item{
		ID:        id,
		Name:      fields["name"],
		CreatorID: fields["creator_id"],
		VoteCount: count,
		CreatedAt: time.Unix(0, created).UTC(),
	}
	if err := item.Validate(); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

func decodeVote(itemID string, fields map[string]string) (domain.Vote, error) {
	cast, err := strconv.ParseInt(fields["cast_at"], 10, 64)
	if err != nil {
		return domain.Vote{}, fmt.Errorf("%w: vote cast_at: %w", domain.ErrSchema, err)
	}
	vote := domain.Vote{
		ItemID:  itemID,
		VoterID: fields["voter_id"],
		CastAt:  time.Unix(0, cast).UTC(),
	}
	if err := vote.Validate(); err != nil {
		return domain.Vote{}, err
	}
	return vote, nil
}
