package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

func (s *Store) ItemIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, itemsIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading item index: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Tally reads the counter and the voter set in one MULTI/EXEC. A vote
// writes both in a single MULTI too, so the pair is always consistent.
func (s *Store) Tally(ctx context.Context, itemID string) (ports.ItemTally, bool, error) {
	var (
		stored *redis.StringCmd
		voters *redis.IntCmd
	)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		stored = p.HGet(ctx, itemKey(itemID), "vote_count")
		voters = p.SCard(ctx, votersKey(itemID))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return ports.ItemTally{}, false, nil
	}
	if err != nil {
		return ports.ItemTally{}, false, fmt.Errorf("error tallying votes of %s: %w", itemID, err)
	}

	count, err := stored.Int64()
	if err != nil {
		return ports.ItemTally{}, false, fmt.Errorf("error decoding vote_count of %s: %w", itemID, err)
	}
	return ports.ItemTally{ItemID: itemID, Stored: count, Counted: voters.Val()}, true, nil
}
