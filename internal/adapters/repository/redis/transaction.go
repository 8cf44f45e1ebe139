package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

// RunTransaction WATCHes every key the body reads and commits the
// buffered writes in one MULTI/EXEC. A changed key fails EXEC, which is
// retried per the policy.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	return s.policy.Run(ctx, func(ctx context.Context, _ int) error {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{tx: rtx, counts: make(map[string]int64)}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return tx.commit(ctx)
		})
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: %w", ports.ErrConflict, err)
		}
		return err
	})
}

type redisTx struct {
	tx       *redis.Tx
	now      time.Time
	newVotes []domain.Vote
	counts   map[string]int64
}

func (t *redisTx) GetVote(ctx context.Context, itemID, voterID string) (*domain.Vote, bool, error) {
	key := voteKey(itemID, voterID)
	if err := t.tx.Watch(ctx, key).Err(); err != nil {
		return nil, false, fmt.Errorf("error watching %s: %w", key, err)
	}

	fields, err := t.tx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("error reading vote: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	vote, err := decodeVote(itemID, fields)
	if err != nil {
		return nil, false, err
	}
	return &vote, true, nil
}

func (t *redisTx) GetItem(ctx context.Context, itemID string) (*domain.Item, bool, error) {
	// ids are minted by CreateItem; anything else cannot exist
	if _, err := uuid.Parse(itemID); err != nil {
		return nil, false, nil
	}
	key := itemKey(itemID)
	if err := t.tx.Watch(ctx, key).Err(); err != nil {
		return nil, false, fmt.Errorf("error watching %s: %w", key, err)
	}

	fields, err := t.tx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("error reading item: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	item, err := decodeItem(itemID, fields)
	if err != nil {
		return nil, false, err
	}
	return &item, true, nil
}

func (t *redisTx) CreateVote(ctx context.Context, itemID, voterID string) (*domain.Vote, error) {
	if t.now.IsZero() {
		now, err := t.tx.Time(ctx).Result()
		if err != nil {
			return nil, fmt.Errorf("error reading server time: %w", err)
		}
		t.now = now.UTC()
	}

	vote := domain.Vote{ItemID: itemID, VoterID: voterID, CastAt: t.now}
	t.newVotes = append(t.newVotes, vote)
	return &vote, nil
}

func (t *redisTx) SetVoteCount(_ context.Context, itemID string, count int64) error {
	if count < 0 {
		return fmt.Errorf("%w: negative vote count for %s", domain.ErrSchema, itemID)
	}
	t.counts[itemID] = count
	return nil
}

func (t *redisTx) commit(ctx context.Context) error {
	if len(t.newVotes) == 0 && len(t.counts) == 0 {
		return nil
	}

	_, err := t.tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, vote := range t.newVotes {
			p.HSet(ctx, voteKey(vote.ItemID, vote.VoterID), "voter_id", vote.VoterID, "cast_at", vote.CastAt.UnixNano())
			p.SAdd(ctx, votersKey(vote.ItemID), vote.VoterID)
		}
		for itemID, count := range t.counts {
			p.HSet(ctx, itemKey(itemID), "vote_count", count)
			p.Publish(ctx, changedChannel, itemID)
		}
		return nil
	})
	return err
}
