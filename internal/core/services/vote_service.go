package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
	"github.com/vncsmyrnk/places/internal/metrics"
)

type voteService struct {
	store     ports.Transactor
	publisher ports.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewVoteService(store ports.Transactor, publisher ports.EventPublisher, m *metrics.Metrics, logger *slog.Logger) ports.VoteService {
	return &voteService{
		store:     store,
		publisher: resolvePublisher(publisher),
		metrics:   m,
		logger:    resolveLogger(logger),
	}
}

// CastVote records one vote of voterID for itemID. The existence check,
// the vote write and the count increment commit as one transaction; a
// submitted transaction runs to completion even if ctx is canceled.
func (s *voteService) CastVote(ctx context.Context, itemID, voterID string) (*domain.Vote, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, fmt.Errorf("%w: empty item id", domain.ErrItemNotFound)
	}
	if strings.TrimSpace(voterID) == "" {
		return nil, fmt.Errorf("%w: voter id is required", domain.ErrValidation)
	}

	start := time.Now()
	var cast *domain.Vote
	err := s.store.RunTransaction(context.WithoutCancel(ctx), func(ctx context.Context, tx ports.Tx) error {
		_, voted, err := tx.GetVote(ctx, itemID, voterID)
		if err != nil {
			return err
		}
		if voted {
			return domain.ErrAlreadyVoted
		}

		item, found, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrItemNotFound
		}

		vote, err := tx.CreateVote(ctx, itemID, voterID)
		if err != nil {
			return err
		}
		if err := tx.SetVoteCount(ctx, itemID, item.VoteCount+1); err != nil {
			return err
		}

		cast = vote
		return nil
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyVoted):
		s.metrics.ObserveVote(metrics.OutcomeAlreadyVoted, elapsed)
		return nil, err
	case errors.Is(err, domain.ErrItemNotFound):
		s.metrics.ObserveVote(metrics.OutcomeNotFound, elapsed)
		return nil, err
	default:
		s.metrics.ObserveVote(metrics.OutcomeAborted, elapsed)
		s.logger.Error("vote transaction failed", "item_id", itemID, "voter_id", voterID, "error", err)
		if !errors.Is(err, domain.ErrTransactionAborted) {
			err = fmt.Errorf("%w: %w", domain.ErrTransactionAborted, err)
		}
		return nil, err
	}

	s.metrics.ObserveVote(metrics.OutcomeSuccess, elapsed)
	s.logger.Info("vote cast", "item_id", itemID, "voter_id", voterID, "elapsed_ms", elapsed.Milliseconds())

	if err := s.publisher.Publish(ctx, domain.Event{
		Type:          domain.EventVoteCast,
		ItemID:        itemID,
		ParticipantID: voterID,
		OccurredAt:    cast.CastAt,
	}); err != nil {
		s.logger.Warn("failed to publish event", "type", domain.EventVoteCast, "item_id", itemID, "error", err)
	}

	return cast, nil
}
