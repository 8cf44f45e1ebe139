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

type itemService struct {
	repo      ports.ItemRepository
	publisher ports.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewItemService(repo ports.ItemRepository, publisher ports.EventPublisher, m *metrics.Metrics, logger *slog.Logger) ports.ItemService {
	return &itemService{
		repo:      repo,
		publisher: resolvePublisher(publisher),
		metrics:   m,
		logger:    resolveLogger(logger),
	}
}

func (s *itemService) CreateItem(ctx context.Context, name, creatorID string) (*domain.Item, error) {
	trimmed, err := domain.NormalizeItemName(name)
	if err != nil {
		s.metrics.ObserveItem(metrics.OutcomeValidation)
		return nil, err
	}
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		s.metrics.ObserveItem(metrics.OutcomeValidation)
		return nil, fmt.Errorf("%w: creator id is required", domain.ErrValidation)
	}

	item, err := s.repo.CreateItem(ctx, ports.NewItem{Name: trimmed, CreatorID: creatorID})
	if err != nil {
		s.metrics.ObserveItem(metrics.OutcomeFailed)
		if errors.Is(err, domain.ErrSchema) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	s.metrics.ObserveItem(metrics.OutcomeSuccess)
	s.logger.Info("item created", "item_id", item.ID, "creator_id", creatorID)

	s.emit(ctx, domain.Event{
		Type:          domain.EventItemCreated,
		ItemID:        item.ID,
		ParticipantID: creatorID,
		OccurredAt:    item.CreatedAt,
	})

	return item, nil
}

func (s *itemService) emit(ctx context.Context, event domain.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "type", event.Type, "item_id", event.ItemID, "error", err)
	}
}
