package ports

import (
	"context"

	"github.com/vncsmyrnk/places/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}
