package services

import (
	"context"
	"log/slog"

	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domain.Event) error { return nil }
func (discardPublisher) Close() error { return nil }

func resolvePublisher(publisher ports.EventPublisher) ports.EventPublisher {
	if publisher == nil {
		return discardPublisher{}
	}
	return publisher
}
