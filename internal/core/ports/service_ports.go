package ports

import (
	"context"

	"github.com/vncsmyrnk/places/internal/core/domain"
)

type ItemService interface {
	CreateItem(ctx context.Context, name, creatorID string) (*domain.Item, error)
}

type VoteService interface {
	CastVote(ctx context.Context, itemID, voterID string) (*domain.Vote, error)
}

// ListReader is the read side of the reconciled live list.
type ListReader interface {
	CurrentList() []domain.Item
	Version() uint64
	State() domain.ListState
	Err() error
}

// VotingSession is one participant's view of the system.
type VotingSession interface {
	ParticipantID() string
	CreateItem(ctx context.Context, name string) (*domain.Item, error)
	CastVote(ctx context.Context, itemID string) (*domain.Vote, error)
	Voting(itemID string) bool
}

type SessionRegistry interface {
	Session(participantID string) VotingSession
}

type AuditService interface {
	AuditVoteCounts(ctx context.Context) ([]domain.CountMismatch, error)
}
