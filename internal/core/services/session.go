package services

import (
	"context"
	"strings"
	"sync"

	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

// trackerSource hands out the in-flight tracker of a participant. acquire
// and release bracket one vote submission.
type trackerSource interface {
	acquire(participantID string) *VoteTracker
	release(participantID string)
	peek(participantID string) *VoteTracker
}

type Session struct {
	participantID string
	items         ports.ItemService
	votes         ports.VoteService
	trackers      trackerSource
}

// NewSession builds a standalone session with its own tracker.
func NewSession(participantID string, items ports.ItemService, votes ports.VoteService) *Session {
	return &Session{
		participantID: participantID,
		items:         items,
		votes:         votes,
		trackers:      ownTracker{tracker: NewVoteTracker()},
	}
}

func (s *Session) ParticipantID() string {
	return s.participantID
}

// Tracker returns the participant's tracker, or nil when the session
// belongs to a registry and no vote is outstanding.
func (s *Session) Tracker() *VoteTracker {
	return s.trackers.peek(s.participantID)
}

func (s *Session) CreateItem(ctx context.Context, name string) (*domain.Item, error) {
	return s.items.CreateItem(ctx, name, s.participantID)
}

// CastVote refuses a second submission for the same item while the first
// one is unresolved. The flag is cleared however the call ends.
func (s *Session) CastVote(ctx context.Context, itemID string) (*domain.Vote, error) {
	itemID = strings.TrimSpace(itemID)
	tracker := s.trackers.acquire(s.participantID)
	defer s.trackers.release(s.participantID)

	if !tracker.Begin(itemID) {
		return nil, domain.ErrVoteInProgress
	}
	defer tracker.End(itemID)

	return s.votes.CastVote(ctx, itemID, s.participantID)
}

func (s *Session) Voting(itemID string) bool {
	tracker := s.trackers.peek(s.participantID)
	return tracker != nil && tracker.InFlight(itemID)
}

type ownTracker struct {
	tracker *VoteTracker
}

func (o ownTracker) acquire(string) *VoteTracker {
	return o.tracker
}

func (o ownTracker) release(string) {}

func (o ownTracker) peek(string) *VoteTracker {
	return o.tracker
}

type trackedVotes struct {
	tracker *VoteTracker
	refs    int
}

// Sessions hands out session handles per participant id. A participant's
// tracker is held only while at least one of its votes is outstanding,
// so reads and finished votes leave nothing behind.
type Sessions struct {
	items ports.ItemService
	votes ports.VoteService

	mu       sync.Mutex
	trackers map[string]*trackedVotes
}

func NewSessions(items ports.ItemService, votes ports.VoteService) *Sessions {
	return &Sessions{
		items:    items,
		votes:    votes,
		trackers: make(map[string]*trackedVotes),
	}
}

func (r *Sessions) Session(participantID string) ports.VotingSession {
	return &Session{
		participantID: participantID,
		items:         r.items,
		votes:         r.votes,
		trackers:      r,
	}
}

// Active reports how many participants have a vote outstanding.
func (r *Sessions) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

func (r *Sessions) acquire(participantID string) *VoteTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.trackers[participantID]
	if !ok {
		entry = &trackedVotes{tracker: NewVoteTracker()}
		r.trackers[participantID] = entry
	}
	entry.refs++
	return entry.tracker
}

func (r *Sessions) release(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.trackers[participantID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(r.trackers, participantID)
	}
}

func (r *Sessions) peek(participantID string) *VoteTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.trackers[participantID]; ok {
		return entry.tracker
	}
	return nil
}
