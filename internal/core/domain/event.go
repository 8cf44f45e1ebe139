package domain

import "time"

type EventType string

const (
	EventItemCreated EventType = "item_created"
	EventVoteCast    EventType = "vote_cast"
)

// Event records a committed write. Events are emitted after the store
// accepted the write and never take part in the transaction.
type Event struct {
	Type          EventType `json:"type"`
	ItemID        string    `json:"item_id"`
	ParticipantID string    `json:"participant_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}
