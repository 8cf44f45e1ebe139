package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxItemNameLength = 100

type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creator_id"`
	VoteCount int64     `json:"vote_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Ranks reports whether a sorts before b in the live list: more votes
// first, newer items first among equal counts, id as the last resort.
func Ranks(a, b Item) bool {
	if a.VoteCount != b.VoteCount {
		return a.VoteCount > b.VoteCount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// NormalizeItemName trims the name and checks the length rules.
func NormalizeItemName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if utf8.RuneCountInString(trimmed) > MaxItemNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrValidation, MaxItemNameLength)
	}
	return trimmed, nil
}

// Validate checks an item decoded from the store.
func (i Item) Validate() error {
	switch {
	case i.ID == "":
		return fmt.Errorf("%w: item without id", ErrSchema)
	case strings.TrimSpace(i.Name) == "":
		return fmt.Errorf("%w: item %s has an empty name", ErrSchema, i.ID)
	case i.VoteCount < 0:
		return fmt.Errorf("%w: item %s has a negative vote count", ErrSchema, i.ID)
	case i.CreatedAt.IsZero():
		return fmt.Errorf("%w: item %s has no creation time", ErrSchema, i.ID)
	}
	return nil
}

// Snapshot is a complete ordered materialization of the item list.
// Versions increase monotonically per subscription.
type Snapshot struct {
	Version uint64 `json:"version"`
	Items   []Item `json:"items"`
}
