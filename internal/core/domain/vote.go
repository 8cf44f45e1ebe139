package domain

import (
	"fmt"
	"time"
)

type Vote struct {
	ItemID  string    `json:"item_id"`
	VoterID string    `json:"voter_id"`
	CastAt  time.Time `json:"cast_at"`
}

func (v Vote) Validate() error {
	if v.ItemID == "" || v.VoterID == "" {
		return fmt.Errorf("%w: vote without key", ErrSchema)
	}
	if v.CastAt.IsZero() {
		return fmt.Errorf("%w: vote %s/%s has no cast time", ErrSchema, v.ItemID, v.VoterID)
	}
	return nil
}
