package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vncsmyrnk/places/internal/core/ports"
)

// A single statement reads the counter and the vote rows from one
// snapshot, even under READ COMMITTED.
const tallyQuery = `
SELECT i.vote_count, (SELECT COUNT(*) FROM votes v WHERE v.item_id = i.id)
FROM items i
WHERE i.id = $1`

type voteLedger struct {
	db *sql.DB
}

func NewVoteLedger(db *sql.DB) ports.VoteLedger {
	return &voteLedger{db: db}
}

func (l *voteLedger) ItemIDs(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item ids: %w", err)
	}
	return ids, nil
}

func (l *voteLedger) Tally(ctx context.Context, itemID string) (ports.ItemTally, bool, error) {
	tally := ports.ItemTally{ItemID: itemID}
	err := l.db.QueryRowContext(ctx, tallyQuery, itemID).Scan(&tally.Stored, &tally.Counted)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ItemTally{}, false, nil
	}
	if err != nil {
		return ports.ItemTally{}, false, fmt.Errorf("failed to tally votes: %w", err)
	}
	return tally, true, nil
}
