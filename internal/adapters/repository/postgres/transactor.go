package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

// SQLSTATE codes that mean another transaction won the race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

type transactor struct {
	db     *sql.DB
	policy ports.RetryPolicy
}

func NewTransactor(db *sql.DB, policy ports.RetryPolicy) ports.Transactor {
	return &transactor{
		db:     db,
		policy: policy,
	}
}

// RunTransaction runs fn in a SERIALIZABLE transaction. Serialization
// failures and duplicate vote keys are retried per the policy.
func (t *transactor) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	return t.policy.Run(ctx, func(ctx context.Context, _ int) error {
		tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return classify(fmt.Errorf("failed to begin transaction: %w", err))
		}
		defer tx.Rollback()

		if err := fn(ctx, &pgTx{tx: tx}); err != nil {
			return classify(err)
		}

		if err := tx.Commit(); err != nil {
			return classify(fmt.Errorf("failed to commit transaction: %w", err))
		}
		return nil
	})
}

func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%w: %w", ports.ErrConflict, err)
		}
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetVote(ctx context.Context, itemID, voterID string) (*domain.Vote, bool, error) {
	query := `SELECT item_id, voter_id, cast_at FROM votes WHERE item_id = $1 AND voter_id = $2`

	var vote domain.Vote
	err := t.tx.QueryRowContext(ctx, query, itemID, voterID).Scan(&vote.ItemID, &vote.VoterID, &vote.CastAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to check existing vote: %w", err)
	}
	vote.CastAt = vote.CastAt.UTC()
	return &vote, true, nil
}

func (t *pgTx) GetItem(ctx context.Context, itemID string) (*domain.Item, bool, error) {
	query := `SELECT id, name, creator_id, vote_count, created_at FROM items WHERE id = $1`

	var item domain.Item
	err := t.tx.QueryRowContext(ctx, query, itemID).Scan(&item.ID, &item.Name, &item.CreatorID, &item.VoteCount, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get item: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	if err := item.Validate(); err != nil {
		return nil, false, err
	}
	return &item, true, nil
}

// CreateVote stamps the vote with NOW(), which is the transaction start
// time on the server.
func (t *pgTx) CreateVote(ctx context.Context, itemID, voterID string) (*domain.Vote, error) {
	query := `
		INSERT INTO votes (item_id, voter_id)
		VALUES ($1, $2)
		RETURNING cast_at
	`
	vote := domain.Vote{ItemID: itemID, VoterID: voterID}
	if err := t.tx.QueryRowContext(ctx, query, itemID, voterID).Scan(&vote.CastAt); err != nil {
		return nil, fmt.Errorf("failed to insert vote: %w", err)
	}
	vote.CastAt = vote.CastAt.UTC()
	return &vote, nil
}

func (t *pgTx) SetVoteCount(ctx context.Context, itemID string, count int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE items SET vote_count = $2 WHERE id = $1`, itemID, count)
	if err != nil {
		return fmt.Errorf("failed to update vote count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}
