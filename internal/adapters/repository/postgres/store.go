package postgres

import (
	"database/sql"
	"log/slog"

	"github.com/vncsmyrnk/places/internal/core/ports"
)

type store struct {
	ports.ItemRepository
	ports.Transactor
}

// NewStore combines the item repository and the transactor over one pool.
func NewStore(db *sql.DB, dsn string, policy ports.RetryPolicy, logger *slog.Logger) ports.Store {
	return &store{
		ItemRepository: NewItemRepository(db, dsn, logger),
		Transactor:     NewTransactor(db, policy),
	}
}
