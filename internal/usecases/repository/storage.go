package repository

import (
	"log/slog"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/pkg/database"
)

var _ ports.Storage = (*Storage)(nil)

// Storage is the Postgres backed storage handle given to chain adapters.
type Storage struct {
	*AccountsRepository
	*TransactionsRepository
}

func NewStorage(logger *slog.Logger, pg *database.Postgres) *Storage {
	return &Storage{
		AccountsRepository:     NewAccountsRepository(logger, pg),
		TransactionsRepository: NewTransactionsRepository(logger, pg),
	}
}
