package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/wallet-transactions/backend/internal/entities"
	"github.com/sand/wallet-transactions/backend/pkg/database"
)

// ScanCursorsRepository remembers the last block a chain scanner processed.
type ScanCursorsRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewScanCursorsRepository(logger *slog.Logger, pg *database.Postgres) *ScanCursorsRepository {
	return &ScanCursorsRepository{
		logger: logger,
		db:     pg.DBGetter,
	}
}

// LastScannedBlock returns false when the chain was never scanned.
func (r *ScanCursorsRepository) LastScannedBlock(ctx context.Context, blockchain entities.BlockchainKey, network string) (uint64, bool, error) {
	query, args, err := psql.Select("last_block").
		From("scan_cursors").
		Where(sq.Eq{"blockchain": blockchain, "network": network}).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("failed to build scan cursor query: %w", err)
	}

	var block int64
	err = r.db(ctx).QueryRow(ctx, query, args...).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query scan cursor: %w", err)
	}

	return uint64(block), true, nil
}

func (r *ScanCursorsRepository) SaveLastScannedBlock(ctx context.Context, blockchain entities.BlockchainKey, network string, block uint64) error {
	query, args, err := psql.Insert("scan_cursors").
		Columns("blockchain", "network", "last_block").
		Values(blockchain, network, int64(block)).
		Suffix("ON CONFLICT (blockchain, network) DO UPDATE SET last_block = EXCLUDED.last_block").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build scan cursor upsert: %w", err)
	}

	if _, err = r.db(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save scan cursor: %w", err)
	}

	return nil
}
