package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sand/wallet-transactions/backend/internal/entities"
	"github.com/sand/wallet-transactions/backend/pkg/database"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var accountColumns = []string{"id", "blockchain", "network", "address", "encrypted_mnemonic", "created_at"}

// AccountsRepository stores imported accounts.
type AccountsRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewAccountsRepository(logger *slog.Logger, pg *database.Postgres) *AccountsRepository {
	return &AccountsRepository{
		logger: logger,
		db:     pg.DBGetter,
	}
}

// GetAccount returns nil when the account doesn't exist.
func (r *AccountsRepository) GetAccount(ctx context.Context, accountID string) (*entities.Account, error) {
	query, args, err := psql.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build account query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	account, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[entities.Account])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect account row: %w", err)
	}

	return account, nil
}

// ListAccounts returns every account of the chain, oldest first.
func (r *AccountsRepository) ListAccounts(ctx context.Context, blockchain entities.BlockchainKey) ([]entities.Account, error) {
	query, args, err := psql.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"blockchain": blockchain}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build accounts query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	accounts, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Account])
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to collect accounts rows", "error", err)
		return nil, err
	}

	return accounts, nil
}

func (r *AccountsRepository) InsertAccount(ctx context.Context, account *entities.Account) error {
	query, args, err := psql.Insert("accounts").
		Columns(accountColumns...).
		Values(account.ID, account.Blockchain, account.Network, account.Address, account.EncryptedMnemonic, account.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build account insert: %w", err)
	}

	if _, err = r.db(ctx).Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s on %s", entities.ErrAccountExists, account.Address, account.Network)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// NextAccountIndex draws the next value of the account index sequence.
func (r *AccountsRepository) NextAccountIndex(ctx context.Context) (int, error) {
	var index int
	if err := r.db(ctx).QueryRow(ctx, "SELECT nextval('account_index_seq')").Scan(&index); err != nil {
		return 0, fmt.Errorf("failed to allocate account index: %w", err)
	}
	return index, nil
}
