package repository

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/wallet-transactions/backend/internal/entities"
	"github.com/sand/wallet-transactions/backend/pkg/database"
)

var transactionColumns = []string{
	"tx_id", "slug", "timestamp", "amount", "from_address", "to_address", "comment", "fee", "is_incoming",
}

// TransactionsRepository stores the history of accounts whose chain is scanned by us.
type TransactionsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewTransactionsRepository(logger *slog.Logger, pg *database.Postgres) *TransactionsRepository {
	return &TransactionsRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
	}
}

// SaveTransactions records txs of the account, skipping those already known.
func (r *TransactionsRepository) SaveTransactions(ctx context.Context, accountID string, txs []entities.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	insert := psql.Insert("account_transactions").
		Columns(append([]string{"account_id"}, transactionColumns...)...).
		Suffix("ON CONFLICT (account_id, tx_id, slug) DO NOTHING")

	for _, t := range txs {
		insert = insert.Values(accountID, t.TxID, t.Slug, t.Timestamp, t.Amount, t.FromAddress, t.ToAddress, t.Comment, t.Fee, t.IsIncoming)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build transactions insert: %w", err)
	}

	return r.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		tag, err := r.db(txCtx).Exec(txCtx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}

		r.logger.DebugContext(ctx, "Transactions recorded",
			"account_id", accountID,
			"received", len(txs),
			"inserted", tag.RowsAffected())

		return nil
	})
}

// FindTransactions returns a page of the account's history, newest first.
// Cursors are transaction ids; an unknown cursor yields an empty page.
func (r *TransactionsRepository) FindTransactions(ctx context.Context, q entities.TransactionQuery) ([]entities.Transaction, error) {
	builder := psql.Select(transactionColumns...).
		From("account_transactions").
		Where(sq.Eq{"account_id": q.AccountID}).
		OrderBy("timestamp DESC", "tx_id DESC")

	if q.Slug != "" {
		builder = builder.Where(sq.Eq{"slug": q.Slug})
	}
	if q.BeforeTxID != "" {
		builder = builder.Where(cursorExpr("<", q.AccountID, q.BeforeTxID))
	}
	if q.AfterTxID != "" {
		builder = builder.Where(cursorExpr(">", q.AccountID, q.AfterTxID))
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build transactions query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	transactions, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Transaction])
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to collect transactions rows", "error", err)
		return nil, err
	}

	return transactions, nil
}

func cursorExpr(op, accountID, txID string) sq.Sqlizer {
	return sq.Expr(
		"(timestamp, tx_id) "+op+" (SELECT timestamp, tx_id FROM account_transactions WHERE account_id = ? AND tx_id = ? LIMIT 1)",
		accountID, txID,
	)
}
