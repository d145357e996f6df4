package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

const (
	DefaultCompletionTimeout = 10 * time.Minute
	defaultFee               = "0"
)

var _ ports.TransactionsService = (*Transactions)(nil)

// Transactions dispatches transaction operations to the adapter of the account's chain.
type Transactions struct {
	logger *slog.Logger

	router   *AccountRouter
	storage  ports.Storage
	onUpdate ports.UpdatePublisher
	watcher  ports.CompletionWatcher
	builder  ports.LocalTransactionBuilder

	completionTimeout time.Duration

	// Lifetime of detached completion watches.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTransactions creates the transaction service. Storage and the update
// publisher are required: there is no way to use the service without them.
func NewTransactions(
	logger *slog.Logger,
	router *AccountRouter,
	storage ports.Storage,
	onUpdate ports.UpdatePublisher,
	watcher ports.CompletionWatcher,
	builder ports.LocalTransactionBuilder,
	completionTimeout time.Duration,
) (*Transactions, error) {
	switch {
	case router == nil:
		return nil, errors.New("transactions: account router is required")
	case storage == nil:
		return nil, errors.New("transactions: storage is required")
	case onUpdate == nil:
		return nil, errors.New("transactions: update publisher is required")
	case watcher == nil:
		return nil, errors.New("transactions: completion watcher is required")
	case builder == nil:
		return nil, errors.New("transactions: local transaction builder is required")
	}

	if completionTimeout <= 0 {
		completionTimeout = DefaultCompletionTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Transactions{
		logger:            logger,
		router:            router,
		storage:           storage,
		onUpdate:          onUpdate,
		watcher:           watcher,
		builder:           builder,
		completionTimeout: completionTimeout,
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// FetchTransactions returns the account's transaction slice as the adapter pages it.
func (t *Transactions) FetchTransactions(ctx context.Context, accountID string) ([]entities.Transaction, error) {
	adapter, err := t.router.Resolve(accountID)
	if err != nil {
		return nil, err
	}

	return adapter.GetAccountTransactionSlice(ctx, t.storage, accountID)
}

// FetchTokenTransactionSlice returns up to limit transactions of one asset older than beforeTxID.
func (t *Transactions) FetchTokenTransactionSlice(ctx context.Context, accountID, slug, beforeTxID string, limit int) ([]entities.Transaction, error) {
	adapter, err := t.router.Resolve(accountID)
	if err != nil {
		return nil, err
	}

	return adapter.GetTokenTransactionSlice(ctx, t.storage, accountID, slug, beforeTxID, "", limit)
}

// FetchAllTransactionSlice returns a page merged across assets, each asset paged from its own cursor.
func (t *Transactions) FetchAllTransactionSlice(ctx context.Context, accountID string, lastTxIDs entities.TxIDBySlug, limit int) ([]entities.Transaction, error) {
	adapter, err := t.router.Resolve(accountID)
	if err != nil {
		return nil, err
	}

	return adapter.GetMergedTransactionSlice(ctx, t.storage, accountID, lastTxIDs, limit)
}

// CheckTransactionDraft asks the adapter whether the transfer could be sent.
func (t *Transactions) CheckTransactionDraft(ctx context.Context, accountID, slug, toAddress, amount, comment string) (*entities.DraftCheckResult, error) {
	adapter, err := t.router.Resolve(accountID)
	if err != nil {
		return nil, err
	}

	return adapter.CheckTransactionDraft(ctx, t.storage, accountID, slug, toAddress, amount, comment)
}

// SubmitTransfer sends a transfer and returns the id of its local transaction.
// ok is false when the adapter declined the transfer; nothing is published then.
func (t *Transactions) SubmitTransfer(
	ctx context.Context,
	accountID, password, slug, toAddress, amount, comment, fee string,
) (string, bool, error) {
	adapter, err := t.router.Resolve(accountID)
	if err != nil {
		return "", false, err
	}

	fromAddress, err := adapter.FetchAddress(ctx, t.storage, accountID)
	if err != nil {
		return "", false, err
	}

	result, err := adapter.SubmitTransfer(ctx, t.storage, accountID, password, slug, toAddress, amount, comment)
	if err != nil {
		return "", false, err
	}

	if result == nil {
		t.logger.InfoContext(ctx, "Transfer declined by adapter",
			"account_id", accountID,
			"slug", slug,
			"to", toAddress)
		return "", false, nil
	}

	if fee == "" {
		fee = defaultFee
	}

	localTransaction := t.builder.BuildLocalTransaction(entities.LocalTransactionParams{
		Slug:        slug,
		Amount:      amount,
		FromAddress: fromAddress,
		ToAddress:   toAddress,
		Comment:     comment,
		Fee:         fee,
	})

	t.onUpdate.Publish(entities.NewLocalTransactionUpdate{
		Type:        entities.UpdateTypeNewLocalTransaction,
		AccountID:   accountID,
		Transaction: localTransaction,
	})

	t.logger.InfoContext(ctx, "Transfer submitted",
		"account_id", accountID,
		"slug", slug,
		"from", fromAddress,
		"to", toAddress,
		"amount", amount,
		"tx_hash", result.TxHash,
		"local_tx_id", localTransaction.TxID)

	t.watchCompletion(accountID, toAddress, amount, result, localTransaction.TxID)

	return localTransaction.TxID, true, nil
}

// watchCompletion publishes updateTxComplete once the watcher sees the transfer on chain.
func (t *Transactions) watchCompletion(accountID, toAddress, amount string, result *entities.SubmitTransferResult, localTxID string) {
	t.wg.Add(1)

	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(WithTransferOrigin(t.ctx, accountID, result.TxHash), t.completionTimeout)
		defer cancel()

		startTime := time.Now()

		txID, err := t.watcher.WhenTxComplete(ctx, result.ResolvedAddress, result.Amount)
		if err != nil {
			t.logger.Warn("Transaction completion watch ended without result",
				"account_id", accountID,
				"local_tx_id", localTxID,
				"resolved_address", result.ResolvedAddress,
				"error", err,
				"duration", time.Since(startTime).String())
			return
		}

		t.onUpdate.Publish(entities.TxCompleteUpdate{
			Type:      entities.UpdateTypeTxComplete,
			AccountID: accountID,
			ToAddress: toAddress,
			Amount:    amount,
			TxID:      txID,
			LocalTxID: localTxID,
		})

		t.logger.Info("Transaction complete",
			"account_id", accountID,
			"tx_id", txID,
			"local_tx_id", localTxID,
			"duration", time.Since(startTime).String())
	}()
}

// Close cancels pending completion watches and waits for them to return.
func (t *Transactions) Close() {
	t.cancel()
	t.wg.Wait()
}
