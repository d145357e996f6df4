package ports

import (
	"context"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// Storage is the persistence handle passed to every adapter call.
type Storage interface {
	GetAccount(ctx context.Context, accountID string) (*entities.Account, error)
	ListAccounts(ctx context.Context, blockchain entities.BlockchainKey) ([]entities.Account, error)
	InsertAccount(ctx context.Context, account *entities.Account) error
	SaveTransactions(ctx context.Context, accountID string, txs []entities.Transaction) error
	FindTransactions(ctx context.Context, query entities.TransactionQuery) ([]entities.Transaction, error)
}

// BlockchainAdapter is the chain specific implementation of account and transaction operations.
type BlockchainAdapter interface {
	GetAccountTransactionSlice(ctx context.Context, storage Storage, accountID string) ([]entities.Transaction, error)
	GetTokenTransactionSlice(ctx context.Context, storage Storage, accountID, slug, beforeTxID, afterTxID string, limit int) ([]entities.Transaction, error)
	GetMergedTransactionSlice(ctx context.Context, storage Storage, accountID string, lastTxIDs entities.TxIDBySlug, limit int) ([]entities.Transaction, error)
	CheckTransactionDraft(ctx context.Context, storage Storage, accountID, slug, toAddress, amount, comment string) (*entities.DraftCheckResult, error)
	FetchAddress(ctx context.Context, storage Storage, accountID string) (string, error)
	SubmitTransfer(ctx context.Context, storage Storage, accountID, password, slug, toAddress, amount, comment string) (*entities.SubmitTransferResult, error)
}

// AddressDeriver is implemented by adapters able to derive an account address from a mnemonic.
type AddressDeriver interface {
	AddressFromMnemonic(mnemonic string) (string, error)
}

// CompletionWatcher resolves once a transfer to address of amount is seen on chain.
type CompletionWatcher interface {
	WhenTxComplete(ctx context.Context, address, amount string) (string, error)
}

// LocalTransactionBuilder assigns a fresh local id to an optimistic transaction.
type LocalTransactionBuilder interface {
	BuildLocalTransaction(params entities.LocalTransactionParams) *entities.LocalTransaction
}

// UpdatePublisher is the single subscriber of asynchronous updates.
type UpdatePublisher interface {
	Publish(update entities.Update)
}

// OnUpdate adapts a plain function to UpdatePublisher.
type OnUpdate func(update entities.Update)

func (f OnUpdate) Publish(update entities.Update) { f(update) }

// TransactionsService is what the HTTP layer needs from the transaction facade.
type TransactionsService interface {
	FetchTransactions(ctx context.Context, accountID string) ([]entities.Transaction, error)
	FetchTokenTransactionSlice(ctx context.Context, accountID, slug, beforeTxID string, limit int) ([]entities.Transaction, error)
	FetchAllTransactionSlice(ctx context.Context, accountID string, lastTxIDs entities.TxIDBySlug, limit int) ([]entities.Transaction, error)
	CheckTransactionDraft(ctx context.Context, accountID, slug, toAddress, amount, comment string) (*entities.DraftCheckResult, error)
	SubmitTransfer(ctx context.Context, accountID, password, slug, toAddress, amount, comment, fee string) (string, bool, error)
}

// AccountsService defines the interface for account onboarding.
type AccountsService interface {
	GenerateMnemonic() (string, error)
	ImportMnemonic(ctx context.Context, blockchain entities.BlockchainKey, network, mnemonic, password string) (*entities.Account, error)
}
