package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tyler-smith/go-bip39"

	"github.com/sand/wallet-transactions/backend/internal/blockchains"
	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

const mnemonicEntropyBits = 256

var _ ports.AccountsService = (*Accounts)(nil)

// AccountIndexAllocator hands out account indexes that are never reused.
type AccountIndexAllocator interface {
	NextAccountIndex(ctx context.Context) (int, error)
}

// networkServer is implemented by adapters bound to a single network.
type networkServer interface {
	Network() string
}

// Accounts imports wallets into storage.
type Accounts struct {
	logger  *slog.Logger
	router  *AccountRouter
	storage ports.Storage
	indexes AccountIndexAllocator

	scryptN int
	scryptP int
}

func NewAccounts(logger *slog.Logger, router *AccountRouter, storage ports.Storage, indexes AccountIndexAllocator, scryptN, scryptP int) *Accounts {
	return &Accounts{
		logger:  logger,
		router:  router,
		storage: storage,
		indexes: indexes,
		scryptN: scryptN,
		scryptP: scryptP,
	}
}

// GenerateMnemonic returns a new 24 word seed phrase.
func (a *Accounts) GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	return bip39.NewMnemonic(entropy)
}

// ImportMnemonic stores a new account of the given chain derived from the mnemonic.
func (a *Accounts) ImportMnemonic(
	ctx context.Context,
	blockchain entities.BlockchainKey,
	network, mnemonic, password string,
) (*entities.Account, error) {
	mnemonic = blockchains.NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, entities.ErrInvalidMnemonic
	}

	adapter, ok := a.router.Adapter(blockchain)
	if !ok {
		return nil, fmt.Errorf("%w: unknown blockchain %q", entities.ErrUnresolvableAccount, blockchain)
	}

	if served, ok := adapter.(networkServer); ok {
		if network == "" {
			network = served.Network()
		}
		if network != served.Network() {
			return nil, fmt.Errorf("%w: %s node serves %s, not %s", entities.ErrUnresolvableAccount, blockchain, served.Network(), network)
		}
	}

	deriver, ok := adapter.(ports.AddressDeriver)
	if !ok {
		return nil, fmt.Errorf("blockchain %q can't derive addresses", blockchain)
	}

	address, err := deriver.AddressFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to derive address: %w", err)
	}

	encrypted, err := blockchains.EncryptMnemonic(mnemonic, password, a.scryptN, a.scryptP)
	if err != nil {
		return nil, err
	}

	index, err := a.indexes.NextAccountIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate account index: %w", err)
	}

	account := &entities.Account{
		ID: BuildAccountID(AccountRef{
			Index:      index,
			Blockchain: blockchain,
			Network:    network,
		}),
		Blockchain:        blockchain,
		Network:           network,
		Address:           address,
		EncryptedMnemonic: encrypted,
		CreatedAt:         time.Now().UTC(),
	}

	if err = a.storage.InsertAccount(ctx, account); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "Account imported",
		"account_id", account.ID,
		"blockchain", blockchain,
		"network", network,
		"address", address)

	return account, nil
}
