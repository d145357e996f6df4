package svm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sand/wallet-transactions/backend/internal/blockchains"
	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
	"github.com/sand/wallet-transactions/backend/internal/shared"
)

const (
	NativeSlug = "sol"
	USDTSlug   = "solana-usdt"

	USDTMintAddress = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

	// Fee of a transaction with a single signature.
	signatureFee = 5000
	// Rent exempt minimum of an SPL token account.
	tokenAccountRent = 2039280
)

// Client is the part of rpc.Client the adapter uses.
type Client interface {
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// Token is an SPL token the adapter can move.
type Token struct {
	Slug     string
	Symbol   string
	Mint     solana.PublicKey
	Decimals uint8
}

// NetworkName returns the cluster served by the configured RPC endpoint.
func NetworkName() string {
	return shared.NetworkName("mainnet", "devnet")
}

func DefaultTokens() []Token {
	return []Token{{
		Slug:     USDTSlug,
		Symbol:   "USDT",
		Mint:     solana.MustPublicKeyFromBase58(USDTMintAddress),
		Decimals: 6,
	}}
}

var _ ports.BlockchainAdapter = (*Adapter)(nil)
var _ ports.AddressDeriver = (*Adapter)(nil)

// Adapter implements account and transaction operations on Solana.
// History is read from the node, not from storage.
type Adapter struct {
	logger  *slog.Logger
	client  Client
	network string

	tokens     map[string]Token
	commitment rpc.CommitmentType
}

func NewAdapter(logger *slog.Logger, client Client, network string, tokens []Token) *Adapter {
	bySlug := make(map[string]Token, len(tokens))
	for _, token := range tokens {
		bySlug[token.Slug] = token
	}

	return &Adapter{
		logger:     logger,
		client:     client,
		network:    network,
		tokens:     bySlug,
		commitment: rpc.CommitmentConfirmed,
	}
}

func (a *Adapter) Slugs() []string {
	slugs := make([]string, 0, len(a.tokens)+1)
	slugs = append(slugs, NativeSlug)
	for slug := range a.tokens {
		slugs = append(slugs, slug)
	}
	return slugs
}

// Network is the network served by the adapter's node.
func (a *Adapter) Network() string {
	return a.network
}

func (a *Adapter) FetchAddress(ctx context.Context, storage ports.Storage, accountID string) (string, error) {
	account, err := a.loadAccount(ctx, storage, accountID)
	if err != nil {
		return "", err
	}
	return account.Address, nil
}

func (a *Adapter) AddressFromMnemonic(mnemonic string) (string, error) {
	key, err := DeriveKey(mnemonic)
	if err != nil {
		return "", err
	}
	return key.PublicKey().String(), nil
}

func (a *Adapter) GetAccountTransactionSlice(ctx context.Context, storage ports.Storage, accountID string) ([]entities.Transaction, error) {
	return a.GetMergedTransactionSlice(ctx, storage, accountID, nil, ports.DefaultSliceLimit)
}

func (a *Adapter) GetTokenTransactionSlice(
	ctx context.Context,
	storage ports.Storage,
	accountID, slug, beforeTxID, afterTxID string,
	limit int,
) ([]entities.Transaction, error) {
	account, err := a.loadAccount(ctx, storage, accountID)
	if err != nil {
		return nil, err
	}

	owner, err := solana.PublicKeyFromBase58(account.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid account address %s: %w", account.Address, err)
	}

	_, native, ok := a.asset(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrUnsupportedToken, slug)
	}

	return a.history(ctx, owner, slug, native, beforeTxID, afterTxID, blockchains.ClampLimit(limit))
}

func (a *Adapter) GetMergedTransactionSlice(
	ctx context.Context,
	storage ports.Storage,
	accountID string,
	lastTxIDs entities.TxIDBySlug,
	limit int,
) ([]entities.Transaction, error) {
	return blockchains.MergeTransactionSlices(ctx, lastTxIDs, a.Slugs(), limit,
		func(ctx context.Context, slug, beforeTxID string, limit int) ([]entities.Transaction, error) {
			return a.GetTokenTransactionSlice(ctx, storage, accountID, slug, beforeTxID, "", limit)
		})
}

func (a *Adapter) loadAccount(ctx context.Context, storage ports.Storage, accountID string) (*entities.Account, error) {
	account, err := storage.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrAccountNotFound, accountID)
	}
	if account.Blockchain != entities.BlockchainSolana {
		return nil, fmt.Errorf("%w: account %s is on %s", entities.ErrUnresolvableAccount, accountID, account.Blockchain)
	}
	if account.Network != a.network {
		return nil, fmt.Errorf("account %s is on %s, node serves %s", accountID, account.Network, a.network)
	}
	return account, nil
}

func (a *Adapter) asset(slug string) (token Token, native bool, ok bool) {
	if slug == NativeSlug {
		return Token{}, true, true
	}
	token, ok = a.tokens[slug]
	return token, false, ok
}
