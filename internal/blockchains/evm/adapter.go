package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sand/wallet-transactions/backend/internal/blockchains"
	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
	"github.com/sand/wallet-transactions/backend/internal/shared"
)

const (
	NativeSlug = "bnb"
	USDTSlug   = "bsc-usdt"

	MainnetUSDTContractAddress = "0x55d398326f99059fF775485246999027B3197955" // USDT BEP-20
	TestnetUSDTContractAddress = "0x337610d27c682E347C9cD60BD4b3b107C9d34dDd" // USDT BEP-20 testnet

	erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`
)

// Client is the part of ethclient.Client the adapter uses.
type Client interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Token is an ERC-20 asset the adapter can move.
type Token struct {
	Slug     string
	Symbol   string
	Contract common.Address
	Decimals uint8
}

// NetworkName returns the network served by the configured RPC endpoint.
func NetworkName() string {
	return shared.NetworkName("mainnet", "testnet")
}

// DefaultTokens returns the tokens known on the network.
func DefaultTokens(network string) []Token {
	contract := MainnetUSDTContractAddress
	if network == "testnet" {
		contract = TestnetUSDTContractAddress
	}

	return []Token{{
		Slug:     USDTSlug,
		Symbol:   "USDT",
		Contract: common.HexToAddress(contract),
		Decimals: 18,
	}}
}

var _ ports.BlockchainAdapter = (*Adapter)(nil)
var _ ports.AddressDeriver = (*Adapter)(nil)

// Adapter implements account and transaction operations on BNB Smart Chain.
type Adapter struct {
	logger  *slog.Logger
	client  Client
	network string

	tokens       map[string]Token
	erc20        abi.ABI
	derivePath   []uint32
	gasBufferPct uint64
}

func NewAdapter(logger *slog.Logger, client Client, network string, tokens []Token) (*Adapter, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}

	bySlug := make(map[string]Token, len(tokens))
	for _, token := range tokens {
		bySlug[token.Slug] = token
	}

	return &Adapter{
		logger:       logger,
		client:       client,
		network:      network,
		tokens:       bySlug,
		erc20:        parsed,
		derivePath:   DefaultDerivationPath(),
		gasBufferPct: 20,
	}, nil
}

// Slugs lists the native slug and every token slug.
func (a *Adapter) Slugs() []string {
	slugs := make([]string, 0, len(a.tokens)+1)
	slugs = append(slugs, NativeSlug)
	for slug := range a.tokens {
		slugs = append(slugs, slug)
	}
	return slugs
}

// TokenByContract finds a known token by its contract address.
func (a *Adapter) TokenByContract(contract common.Address) (Token, bool) {
	for _, token := range a.tokens {
		if token.Contract == contract {
			return token, true
		}
	}
	return Token{}, false
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
	_, address, err := DeriveKey(mnemonic, a.derivePath)
	if err != nil {
		return "", err
	}
	return address.Hex(), nil
}

func (a *Adapter) GetAccountTransactionSlice(ctx context.Context, storage ports.Storage, accountID string) ([]entities.Transaction, error) {
	return storage.FindTransactions(ctx, entities.TransactionQuery{
		AccountID: accountID,
		Limit:     ports.DefaultSliceLimit,
	})
}

func (a *Adapter) GetTokenTransactionSlice(
	ctx context.Context,
	storage ports.Storage,
	accountID, slug, beforeTxID, afterTxID string,
	limit int,
) ([]entities.Transaction, error) {
	if _, _, ok := a.asset(slug); !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrUnsupportedToken, slug)
	}

	return storage.FindTransactions(ctx, entities.TransactionQuery{
		AccountID:  accountID,
		Slug:       slug,
		BeforeTxID: beforeTxID,
		AfterTxID:  afterTxID,
		Limit:      blockchains.ClampLimit(limit),
	})
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
	if account.Blockchain != entities.BlockchainBSC {
		return nil, fmt.Errorf("%w: account %s is on %s", entities.ErrUnresolvableAccount, accountID, account.Blockchain)
	}
	if account.Network != a.network {
		return nil, fmt.Errorf("account %s is on %s, node serves %s", accountID, account.Network, a.network)
	}
	return account, nil
}

// asset returns the token for slug; native is true for the chain coin.
func (a *Adapter) asset(slug string) (token Token, native bool, ok bool) {
	if slug == NativeSlug {
		return Token{}, true, true
	}
	token, ok = a.tokens[slug]
	return token, false, ok
}

func (a *Adapter) tokenBalance(ctx context.Context, token Token, owner common.Address) (*big.Int, error) {
	data, err := a.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &token.Contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	values, err := a.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty balanceOf result for %s", token.Slug)
	}

	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}

	return balance, nil
}
