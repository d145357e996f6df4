package workers

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sand/wallet-transactions/backend/internal/blockchains/evm"
	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// BSCClient is the part of ethclient.Client the scanner uses.
type BSCClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ScanCursorStore persists the last fully scanned block.
type ScanCursorStore interface {
	LastScannedBlock(ctx context.Context, blockchain entities.BlockchainKey, network string) (uint64, bool, error)
	SaveLastScannedBlock(ctx context.Context, blockchain entities.BlockchainKey, network string, block uint64) error
}

// TokenResolver maps a contract address to a known token.
type TokenResolver interface {
	TokenByContract(contract common.Address) (evm.Token, bool)
}

type BSCScannerOptions struct {
	Network               string
	RequiredConfirmations uint64
	ScanInterval          time.Duration
	BlocksPerScan         uint64
}

// BinanceSmartChain records the history of stored BSC accounts. Blocks are
// scanned once they are RequiredConfirmations deep.
type BinanceSmartChain struct {
	logger *slog.Logger

	client  BSCClient
	storage ports.Storage
	cursors ScanCursorStore
	tokens  TokenResolver

	opts BSCScannerOptions
}

func NewBinanceSmartChain(
	logger *slog.Logger,
	client BSCClient,
	storage ports.Storage,
	cursors ScanCursorStore,
	tokens TokenResolver,
	opts BSCScannerOptions,
) *BinanceSmartChain {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = 5 * time.Second
	}
	if opts.BlocksPerScan == 0 {
		opts.BlocksPerScan = 50
	}

	return &BinanceSmartChain{
		logger:  logger,
		client:  client,
		storage: storage,
		cursors: cursors,
		tokens:  tokens,
		opts:    opts,
	}
}

// SubscribeToTransactions scans new blocks until ctx is done, retrying after failures.
func (bsc *BinanceSmartChain) SubscribeToTransactions(ctx context.Context) error {
	for {
		bsc.logger.InfoContext(ctx, "Starting blockchain monitoring...", "network", bsc.opts.Network)

		err := bsc.pollAndProcess(ctx)
		if ctx.Err() != nil {
			return nil
		}

		bsc.logger.ErrorContext(ctx, "Blockchain monitoring error, retrying...",
			"delay", ports.BlockchainSubscriptionRetryDelay, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ports.BlockchainSubscriptionRetryDelay):
		}
	}
}

func (bsc *BinanceSmartChain) pollAndProcess(ctx context.Context) error {
	pollTicker := time.NewTicker(bsc.opts.ScanInterval)
	defer pollTicker.Stop()

	for {
		if err := bsc.ScanOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("pollAndProcess done with %w", ctx.Err())
		case <-pollTicker.C:
		}
	}
}

// ScanOnce processes the next batch of confirmed blocks.
func (bsc *BinanceSmartChain) ScanOnce(ctx context.Context) error {
	latestBlock, err := bsc.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest block number: %w", err)
	}
	if latestBlock < bsc.opts.RequiredConfirmations {
		return nil
	}
	safeBlock := latestBlock - bsc.opts.RequiredConfirmations

	lastScanned, ok, err := bsc.cursors.LastScannedBlock(ctx, entities.BlockchainBSC, bsc.opts.Network)
	if err != nil {
		return err
	}
	if !ok {
		bsc.logger.InfoContext(ctx, "Starting blockchain monitoring from block", "block", safeBlock)
		return bsc.cursors.SaveLastScannedBlock(ctx, entities.BlockchainBSC, bsc.opts.Network, safeBlock)
	}
	if lastScanned >= safeBlock {
		return nil
	}

	from := lastScanned + 1
	to := min(safeBlock, lastScanned+bsc.opts.BlocksPerScan)

	accounts, err := bsc.trackedAccounts(ctx)
	if err != nil {
		return err
	}

	if len(accounts) > 0 {
		for blockNum := from; blockNum <= to; blockNum++ {
			if err = bsc.processBlock(ctx, blockNum, accounts); err != nil {
				return err
			}
		}
	}

	return bsc.cursors.SaveLastScannedBlock(ctx, entities.BlockchainBSC, bsc.opts.Network, to)
}

// trackedAccounts maps lower-cased addresses to the ids of accounts holding them.
func (bsc *BinanceSmartChain) trackedAccounts(ctx context.Context) (map[string][]string, error) {
	accounts, err := bsc.storage.ListAccounts(ctx, entities.BlockchainBSC)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	byAddress := make(map[string][]string, len(accounts))
	for _, account := range accounts {
		if account.Network != bsc.opts.Network {
			continue
		}
		key := strings.ToLower(account.Address)
		byAddress[key] = append(byAddress[key], account.ID)
	}

	return byAddress, nil
}

// processBlock records every transfer touching a tracked address.
func (bsc *BinanceSmartChain) processBlock(ctx context.Context, blockNum uint64, accounts map[string][]string) error {
	startTime := time.Now()

	block, err := bsc.client.BlockByNumber(ctx, new(big.Int).SetUint64(blockNum))
	if err != nil {
		return fmt.Errorf("failed to get block %d: %w", blockNum, err)
	}

	timestamp := time.Unix(int64(block.Time()), 0).UTC()
	recorded := make(map[string][]entities.Transaction)

	for i, tx := range block.Transactions() {
		if tx.To() == nil {
			continue
		}

		transfer, ok := bsc.parseTransfer(tx)
		if !ok {
			continue
		}

		sender, err := bsc.sender(ctx, tx, block.Hash(), uint(i))
		if err != nil {
			bsc.logger.ErrorContext(ctx, "Failed to get transaction sender",
				"error", err,
				"tx_hash", tx.Hash().Hex())
			continue
		}
		transfer.FromAddress = sender.Hex()

		incoming := accounts[strings.ToLower(transfer.ToAddress)]
		outgoing := accounts[strings.ToLower(transfer.FromAddress)]
		if len(incoming) == 0 && len(outgoing) == 0 {
			continue
		}

		receipt, err := bsc.client.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return fmt.Errorf("failed to get receipt of %s: %w", tx.Hash().Hex(), err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			continue
		}

		transfer.TxID = tx.Hash().Hex()
		transfer.Timestamp = timestamp

		for _, accountID := range incoming {
			in := transfer
			in.IsIncoming = true
			in.Fee = "0"
			recorded[accountID] = append(recorded[accountID], in)
		}
		for _, accountID := range outgoing {
			out := transfer
			out.IsIncoming = false
			out.Fee = receiptFee(receipt, tx).String()
			recorded[accountID] = append(recorded[accountID], out)
		}

		bsc.logger.InfoContext(ctx, "Account transfer detected",
			"tx_hash", transfer.TxID,
			"slug", transfer.Slug,
			"from", transfer.FromAddress,
			"to", transfer.ToAddress,
			"amount", transfer.Amount,
			"block_number", blockNum)
	}

	for accountID, txs := range recorded {
		if err = bsc.storage.SaveTransactions(ctx, accountID, txs); err != nil {
			return fmt.Errorf("failed to record transactions of %s: %w", accountID, err)
		}
	}

	bsc.logger.DebugContext(ctx, "Block processing completed",
		"block_number", blockNum,
		"tx_count", len(block.Transactions()),
		"accounts_touched", len(recorded),
		"duration", time.Since(startTime).String())

	return nil
}

// parseTransfer recognizes native transfers and token transfer calls.
// The sender is filled in by the caller.
func (bsc *BinanceSmartChain) parseTransfer(tx *types.Transaction) (entities.Transaction, bool) {
	if token, ok := bsc.tokens.TokenByContract(*tx.To()); ok {
		recipient, amount, ok := evm.ParseERC20Transfer(tx.Data())
		if !ok || amount.Sign() == 0 {
			return entities.Transaction{}, false
		}
		return entities.Transaction{
			Slug:      token.Slug,
			Amount:    amount.String(),
			ToAddress: recipient.Hex(),
		}, true
	}

	if tx.Value().Sign() == 0 {
		return entities.Transaction{}, false
	}

	transfer := entities.Transaction{
		Slug:      evm.NativeSlug,
		Amount:    tx.Value().String(),
		ToAddress: tx.To().Hex(),
	}
	if data := tx.Data(); len(data) > 0 && utf8.Valid(data) {
		transfer.Comment = string(data)
	}

	return transfer, true
}

func (bsc *BinanceSmartChain) sender(ctx context.Context, tx *types.Transaction, blockHash common.Hash, index uint) (common.Address, error) {
	if sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		return sender, nil
	}
	return bsc.client.TransactionSender(ctx, tx, blockHash, index)
}

func receiptFee(receipt *types.Receipt, tx *types.Transaction) *big.Int {
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = tx.GasPrice()
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(receipt.GasUsed))
}
