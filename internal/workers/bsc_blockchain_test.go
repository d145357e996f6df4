package workers

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/sand/wallet-transactions/backend/internal/blockchains/evm"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

var (
	testChainID  = big.NewInt(97)
	testContract = common.HexToAddress(evm.TestnetUSDTContractAddress)
)

type fakeBSCClient struct {
	latest   uint64
	blocks   map[uint64]*types.Block
	receipts map[common.Hash]*types.Receipt
	fetched  []uint64
}

func (c *fakeBSCClient) BlockNumber(context.Context) (uint64, error) {
	return c.latest, nil
}

func (c *fakeBSCClient) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	c.fetched = append(c.fetched, number.Uint64())
	if block, ok := c.blocks[number.Uint64()]; ok {
		return block, nil
	}
	return types.NewBlockWithHeader(&types.Header{Number: number}), nil
}

func (c *fakeBSCClient) TransactionSender(context.Context, *types.Transaction, common.Hash, uint) (common.Address, error) {
	return common.Address{}, errors.New("not supported")
}

func (c *fakeBSCClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("no receipt for %s", txHash.Hex())
	}
	return receipt, nil
}

type fakeCursors struct {
	blocks map[string]uint64
}

func (c *fakeCursors) LastScannedBlock(_ context.Context, blockchain entities.BlockchainKey, network string) (uint64, bool, error) {
	block, ok := c.blocks[string(blockchain)+"/"+network]
	return block, ok, nil
}

func (c *fakeCursors) SaveLastScannedBlock(_ context.Context, blockchain entities.BlockchainKey, network string, block uint64) error {
	c.blocks[string(blockchain)+"/"+network] = block
	return nil
}

type fakeTokens struct{}

func (fakeTokens) TokenByContract(contract common.Address) (evm.Token, bool) {
	if contract == testContract {
		return evm.Token{Slug: evm.USDTSlug, Contract: contract}, true
	}
	return evm.Token{}, false
}

type fakeBSCStorage struct {
	fakeLister
	saved map[string][]entities.Transaction
}

func (s *fakeBSCStorage) GetAccount(context.Context, string) (*entities.Account, error) {
	return nil, nil
}

func (s *fakeBSCStorage) InsertAccount(context.Context, *entities.Account) error { return nil }

func (s *fakeBSCStorage) SaveTransactions(_ context.Context, accountID string, txs []entities.Transaction) error {
	s.saved[accountID] = append(s.saved[accountID], txs...)
	return nil
}

func (s *fakeBSCStorage) FindTransactions(context.Context, entities.TransactionQuery) ([]entities.Transaction, error) {
	return nil, nil
}

func signedTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to common.Address, value int64, data []byte) *types.Transaction {
	t.Helper()

	tx, err := types.SignTx(types.NewTransaction(nonce, to, big.NewInt(value), 60000, big.NewInt(2), data), types.NewEIP155Signer(testChainID), key)
	require.NoError(t, err)
	return tx
}

func successReceipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21000, EffectiveGasPrice: big.NewInt(2)}
}

func TestScanOnce(t *testing.T) {
	keyA, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyB, err := crypto.GenerateKey()
	require.NoError(t, err)

	addrA := crypto.PubkeyToAddress(keyA.PublicKey)
	addrC := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	nativeOut := signedTx(t, keyA, 0, addrC, 1000, []byte("hi"))
	tokenIn := signedTx(t, keyB, 0, testContract, 0, evm.CreateERC20TransferData(addrA, big.NewInt(50)))
	unrelated := signedTx(t, keyB, 1, common.HexToAddress("0x00000000000000000000000000000000000000dd"), 7, nil)
	failed := signedTx(t, keyB, 2, addrA, 9, nil)

	block := types.NewBlockWithHeader(&types.Header{Number: big.NewInt(101), Time: 1_700_000_000}).
		WithBody(types.Body{Transactions: []*types.Transaction{nativeOut, tokenIn, unrelated, failed}})

	client := &fakeBSCClient{
		latest: 103,
		blocks: map[uint64]*types.Block{101: block},
		receipts: map[common.Hash]*types.Receipt{
			nativeOut.Hash(): successReceipt(),
			tokenIn.Hash():   successReceipt(),
			failed.Hash():    {Status: types.ReceiptStatusFailed},
		},
	}

	storage := &fakeBSCStorage{
		fakeLister: fakeLister{accounts: map[entities.BlockchainKey][]entities.Account{
			entities.BlockchainBSC: {
				{ID: "0-bsc-testnet", Network: "testnet", Address: addrA.Hex()},
				{ID: "1-bsc-testnet", Network: "testnet", Address: addrC.Hex()},
				{ID: "2-bsc-mainnet", Network: "mainnet", Address: addrC.Hex()},
			},
		}},
		saved: make(map[string][]entities.Transaction),
	}
	cursors := &fakeCursors{blocks: map[string]uint64{"bsc/testnet": 100}}

	scanner := NewBinanceSmartChain(testLogger(), client, storage, cursors, fakeTokens{}, BSCScannerOptions{
		Network:               "testnet",
		RequiredConfirmations: 2,
	})

	require.NoError(t, scanner.ScanOnce(context.Background()))
	require.Equal(t, []uint64{101}, client.fetched)
	require.Equal(t, uint64(101), cursors.blocks["bsc/testnet"])

	require.Len(t, storage.saved, 2)

	saved := storage.saved["0-bsc-testnet"]
	require.Len(t, saved, 2)

	out := saved[0]
	require.Equal(t, nativeOut.Hash().Hex(), out.TxID)
	require.Equal(t, evm.NativeSlug, out.Slug)
	require.Equal(t, "1000", out.Amount)
	require.Equal(t, addrA.Hex(), out.FromAddress)
	require.Equal(t, addrC.Hex(), out.ToAddress)
	require.Equal(t, "hi", out.Comment)
	require.Equal(t, "42000", out.Fee)
	require.False(t, out.IsIncoming)
	require.Equal(t, int64(1_700_000_000), out.Timestamp.Unix())

	in := saved[1]
	require.Equal(t, tokenIn.Hash().Hex(), in.TxID)
	require.Equal(t, evm.USDTSlug, in.Slug)
	require.Equal(t, "50", in.Amount)
	require.Equal(t, crypto.PubkeyToAddress(keyB.PublicKey).Hex(), in.FromAddress)
	require.Equal(t, addrA.Hex(), in.ToAddress)
	require.Equal(t, "0", in.Fee)
	require.True(t, in.IsIncoming)

	received := storage.saved["1-bsc-testnet"]
	require.Len(t, received, 1)
	require.True(t, received[0].IsIncoming)
	require.Equal(t, nativeOut.Hash().Hex(), received[0].TxID)
}

func TestScanOnceStartsAtSafeBlock(t *testing.T) {
	client := &fakeBSCClient{latest: 500}
	cursors := &fakeCursors{blocks: make(map[string]uint64)}
	storage := &fakeBSCStorage{saved: make(map[string][]entities.Transaction)}

	scanner := NewBinanceSmartChain(testLogger(), client, storage, cursors, fakeTokens{}, BSCScannerOptions{
		Network:               "testnet",
		RequiredConfirmations: 15,
		BlocksPerScan:         10,
	})

	require.NoError(t, scanner.ScanOnce(context.Background()))
	require.Equal(t, uint64(485), cursors.blocks["bsc/testnet"])
	require.Empty(t, client.fetched)

	// Nothing new until the chain moves.
	require.NoError(t, scanner.ScanOnce(context.Background()))
	require.Equal(t, uint64(485), cursors.blocks["bsc/testnet"])

	// Batches are bounded; without accounts no blocks are fetched.
	client.latest = 600
	require.NoError(t, scanner.ScanOnce(context.Background()))
	require.Equal(t, uint64(495), cursors.blocks["bsc/testnet"])
	require.Empty(t, client.fetched)
}
