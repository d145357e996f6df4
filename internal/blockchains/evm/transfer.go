package evm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sand/wallet-transactions/backend/internal/blockchains"
	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

const (
	nativeTransferGas = 21000
	tokenTransferGas  = 65000
)

var transferSig = []byte{0xa9, 0x05, 0x9c, 0xbb} // keccak256("transfer(address,uint256)")[0:4]

// CreateERC20TransferData encodes transfer(to, amount) call data.
func CreateERC20TransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSig...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// ParseERC20Transfer decodes transfer(to, amount) call data.
func ParseERC20Transfer(data []byte) (common.Address, *big.Int, bool) {
	if len(data) < 4+32+32 || !bytes.Equal(data[:4], transferSig) {
		return common.Address{}, nil, false
	}

	recipient := common.BytesToAddress(data[4+12 : 36])
	amount := new(big.Int).SetBytes(data[36:68])

	return recipient, amount, true
}

// ParseAmount parses a positive base unit amount.
func ParseAmount(amount string) (*big.Int, bool) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || value.Sign() <= 0 {
		return nil, false
	}
	return value, true
}

// transferPlan is a validated transfer ready to be priced and signed.
type transferPlan struct {
	from   common.Address
	to     common.Address
	value  *big.Int
	native bool
	token  Token
	data   []byte
}

// callMsg returns the message the transfer is executed as.
func (p *transferPlan) callMsg() ethereum.CallMsg {
	if p.native {
		return ethereum.CallMsg{From: p.from, To: &p.to, Value: p.value, Data: p.data}
	}
	return ethereum.CallMsg{From: p.from, To: &p.token.Contract, Data: p.data}
}

// txTarget returns the transaction recipient and value.
func (p *transferPlan) txTarget() (common.Address, *big.Int) {
	if p.native {
		return p.to, p.value
	}
	return p.token.Contract, big.NewInt(0)
}

func (p *transferPlan) fallbackGas() uint64 {
	if p.native {
		return nativeTransferGas + uint64(len(p.data))*16
	}
	return tokenTransferGas
}

// plan validates the draft. A non empty DraftError means the transfer can't go ahead.
func (a *Adapter) plan(account *entities.Account, slug, toAddress, amount, comment string) (*transferPlan, entities.DraftError) {
	token, native, ok := a.asset(slug)
	if !ok {
		return nil, entities.DraftErrorUnsupportedToken
	}

	if !common.IsHexAddress(toAddress) {
		return nil, entities.DraftErrorInvalidToAddress
	}

	value, ok := ParseAmount(amount)
	if !ok {
		return nil, entities.DraftErrorInvalidAmount
	}

	p := &transferPlan{
		from:   common.HexToAddress(account.Address),
		to:     common.HexToAddress(toAddress),
		value:  value,
		native: native,
		token:  token,
	}

	if native {
		if comment != "" {
			p.data = []byte(comment)
		}
	} else {
		p.data = CreateERC20TransferData(p.to, value)
	}

	return p, ""
}

// price estimates gas for the plan and checks the sender can cover it.
func (a *Adapter) price(ctx context.Context, p *transferPlan) (gas uint64, gasPrice *big.Int, draftErr entities.DraftError, err error) {
	gasPrice, err = a.client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, nil, "", fmt.Errorf("failed to get gas price: %w", err)
	}

	nativeBalance, err := a.client.BalanceAt(ctx, p.from, nil)
	if err != nil {
		return 0, nil, "", fmt.Errorf("failed to get balance: %w", err)
	}

	required := new(big.Int)
	if p.native {
		required.Set(p.value)
	} else {
		tokenBalance, err := a.tokenBalance(ctx, p.token, p.from)
		if err != nil {
			return 0, nil, "", err
		}
		if tokenBalance.Cmp(p.value) < 0 {
			return p.fallbackGas(), gasPrice, entities.DraftErrorInsufficientBalance, nil
		}
	}

	if nativeBalance.Cmp(required) < 0 {
		return p.fallbackGas(), gasPrice, entities.DraftErrorInsufficientBalance, nil
	}

	gas, err = a.client.EstimateGas(ctx, p.callMsg())
	if err != nil {
		return 0, nil, "", fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas * a.gasBufferPct / 100

	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	if nativeBalance.Cmp(required.Add(required, fee)) < 0 {
		return gas, gasPrice, entities.DraftErrorInsufficientBalance, nil
	}

	return gas, gasPrice, "", nil
}

func (a *Adapter) CheckTransactionDraft(
	ctx context.Context,
	storage ports.Storage,
	accountID, slug, toAddress, amount, comment string,
) (*entities.DraftCheckResult, error) {
	account, err := a.loadAccount(ctx, storage, accountID)
	if err != nil {
		return nil, err
	}

	p, draftErr := a.plan(account, slug, toAddress, amount, comment)
	if draftErr != "" {
		return &entities.DraftCheckResult{Error: draftErr}, nil
	}

	gas, gasPrice, draftErr, err := a.price(ctx, p)
	if err != nil {
		return nil, err
	}

	isNew, err := a.isNewAddress(ctx, p.to)
	if err != nil {
		return nil, err
	}

	return &entities.DraftCheckResult{
		Fee:             new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas)).String(),
		ResolvedAddress: p.to.Hex(),
		IsToAddressNew:  isNew,
		Error:           draftErr,
	}, nil
}

// SubmitTransfer signs and broadcasts the transfer. It returns nil without an
// error when the transfer no longer passes the draft check.
func (a *Adapter) SubmitTransfer(
	ctx context.Context,
	storage ports.Storage,
	accountID, password, slug, toAddress, amount, comment string,
) (*entities.SubmitTransferResult, error) {
	account, err := a.loadAccount(ctx, storage, accountID)
	if err != nil {
		return nil, err
	}

	mnemonic, err := blockchains.DecryptMnemonic(account.EncryptedMnemonic, password)
	if err != nil {
		return nil, err
	}

	privateKey, address, err := DeriveKey(mnemonic, a.derivePath)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(address.Hex(), account.Address) {
		return nil, fmt.Errorf("derived address %s does not match account address %s", address.Hex(), account.Address)
	}

	p, draftErr := a.plan(account, slug, toAddress, amount, comment)
	if draftErr != "" {
		a.logger.WarnContext(ctx, "Transfer rejected", "account_id", accountID, "slug", slug, "reason", draftErr)
		return nil, nil
	}

	gas, gasPrice, draftErr, err := a.price(ctx, p)
	if err != nil {
		return nil, err
	}
	if draftErr != "" {
		a.logger.WarnContext(ctx, "Transfer rejected", "account_id", accountID, "slug", slug, "reason", draftErr)
		return nil, nil
	}

	nonce, err := a.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	to, value := p.txTarget()
	tx := types.NewTransaction(nonce, to, value, gas, gasPrice, p.data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err = a.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	a.logger.InfoContext(ctx, "Transaction sent",
		"account_id", accountID,
		"tx_hash", signedTx.Hash().Hex(),
		"from", p.from.Hex(),
		"to", p.to.Hex(),
		"slug", slug,
		"amount", p.value.String(),
		"gas_limit", gas,
		"gas_price", gasPrice.String(),
		"nonce", nonce)

	return &entities.SubmitTransferResult{
		ResolvedAddress: p.to.Hex(),
		Amount:          p.value.String(),
		TxHash:          signedTx.Hash().Hex(),
	}, nil
}

// isNewAddress reports whether the address never sent a transaction nor holds coins.
func (a *Adapter) isNewAddress(ctx context.Context, address common.Address) (bool, error) {
	nonce, err := a.client.NonceAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get nonce: %w", err)
	}
	if nonce > 0 {
		return false, nil
	}

	balance, err := a.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance.Sign() == 0, nil
}

