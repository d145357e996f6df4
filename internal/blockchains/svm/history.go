package svm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.openly.dev/pointy"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// history pages signatures of the owner (native) or of its token account
// and turns each one into a transaction of slug. Signatures that don't move
// the asset are skipped, so a page may be shorter than limit.
func (a *Adapter) history(
	ctx context.Context,
	owner solana.PublicKey,
	slug string,
	native bool,
	beforeTxID, afterTxID string,
	limit int,
) ([]entities.Transaction, error) {
	address := owner
	var token Token
	if !native {
		token = a.tokens[slug]
		ata, _, err := solana.FindAssociatedTokenAddress(owner, token.Mint)
		if err != nil {
			return nil, fmt.Errorf("failed to find token account: %w", err)
		}
		address = ata
	}

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      pointy.Int(limit),
		Commitment: a.commitment,
	}
	if beforeTxID != "" {
		sig, err := solana.SignatureFromBase58(beforeTxID)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", beforeTxID, err)
		}
		opts.Before = sig
	}
	if afterTxID != "" {
		sig, err := solana.SignatureFromBase58(afterTxID)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", afterTxID, err)
		}
		opts.Until = sig
	}

	signatures, err := a.client.GetSignaturesForAddressWithOpts(ctx, address, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures for %s: %w", address, err)
	}

	txs := make([]entities.Transaction, 0, len(signatures))
	for _, sig := range signatures {
		if sig.Err != nil {
			continue
		}

		out, err := a.client.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     a.commitment,
			MaxSupportedTransactionVersion: pointy.Uint64(0),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get transaction %s: %w", sig.Signature, err)
		}
		if out == nil || out.Transaction == nil || out.Meta == nil {
			a.logger.WarnContext(ctx, "Transaction without data", "tx_signature", sig.Signature.String())
			continue
		}

		decodedTx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(out.Transaction.GetBinary()))
		if err != nil {
			a.logger.WarnContext(ctx, "Failed to decode transaction",
				"tx_signature", sig.Signature.String(), "error", err)
			continue
		}

		blockTime := sig.BlockTime
		if blockTime == nil {
			blockTime = out.BlockTime
		}

		var tx *entities.Transaction
		if native {
			tx = ParseNativeTransfer(owner, decodedTx.Message.AccountKeys, out.Meta)
		} else {
			tx = ParseTokenTransfer(owner, token.Mint, out.Meta)
		}
		if tx == nil {
			continue
		}

		tx.TxID = sig.Signature.String()
		tx.Slug = slug
		tx.Fee = new(big.Int).SetUint64(out.Meta.Fee).String()
		if blockTime != nil {
			tx.Timestamp = blockTime.Time().UTC()
		}
		if sig.Memo != nil {
			tx.Comment = ParseMemo(*sig.Memo)
		}

		txs = append(txs, *tx)
	}

	return txs, nil
}

// ParseNativeTransfer returns the lamport transfer the owner took part in, or
// nil when the owner's balance changed by the fee only.
func ParseNativeTransfer(owner solana.PublicKey, keys solana.PublicKeySlice, meta *rpc.TransactionMeta) *entities.Transaction {
	ownerIndex := -1
	for i, key := range keys {
		if key.Equals(owner) {
			ownerIndex = i
			break
		}
	}
	if ownerIndex < 0 || ownerIndex >= len(meta.PreBalances) || ownerIndex >= len(meta.PostBalances) {
		return nil
	}

	delta := balanceDelta(meta.PreBalances, meta.PostBalances, ownerIndex)
	if ownerIndex == 0 {
		// The fee payer is always the first key.
		delta += int64(meta.Fee)
	}
	if delta == 0 {
		return nil
	}

	tx := &entities.Transaction{IsIncoming: delta > 0}

	if tx.IsIncoming {
		tx.Amount = fmt.Sprint(delta)
		tx.ToAddress = owner.String()
		tx.FromAddress = counterparty(keys, meta, ownerIndex, false)
	} else {
		tx.Amount = fmt.Sprint(-delta)
		tx.FromAddress = owner.String()
		tx.ToAddress = counterparty(keys, meta, ownerIndex, true)
	}

	return tx
}

// counterparty picks the key with the largest gain (receiver) or loss (sender).
func counterparty(keys solana.PublicKeySlice, meta *rpc.TransactionMeta, ownerIndex int, receiver bool) string {
	best := -1
	var bestDelta int64
	for i := range keys {
		if i == ownerIndex || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			continue
		}
		delta := balanceDelta(meta.PreBalances, meta.PostBalances, i)
		if i == 0 {
			delta += int64(meta.Fee)
		}
		if !receiver {
			delta = -delta
		}
		if delta > bestDelta {
			best, bestDelta = i, delta
		}
	}
	if best < 0 {
		return ""
	}
	return keys[best].String()
}

func balanceDelta(pre, post []uint64, i int) int64 {
	return int64(post[i]) - int64(pre[i])
}

// ParseTokenTransfer returns the transfer of mint the owner took part in, or
// nil when the owner's token balance didn't change.
func ParseTokenTransfer(owner, mint solana.PublicKey, meta *rpc.TransactionMeta) *entities.Transaction {
	deltas := make(map[solana.PublicKey]*big.Int)

	apply := func(balances []rpc.TokenBalance, sign int) {
		for _, balance := range balances {
			if balance.Owner == nil || !balance.Mint.Equals(mint) || balance.UiTokenAmount == nil {
				continue
			}
			amount, ok := new(big.Int).SetString(balance.UiTokenAmount.Amount, 10)
			if !ok {
				continue
			}
			if sign < 0 {
				amount.Neg(amount)
			}
			if deltas[*balance.Owner] == nil {
				deltas[*balance.Owner] = new(big.Int)
			}
			deltas[*balance.Owner].Add(deltas[*balance.Owner], amount)
		}
	}
	apply(meta.PreTokenBalances, -1)
	apply(meta.PostTokenBalances, 1)

	ownerDelta, ok := deltas[owner]
	if !ok || ownerDelta.Sign() == 0 {
		return nil
	}

	tx := &entities.Transaction{IsIncoming: ownerDelta.Sign() > 0}

	var other string
	for key, delta := range deltas {
		if key.Equals(owner) || delta.Sign() == ownerDelta.Sign() || delta.Sign() == 0 {
			continue
		}
		other = key.String()
		break
	}

	if tx.IsIncoming {
		tx.Amount = ownerDelta.String()
		tx.FromAddress = other
		tx.ToAddress = owner.String()
	} else {
		tx.Amount = new(big.Int).Neg(ownerDelta).String()
		tx.FromAddress = owner.String()
		tx.ToAddress = other
	}

	return tx
}

// ParseMemo strips the "[length] " prefix the node puts in front of memos.
func ParseMemo(memo string) string {
	if strings.HasPrefix(memo, "[") {
		if i := strings.Index(memo, "] "); i > 0 {
			return memo[i+2:]
		}
	}
	return memo
}

