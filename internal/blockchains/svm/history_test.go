package svm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

func TestParseNativeTransferOutgoing(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	tx := ParseNativeTransfer(owner, solana.PublicKeySlice{owner, recipient, solana.SystemProgramID}, &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{1_000_000, 0, 1},
		PostBalances: []uint64{1_000_000 - 5000 - 300, 300, 1},
	})
	require.NotNil(t, tx)
	require.False(t, tx.IsIncoming)
	require.Equal(t, "300", tx.Amount)
	require.Equal(t, owner.String(), tx.FromAddress)
	require.Equal(t, recipient.String(), tx.ToAddress)
}

func TestParseNativeTransferIncoming(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	tx := ParseNativeTransfer(owner, solana.PublicKeySlice{sender, owner}, &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{1_000_000, 50},
		PostBalances: []uint64{1_000_000 - 5000 - 200, 250},
	})
	require.NotNil(t, tx)
	require.True(t, tx.IsIncoming)
	require.Equal(t, "200", tx.Amount)
	require.Equal(t, sender.String(), tx.FromAddress)
	require.Equal(t, owner.String(), tx.ToAddress)
}

func TestParseNativeTransferIgnoresFeeOnly(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	meta := &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{10_000},
		PostBalances: []uint64{5_000},
	}

	require.Nil(t, ParseNativeTransfer(owner, solana.PublicKeySlice{owner}, meta))
	require.Nil(t, ParseNativeTransfer(owner, solana.PublicKeySlice{solana.NewWallet().PublicKey()}, meta))
}

func TestParseTokenTransfer(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	mint := solana.MustPublicKeyFromBase58(USDTMintAddress)
	otherMint := solana.NewWallet().PublicKey()

	balance := func(holder solana.PublicKey, mint solana.PublicKey, amount string) rpc.TokenBalance {
		return rpc.TokenBalance{
			Owner:         &holder,
			Mint:          mint,
			UiTokenAmount: &rpc.UiTokenAmount{Amount: amount, Decimals: 6},
		}
	}

	meta := &rpc.TransactionMeta{
		PreTokenBalances: []rpc.TokenBalance{
			balance(owner, mint, "100"),
			balance(owner, otherMint, "5"),
		},
		PostTokenBalances: []rpc.TokenBalance{
			balance(owner, mint, "60"),
			balance(other, mint, "40"),
			balance(owner, otherMint, "0"),
		},
	}

	tx := ParseTokenTransfer(owner, mint, meta)
	require.NotNil(t, tx)
	require.False(t, tx.IsIncoming)
	require.Equal(t, "40", tx.Amount)
	require.Equal(t, owner.String(), tx.FromAddress)
	require.Equal(t, other.String(), tx.ToAddress)

	incoming := ParseTokenTransfer(other, mint, meta)
	require.NotNil(t, incoming)
	require.True(t, incoming.IsIncoming)
	require.Equal(t, "40", incoming.Amount)
	require.Equal(t, owner.String(), incoming.FromAddress)

	require.Nil(t, ParseTokenTransfer(solana.NewWallet().PublicKey(), mint, meta))
}

func TestParseMemo(t *testing.T) {
	require.Equal(t, "hello world", ParseMemo("[11] hello world"))
	require.Equal(t, "plain", ParseMemo("plain"))
	require.Equal(t, "[broken", ParseMemo("[broken"))
}

// encodedTransfer signs a lamport transfer from owner and wraps it the way the
// node returns base64 encoded transactions.
func encodedTransfer(t *testing.T, owner solana.PrivateKey, to solana.PublicKey, lamports uint64) (solana.Signature, *rpc.TransactionResultEnvelope) {
	t.Helper()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, owner.PublicKey(), to).Build()},
		solana.Hash{4, 5, 6},
		solana.TransactionPayer(owner.PublicKey()),
	)
	require.NoError(t, err)

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner.PublicKey()) {
			return &owner
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	var envelope rpc.TransactionResultEnvelope
	err = json.Unmarshal([]byte(fmt.Sprintf("[%q,\"base64\"]", base64.StdEncoding.EncodeToString(raw))), &envelope)
	require.NoError(t, err)

	return tx.Signatures[0], &envelope
}

func unixTime(sec int64) *solana.UnixTimeSeconds {
	ts := solana.UnixTimeSeconds(sec)
	return &ts
}

func TestGetTokenTransactionSliceNative(t *testing.T) {
	adapter, client, storage, owner := newTestAdapter(t)
	key, err := DeriveKey(testMnemonic)
	require.NoError(t, err)
	recipient := solana.NewWallet().PublicKey()

	sig, envelope := encodedTransfer(t, key, recipient, 300)
	failed := solana.Signature{9, 9, 9}

	client.signatures[owner] = []*rpc.TransactionSignature{
		{Signature: failed, Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
		{Signature: sig, BlockTime: unixTime(1_700_000_000), Memo: pointy.String("[6] thanks")},
	}
	client.transactions[sig] = &rpc.GetTransactionResult{
		Transaction: envelope,
		Meta: &rpc.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000, 0, 1},
			PostBalances: []uint64{1_000_000 - 5000 - 300, 300, 1},
		},
	}

	before := solana.Signature{7}
	after := solana.Signature{8}

	txs, err := adapter.GetTokenTransactionSlice(context.Background(), storage, testAccountID, NativeSlug, before.String(), after.String(), 5)
	require.NoError(t, err)

	require.Len(t, client.signaturesCalls, 1)
	call := client.signaturesCalls[0]
	require.True(t, call.address.Equals(owner))
	require.Equal(t, 5, *call.opts.Limit)
	require.Equal(t, before, call.opts.Before)
	require.Equal(t, after, call.opts.Until)

	require.Equal(t, []solana.Signature{sig}, client.fetched)

	require.Equal(t, []entities.Transaction{{
		TxID:        sig.String(),
		Slug:        NativeSlug,
		Amount:      "300",
		Fee:         "5000",
		FromAddress: owner.String(),
		ToAddress:   recipient.String(),
		Comment:     "thanks",
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
	}}, txs)

	_, err = adapter.GetTokenTransactionSlice(context.Background(), storage, testAccountID, NativeSlug, "not-a-signature", "", 5)
	require.Error(t, err)
}

func TestGetMergedTransactionSliceToken(t *testing.T) {
	adapter, client, storage, owner := newTestAdapter(t)
	key, err := DeriveKey(testMnemonic)
	require.NoError(t, err)
	sender := solana.NewWallet().PublicKey()
	mint := solana.MustPublicKeyFromBase58(USDTMintAddress)

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	sig, envelope := encodedTransfer(t, key, sender, 1)
	client.signatures[ata] = []*rpc.TransactionSignature{{Signature: sig}}

	balance := func(holder solana.PublicKey, amount string) rpc.TokenBalance {
		return rpc.TokenBalance{
			Owner:         &holder,
			Mint:          mint,
			UiTokenAmount: &rpc.UiTokenAmount{Amount: amount, Decimals: 6},
		}
	}
	client.transactions[sig] = &rpc.GetTransactionResult{
		BlockTime:   unixTime(1_700_000_100),
		Transaction: envelope,
		Meta: &rpc.TransactionMeta{
			Fee:               5000,
			PreTokenBalances:  []rpc.TokenBalance{balance(sender, "50"), balance(owner, "10")},
			PostTokenBalances: []rpc.TokenBalance{balance(sender, "20"), balance(owner, "40")},
		},
	}

	txs, err := adapter.GetMergedTransactionSlice(context.Background(), storage, testAccountID, nil, 10)
	require.NoError(t, err)

	addresses := make([]solana.PublicKey, 0, len(client.signaturesCalls))
	for _, call := range client.signaturesCalls {
		addresses = append(addresses, call.address)
		require.Equal(t, solana.Signature{}, call.opts.Before)
		require.Equal(t, solana.Signature{}, call.opts.Until)
	}
	require.ElementsMatch(t, []solana.PublicKey{owner, ata}, addresses)

	require.Equal(t, []entities.Transaction{{
		TxID:        sig.String(),
		Slug:        USDTSlug,
		Amount:      "30",
		Fee:         "5000",
		FromAddress: sender.String(),
		ToAddress:   owner.String(),
		IsIncoming:  true,
		Timestamp:   time.Unix(1_700_000_100, 0).UTC(),
	}}, txs)
}
