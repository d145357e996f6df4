package svm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sand/wallet-transactions/backend/internal/blockchains"
	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// ParseAmount parses a positive base unit amount.
func ParseAmount(amount string) (uint64, bool) {
	value, err := strconv.ParseUint(strings.TrimSpace(amount), 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return value, true
}

type transferPlan struct {
	owner   solana.PublicKey
	to      solana.PublicKey
	amount  uint64
	native  bool
	token   Token
	comment string

	// Token transfers only.
	source        solana.PublicKey
	destination   solana.PublicKey
	createAccount bool
}

func (p *transferPlan) fee() uint64 {
	if p.createAccount {
		return signatureFee + tokenAccountRent
	}
	return signatureFee
}

// instructions builds the instruction list of the transfer.
func (p *transferPlan) instructions() []solana.Instruction {
	var ixs []solana.Instruction

	if p.native {
		ixs = append(ixs, system.NewTransferInstruction(p.amount, p.owner, p.to).Build())
	} else {
		if p.createAccount {
			ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(p.owner, p.to, p.token.Mint).Build())
		}
		ixs = append(ixs, token.NewTransferCheckedInstruction(
			p.amount,
			p.token.Decimals,
			p.source,
			p.token.Mint,
			p.destination,
			p.owner,
			nil,
		).Build())
	}

	if p.comment != "" {
		ixs = append(ixs, solana.NewInstruction(
			solana.MemoProgramID,
			solana.AccountMetaSlice{solana.Meta(p.owner).SIGNER()},
			[]byte(p.comment),
		))
	}

	return ixs
}

func (a *Adapter) plan(account *entities.Account, slug, toAddress, amount, comment string) (*transferPlan, entities.DraftError) {
	tok, native, ok := a.asset(slug)
	if !ok {
		return nil, entities.DraftErrorUnsupportedToken
	}

	to, err := solana.PublicKeyFromBase58(strings.TrimSpace(toAddress))
	if err != nil {
		return nil, entities.DraftErrorInvalidToAddress
	}

	value, ok := ParseAmount(amount)
	if !ok {
		return nil, entities.DraftErrorInvalidAmount
	}

	owner, err := solana.PublicKeyFromBase58(account.Address)
	if err != nil {
		return nil, entities.DraftErrorInvalidToAddress
	}

	return &transferPlan{
		owner:   owner,
		to:      to,
		amount:  value,
		native:  native,
		token:   tok,
		comment: comment,
	}, ""
}

// resolve looks up the token accounts of the plan and checks balances.
// It reports whether the recipient holds nothing of the asset yet.
func (a *Adapter) resolve(ctx context.Context, p *transferPlan) (isNew bool, draftErr entities.DraftError, err error) {
	balance, err := a.client.GetBalance(ctx, p.owner, a.commitment)
	if err != nil {
		return false, "", fmt.Errorf("failed to get balance: %w", err)
	}

	if p.native {
		toBalance, err := a.client.GetBalance(ctx, p.to, a.commitment)
		if err != nil {
			return false, "", fmt.Errorf("failed to get recipient balance: %w", err)
		}
		isNew = toBalance.Value == 0

		if balance.Value < p.amount+p.fee() {
			return isNew, entities.DraftErrorInsufficientBalance, nil
		}
		return isNew, "", nil
	}

	if p.source, _, err = solana.FindAssociatedTokenAddress(p.owner, p.token.Mint); err != nil {
		return false, "", fmt.Errorf("failed to find source token account: %w", err)
	}
	if p.destination, _, err = solana.FindAssociatedTokenAddress(p.to, p.token.Mint); err != nil {
		return false, "", fmt.Errorf("failed to find destination token account: %w", err)
	}

	if _, err = a.client.GetAccountInfo(ctx, p.destination); err != nil {
		if !errors.Is(err, rpc.ErrNotFound) {
			return false, "", fmt.Errorf("failed to get destination token account: %w", err)
		}
		p.createAccount = true
	}
	isNew = p.createAccount

	if _, err = a.client.GetAccountInfo(ctx, p.source); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return isNew, entities.DraftErrorInsufficientBalance, nil
		}
		return false, "", fmt.Errorf("failed to get source token account: %w", err)
	}

	tokenBalance, err := a.client.GetTokenAccountBalance(ctx, p.source, a.commitment)
	if err != nil {
		return false, "", fmt.Errorf("failed to get token balance: %w", err)
	}

	held, err := strconv.ParseUint(tokenBalance.Value.Amount, 10, 64)
	if err != nil {
		return false, "", fmt.Errorf("invalid token balance %q: %w", tokenBalance.Value.Amount, err)
	}

	if held < p.amount || balance.Value < p.fee() {
		return isNew, entities.DraftErrorInsufficientBalance, nil
	}

	return isNew, "", nil
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

	isNew, draftErr, err := a.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	return &entities.DraftCheckResult{
		Fee:             strconv.FormatUint(p.fee(), 10),
		ResolvedAddress: p.to.String(),
		IsToAddressNew:  isNew,
		Error:           draftErr,
	}, nil
}

// SubmitTransfer signs and sends the transfer. It returns nil without an
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

	privateKey, err := DeriveKey(mnemonic)
	if err != nil {
		return nil, err
	}
	if privateKey.PublicKey().String() != account.Address {
		return nil, fmt.Errorf("derived address %s does not match account address %s", privateKey.PublicKey(), account.Address)
	}

	p, draftErr := a.plan(account, slug, toAddress, amount, comment)
	if draftErr == "" {
		_, draftErr, err = a.resolve(ctx, p)
		if err != nil {
			return nil, err
		}
	}
	if draftErr != "" {
		a.logger.WarnContext(ctx, "Transfer rejected", "account_id", accountID, "slug", slug, "reason", draftErr)
		return nil, nil
	}

	recent, err := a.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(p.instructions(), recent.Value.Blockhash, solana.TransactionPayer(p.owner))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(p.owner) {
			return &privateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := a.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: a.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	a.logger.InfoContext(ctx, "Transaction sent",
		"account_id", accountID,
		"tx_signature", sig.String(),
		"from", p.owner.String(),
		"to", p.to.String(),
		"slug", slug,
		"amount", p.amount,
		"create_token_account", p.createAccount)

	return &entities.SubmitTransferResult{
		ResolvedAddress: p.to.String(),
		Amount:          strconv.FormatUint(p.amount, 10),
		TxHash:          sig.String(),
	}, nil
}
