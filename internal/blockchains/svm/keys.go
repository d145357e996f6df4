package svm

import (
	"crypto/ed25519"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/sand/wallet-transactions/backend/internal/blockchains"
)

// DeriveKey returns the keypair whose seed is the first 32 bytes of the BIP-39 seed.
func DeriveKey(mnemonic string) (solana.PrivateKey, error) {
	seed, err := blockchains.SeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])), nil
}
