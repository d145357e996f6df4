package evm

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"

	"github.com/sand/wallet-transactions/backend/internal/blockchains"
)

// DefaultDerivationPath is m/44'/60'/0'/0/0.
func DefaultDerivationPath() []uint32 {
	return []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild,
		0,
		0,
	}
}

// DeriveKey walks path from the mnemonic's master key.
func DeriveKey(mnemonic string, path []uint32) (*ecdsa.PrivateKey, common.Address, error) {
	seed, err := blockchains.SeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid mnemonic: %w", err)
	}

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to create master key: %w", err)
	}

	for _, index := range path {
		key, err = key.NewChildKey(index)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("failed to derive child key %d: %w", index, err)
		}
	}

	privateKey, err := crypto.ToECDSA(common.LeftPadBytes(key.Key, 32))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to convert key: %w", err)
	}

	return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey), nil
}
