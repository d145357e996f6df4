package blockchains

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/tyler-smith/go-bip39"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// Scrypt parameters for mnemonic encryption.
const (
	StandardScryptN = keystore.StandardScryptN
	StandardScryptP = keystore.StandardScryptP
	LightScryptN    = keystore.LightScryptN
	LightScryptP    = keystore.LightScryptP
)

// NormalizeMnemonic collapses whitespace and lower-cases the words.
func NormalizeMnemonic(mnemonic string) string {
	return strings.ToLower(strings.Join(strings.Fields(mnemonic), " "))
}

// EncryptMnemonic seals the mnemonic with the password using the keystore v3 cipher.
func EncryptMnemonic(mnemonic, password string, scryptN, scryptP int) (string, error) {
	if password == "" {
		return "", entities.ErrInvalidPassword
	}

	cryptoJSON, err := keystore.EncryptDataV3([]byte(mnemonic), []byte(password), scryptN, scryptP)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt mnemonic: %w", err)
	}

	encoded, err := json.Marshal(cryptoJSON)
	if err != nil {
		return "", fmt.Errorf("failed to encode encrypted mnemonic: %w", err)
	}

	return string(encoded), nil
}

// DecryptMnemonic opens a mnemonic sealed by EncryptMnemonic.
func DecryptMnemonic(encrypted, password string) (string, error) {
	var cryptoJSON keystore.CryptoJSON
	if err := json.Unmarshal([]byte(encrypted), &cryptoJSON); err != nil {
		return "", fmt.Errorf("failed to decode encrypted mnemonic: %w", err)
	}

	plain, err := keystore.DecryptDataV3(cryptoJSON, password)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return "", entities.ErrInvalidPassword
		}
		return "", fmt.Errorf("failed to decrypt mnemonic: %w", err)
	}

	mnemonic := string(plain)
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", entities.ErrInvalidMnemonic
	}

	return mnemonic, nil
}

// SeedFromMnemonic returns the BIP-39 seed without passphrase.
func SeedFromMnemonic(mnemonic string) ([]byte, error) {
	return bip39.NewSeedWithErrorChecking(mnemonic, "")
}
