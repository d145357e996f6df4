package blockchains

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNormalizeMnemonic(t *testing.T) {
	require.Equal(t, testMnemonic, NormalizeMnemonic("  Abandon abandon\tabandon abandon abandon abandon\nabandon abandon abandon abandon abandon   ABOUT "))
}

func TestEncryptDecryptMnemonic(t *testing.T) {
	encrypted, err := EncryptMnemonic(testMnemonic, "secret", LightScryptN, LightScryptP)
	require.NoError(t, err)
	require.NotContains(t, encrypted, "abandon")

	mnemonic, err := DecryptMnemonic(encrypted, "secret")
	require.NoError(t, err)
	require.Equal(t, testMnemonic, mnemonic)

	_, err = DecryptMnemonic(encrypted, "wrong")
	require.ErrorIs(t, err, entities.ErrInvalidPassword)

	_, err = EncryptMnemonic(testMnemonic, "", LightScryptN, LightScryptP)
	require.ErrorIs(t, err, entities.ErrInvalidPassword)
}

func TestDecryptMnemonicMalformed(t *testing.T) {
	_, err := DecryptMnemonic("{not json", "secret")
	require.Error(t, err)
}

func TestSeedFromMnemonic(t *testing.T) {
	seed, err := SeedFromMnemonic(testMnemonic)
	require.NoError(t, err)
	require.Len(t, seed, 64)

	_, err = SeedFromMnemonic("abandon about")
	require.Error(t, err)
}
