package entities

import (
	"time"
)

// BlockchainKey identifies the adapter responsible for an account.
type BlockchainKey string

const (
	BlockchainBSC    BlockchainKey = "bsc"
	BlockchainSolana BlockchainKey = "solana"
)

// Account represents a wallet account tracked by our system.
type Account struct {
	ID                string        `json:"id"         db:"id"`
	Blockchain        BlockchainKey `json:"blockchain" db:"blockchain"`
	Network           string        `json:"network"    db:"network"`
	Address           string        `json:"address"    db:"address"`
	EncryptedMnemonic string        `json:"-"          db:"encrypted_mnemonic"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}
