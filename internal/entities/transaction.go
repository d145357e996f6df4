package entities

import (
	"strings"
	"time"
)

// LocalTxIDSuffix marks transaction ids synthesized on our side before the chain knows them.
const LocalTxIDSuffix = ":local"

// Transaction represents an account history entry.
type Transaction struct {
	TxID        string    `json:"tx_id"        db:"tx_id"`
	Slug        string    `json:"slug"         db:"slug"`
	Timestamp   time.Time `json:"timestamp"    db:"timestamp"`
	Amount      string    `json:"amount"       db:"amount"`
	FromAddress string    `json:"from_address" db:"from_address"`
	ToAddress   string    `json:"to_address"   db:"to_address"`
	Comment     string    `json:"comment,omitempty" db:"comment"`
	Fee         string    `json:"fee"          db:"fee"`
	IsIncoming  bool      `json:"is_incoming"  db:"is_incoming"`
}

// LocalTransaction is the optimistic record of a just submitted transfer.
// It is replaced, never edited, once the real transaction is known.
type LocalTransaction struct {
	TxID        string    `json:"tx_id"`
	Slug        string    `json:"slug"`
	Timestamp   time.Time `json:"timestamp"`
	Amount      string    `json:"amount"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Comment     string    `json:"comment,omitempty"`
	Fee         string    `json:"fee"`
}

// LocalTransactionParams are the caller supplied fields of a LocalTransaction.
type LocalTransactionParams struct {
	Slug        string
	Amount      string
	FromAddress string
	ToAddress   string
	Comment     string
	Fee         string
}

// IsLocalTxID reports whether the id was produced by the local transaction builder.
func IsLocalTxID(txID string) bool {
	return strings.HasSuffix(txID, LocalTxIDSuffix)
}

// TxIDBySlug maps an asset slug to the last seen transaction id of that asset.
type TxIDBySlug map[string]string

// TransactionQuery describes a page of stored account transactions.
type TransactionQuery struct {
	AccountID  string
	Slug       string // empty means all assets
	BeforeTxID string
	AfterTxID  string
	Limit      int
}

// SubmitTransferResult is what a chain adapter reports for an accepted transfer.
type SubmitTransferResult struct {
	ResolvedAddress string `json:"resolved_address"`
	Amount          string `json:"amount"`
	TxHash          string `json:"tx_hash,omitempty"`
}

// DraftError is a non-exceptional reason a transfer draft can't be sent.
type DraftError string

const (
	DraftErrorInvalidToAddress    DraftError = "InvalidToAddress"
	DraftErrorInvalidAmount       DraftError = "InvalidAmount"
	DraftErrorInsufficientBalance DraftError = "InsufficientBalance"
	DraftErrorUnsupportedToken    DraftError = "UnsupportedToken"
)

// DraftCheckResult is the outcome of validating a transfer draft.
type DraftCheckResult struct {
	Fee             string     `json:"fee,omitempty"`
	ResolvedAddress string     `json:"resolved_address,omitempty"`
	IsToAddressNew  bool       `json:"is_to_address_new"`
	Error           DraftError `json:"error,omitempty"`
}
