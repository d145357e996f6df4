package entities

// UpdateType tags the variants of Update.
type UpdateType string

const (
	UpdateTypeNewLocalTransaction UpdateType = "newLocalTransaction"
	UpdateTypeTxComplete          UpdateType = "updateTxComplete"
)

// Update is an asynchronous state change pushed to the subscriber.
type Update interface {
	UpdateType() UpdateType
}

// NewLocalTransactionUpdate announces an optimistic transaction right after submission.
type NewLocalTransactionUpdate struct {
	Type        UpdateType        `json:"type"`
	AccountID   string            `json:"account_id"`
	Transaction *LocalTransaction `json:"transaction"`
}

func (u NewLocalTransactionUpdate) UpdateType() UpdateType { return UpdateTypeNewLocalTransaction }

// TxCompleteUpdate carries the real transaction id so the subscriber can
// replace the local entry identified by LocalTxID.
type TxCompleteUpdate struct {
	Type      UpdateType `json:"type"`
	AccountID string     `json:"account_id"`
	ToAddress string     `json:"to_address"`
	Amount    string     `json:"amount"`
	TxID      string     `json:"tx_id"`
	LocalTxID string     `json:"local_tx_id"`
}

func (u TxCompleteUpdate) UpdateType() UpdateType { return UpdateTypeTxComplete }
