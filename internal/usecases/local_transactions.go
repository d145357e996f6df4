package usecases

import (
	"time"

	"github.com/google/uuid"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// LocalTransactionBuilder creates optimistic transactions with fresh local ids.
type LocalTransactionBuilder struct {
	now func() time.Time
}

func NewLocalTransactionBuilder() *LocalTransactionBuilder {
	return &LocalTransactionBuilder{now: time.Now}
}

func (b *LocalTransactionBuilder) BuildLocalTransaction(params entities.LocalTransactionParams) *entities.LocalTransaction {
	return &entities.LocalTransaction{
		TxID:        uuid.NewString() + entities.LocalTxIDSuffix,
		Slug:        params.Slug,
		Timestamp:   b.now().UTC(),
		Amount:      params.Amount,
		FromAddress: params.FromAddress,
		ToAddress:   params.ToAddress,
		Comment:     params.Comment,
		Fee:         params.Fee,
	}
}
