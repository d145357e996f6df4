package ports

import "time"

const (
	BlockchainSubscriptionRetryDelay = 10 * time.Second // Delay before retrying subscription
	DefaultSliceLimit                = 20               // Page size when the caller doesn't ask for one
	MaxSliceLimit                    = 100
)
