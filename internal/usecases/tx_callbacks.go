package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

const (
	// Chain timestamps may lag our clock; transactions this much older than a watch still match it.
	txCallbackClockSkew = time.Minute
	// How long a matched transaction id is remembered so it can't resolve a second watch.
	resolvedTxRetention = time.Hour
)

type txCallback struct {
	accountID string
	txHash    string
	address   string
	amount    string
	createdAt time.Time
	done      chan string
}

type transferOriginKey struct{}

type transferOrigin struct {
	accountID string
	txHash    string
}

// WithTransferOrigin tags the watch started with ctx by the account that sent
// the transfer and, when the chain reported one, its transaction hash.
func WithTransferOrigin(ctx context.Context, accountID, txHash string) context.Context {
	return context.WithValue(ctx, transferOriginKey{}, transferOrigin{accountID: accountID, txHash: txHash})
}

func transferOriginFrom(ctx context.Context) transferOrigin {
	origin, _ := ctx.Value(transferOriginKey{}).(transferOrigin)
	return origin
}

// TxCallbacks is the completion watcher: transfers register a watch and
// the transaction poller resolves them as outgoing transactions show up.
type TxCallbacks struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	pending  []*txCallback
	resolved map[string]time.Time
}

func NewTxCallbacks(logger *slog.Logger) *TxCallbacks {
	return &TxCallbacks{
		logger:   logger,
		now:      time.Now,
		resolved: make(map[string]time.Time),
	}
}

// WhenTxComplete blocks until an outgoing transaction of amount to address is
// resolved, returning its id, or until ctx is done. A watch tagged with
// WithTransferOrigin and a hash resolves on that hash only.
func (c *TxCallbacks) WhenTxComplete(ctx context.Context, address, amount string) (string, error) {
	origin := transferOriginFrom(ctx)
	cb := &txCallback{
		accountID: origin.accountID,
		txHash:    origin.txHash,
		address:   address,
		amount:    amount,
		createdAt: c.now(),
		done:      make(chan string, 1),
	}

	c.mu.Lock()
	c.pending = append(c.pending, cb)
	c.mu.Unlock()

	select {
	case txID := <-cb.done:
		return txID, nil
	case <-ctx.Done():
		c.remove(cb)

		// Resolve may have won the race right before removal.
		select {
		case txID := <-cb.done:
			return txID, nil
		default:
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: to %s amount %s", entities.ErrCompletionTimeout, address, amount)
		}
		return "", ctx.Err()
	}
}

// Resolve matches outgoing transactions against pending watches and returns how many were resolved.
func (c *TxCallbacks) Resolve(txs []entities.Transaction) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for txID, at := range c.resolved {
		if now.Sub(at) > resolvedTxRetention {
			delete(c.resolved, txID)
		}
	}

	count := 0
	for _, tx := range txs {
		if tx.IsIncoming || entities.IsLocalTxID(tx.TxID) {
			continue
		}
		if _, seen := c.resolved[tx.TxID]; seen {
			continue
		}

		i := c.match(tx)
		if i < 0 {
			continue
		}

		c.pending[i].done <- tx.TxID
		c.pending = append(c.pending[:i], c.pending[i+1:]...)
		c.resolved[tx.TxID] = now
		count++

		c.logger.Debug("Transaction completion resolved",
			"tx_id", tx.TxID,
			"to", tx.ToAddress,
			"amount", tx.Amount)
	}

	return count
}

// match returns the index of the watch tx settles, or -1. A watch waiting for
// this exact hash wins over the oldest watch matching by address and amount.
func (c *TxCallbacks) match(tx entities.Transaction) int {
	for i, cb := range c.pending {
		if cb.txHash != "" && strings.EqualFold(cb.txHash, tx.TxID) {
			return i
		}
	}

	for i, cb := range c.pending {
		if cb.txHash != "" {
			continue
		}
		if !strings.EqualFold(cb.address, tx.ToAddress) || cb.amount != tx.Amount {
			continue
		}
		if !tx.Timestamp.IsZero() && tx.Timestamp.Before(cb.createdAt.Add(-txCallbackClockSkew)) {
			continue
		}
		return i
	}

	return -1
}

// Pending returns the number of unresolved watches.
func (c *TxCallbacks) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PendingAccounts returns the accounts pending watches were sent from. ok is
// false when some watch doesn't know its account, so every account has to be checked.
func (c *TxCallbacks) PendingAccounts() (accountIDs []string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(c.pending))
	for _, cb := range c.pending {
		if cb.accountID == "" {
			return nil, false
		}
		if _, dup := seen[cb.accountID]; dup {
			continue
		}
		seen[cb.accountID] = struct{}{}
		accountIDs = append(accountIDs, cb.accountID)
	}

	return accountIDs, true
}

func (c *TxCallbacks) remove(target *txCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, cb := range c.pending {
		if cb == target {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
