package usecases

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// AccountRef is the parsed form of an account id "<index>-<blockchain>-<network>".
type AccountRef struct {
	Index      int
	Blockchain entities.BlockchainKey
	Network    string
}

// BuildAccountID is the inverse of ParseAccountID.
func BuildAccountID(ref AccountRef) string {
	return fmt.Sprintf("%d-%s-%s", ref.Index, ref.Blockchain, ref.Network)
}

// ParseAccountID splits an account id into its parts.
func ParseAccountID(accountID string) (AccountRef, error) {
	parts := strings.SplitN(accountID, "-", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return AccountRef{}, fmt.Errorf("%w: malformed account id %q", entities.ErrUnresolvableAccount, accountID)
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil || index < 0 {
		return AccountRef{}, fmt.Errorf("%w: bad account index in %q", entities.ErrUnresolvableAccount, accountID)
	}

	return AccountRef{
		Index:      index,
		Blockchain: entities.BlockchainKey(parts[1]),
		Network:    parts[2],
	}, nil
}

// AccountRouter maps account ids onto the adapter of their chain.
type AccountRouter struct {
	adapters map[entities.BlockchainKey]ports.BlockchainAdapter
}

// NewAccountRouter creates a router over a fixed set of adapters.
func NewAccountRouter(adapters map[entities.BlockchainKey]ports.BlockchainAdapter) *AccountRouter {
	registered := make(map[entities.BlockchainKey]ports.BlockchainAdapter, len(adapters))
	for key, adapter := range adapters {
		if adapter != nil {
			registered[key] = adapter
		}
	}

	return &AccountRouter{adapters: registered}
}

// ResolveBlockchainKey returns the chain of the account or ErrUnresolvableAccount.
func (r *AccountRouter) ResolveBlockchainKey(accountID string) (entities.BlockchainKey, error) {
	ref, err := ParseAccountID(accountID)
	if err != nil {
		return "", err
	}

	if _, ok := r.adapters[ref.Blockchain]; !ok {
		return "", fmt.Errorf("%w: unknown blockchain %q in %q", entities.ErrUnresolvableAccount, ref.Blockchain, accountID)
	}

	return ref.Blockchain, nil
}

// Resolve returns the adapter responsible for the account.
func (r *AccountRouter) Resolve(accountID string) (ports.BlockchainAdapter, error) {
	key, err := r.ResolveBlockchainKey(accountID)
	if err != nil {
		return nil, err
	}

	return r.adapters[key], nil
}

// Adapter returns the adapter registered for a chain.
func (r *AccountRouter) Adapter(key entities.BlockchainKey) (ports.BlockchainAdapter, bool) {
	adapter, ok := r.adapters[key]
	return adapter, ok
}

// Blockchains lists the registered chains.
func (r *AccountRouter) Blockchains() []entities.BlockchainKey {
	keys := make([]entities.BlockchainKey, 0, len(r.adapters))
	for key := range r.adapters {
		keys = append(keys, key)
	}
	return keys
}
