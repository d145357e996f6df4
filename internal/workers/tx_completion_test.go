package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeResolver struct {
	mu       sync.Mutex
	pending  map[string]bool // tx ids that settle a watch
	resolved []string

	accountIDs    []string
	accountsKnown bool
}

func (r *fakeResolver) PendingAccounts() ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accountIDs, r.accountsKnown
}

func (r *fakeResolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *fakeResolver) Resolved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.resolved...)
}

func (r *fakeResolver) Resolve(txs []entities.Transaction) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, tx := range txs {
		if r.pending[tx.TxID] {
			delete(r.pending, tx.TxID)
			r.resolved = append(r.resolved, tx.TxID)
			n++
		}
	}
	return n
}

type fakeFetcher struct {
	history map[string][]entities.Transaction
	fetched []string
}

func (f *fakeFetcher) FetchTransactions(_ context.Context, accountID string) ([]entities.Transaction, error) {
	f.fetched = append(f.fetched, accountID)
	txs, ok := f.history[accountID]
	if !ok {
		return nil, errors.New("node unavailable")
	}
	return txs, nil
}

type fakeLister struct {
	accounts map[entities.BlockchainKey][]entities.Account
}

func (l *fakeLister) ListAccounts(_ context.Context, blockchain entities.BlockchainKey) ([]entities.Account, error) {
	return l.accounts[blockchain], nil
}

func newPollerFixture(pending ...string) (*TransactionPoller, *fakeResolver, *fakeFetcher) {
	resolver := &fakeResolver{pending: make(map[string]bool)}
	for _, txID := range pending {
		resolver.pending[txID] = true
	}

	fetcher := &fakeFetcher{history: map[string][]entities.Transaction{
		"0-bsc-testnet":   {{TxID: "b1"}},
		"2-solana-devnet": {{TxID: "s1"}, {TxID: "s2"}},
		"3-solana-devnet": {{TxID: "s3"}},
	}}

	lister := &fakeLister{accounts: map[entities.BlockchainKey][]entities.Account{
		entities.BlockchainBSC:    {{ID: "0-bsc-testnet"}, {ID: "1-bsc-testnet"}},
		entities.BlockchainSolana: {{ID: "2-solana-devnet"}, {ID: "3-solana-devnet"}},
	}}

	poller := NewTransactionPoller(testLogger(), resolver, fetcher, lister,
		[]entities.BlockchainKey{entities.BlockchainBSC, entities.BlockchainSolana}, time.Hour)

	return poller, resolver, fetcher
}

func TestPollOnceIdle(t *testing.T) {
	poller, _, fetcher := newPollerFixture()

	require.Zero(t, poller.PollOnce(context.Background()))
	require.Empty(t, fetcher.fetched)
}

func TestPollOnceResolvesAndStopsEarly(t *testing.T) {
	poller, resolver, fetcher := newPollerFixture("b1", "s2")

	require.Equal(t, 2, poller.PollOnce(context.Background()))
	require.ElementsMatch(t, []string{"b1", "s2"}, resolver.resolved)

	// 1-bsc-testnet fails and is skipped; 3-solana-devnet isn't needed.
	require.Equal(t, []string{"0-bsc-testnet", "1-bsc-testnet", "2-solana-devnet"}, fetcher.fetched)
}

func TestPollOnceKeepsUnmatched(t *testing.T) {
	poller, resolver, fetcher := newPollerFixture("unknown")

	require.Zero(t, poller.PollOnce(context.Background()))
	require.Equal(t, 1, resolver.Pending())
	require.Len(t, fetcher.fetched, 4)
}

func TestPollOnceFetchesOnlyPendingAccounts(t *testing.T) {
	poller, resolver, fetcher := newPollerFixture("s3", "unknown")
	resolver.accountIDs = []string{"3-solana-devnet", "1-bsc-testnet"}
	resolver.accountsKnown = true

	require.Equal(t, 1, poller.PollOnce(context.Background()))
	require.Equal(t, []string{"s3"}, resolver.Resolved())
	require.Equal(t, []string{"3-solana-devnet", "1-bsc-testnet"}, fetcher.fetched)
}

func TestStartPollsOnNudge(t *testing.T) {
	poller, resolver, _ := newPollerFixture("s3")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Start(ctx) }()

	poller.Nudge()
	poller.Nudge()

	require.Eventually(t, func() bool { return len(resolver.Resolved()) == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
