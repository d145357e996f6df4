package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// CompletionResolver is fed with fresh history to settle pending transfers.
type CompletionResolver interface {
	Pending() int
	// PendingAccounts lists the accounts with pending transfers; ok is false
	// when that is unknown for some transfer.
	PendingAccounts() (accountIDs []string, ok bool)
	Resolve(txs []entities.Transaction) int
}

type TransactionFetcher interface {
	FetchTransactions(ctx context.Context, accountID string) ([]entities.Transaction, error)
}

type AccountLister interface {
	ListAccounts(ctx context.Context, blockchain entities.BlockchainKey) ([]entities.Account, error)
}

// TransactionPoller reloads account history while transfers wait for completion.
type TransactionPoller struct {
	logger *slog.Logger

	callbacks    CompletionResolver
	transactions TransactionFetcher
	accounts     AccountLister
	blockchains  []entities.BlockchainKey

	interval time.Duration
	nudge    chan struct{}
}

func NewTransactionPoller(
	logger *slog.Logger,
	callbacks CompletionResolver,
	transactions TransactionFetcher,
	accounts AccountLister,
	blockchains []entities.BlockchainKey,
	interval time.Duration,
) *TransactionPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &TransactionPoller{
		logger:       logger,
		callbacks:    callbacks,
		transactions: transactions,
		accounts:     accounts,
		blockchains:  blockchains,
		interval:     interval,
		nudge:        make(chan struct{}, 1),
	}
}

// Nudge asks for a poll without waiting for the next tick.
func (p *TransactionPoller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Start polls until ctx is done.
func (p *TransactionPoller) Start(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Starting transaction poller", "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Transaction poller stopped")
			return nil
		case <-ticker.C:
		case <-p.nudge:
		}

		p.PollOnce(ctx)
	}
}

// PollOnce fetches the history of accounts with pending transfers and returns
// how many of them it resolved. Every account is fetched when a pending
// transfer doesn't name its account.
func (p *TransactionPoller) PollOnce(ctx context.Context) int {
	if p.callbacks.Pending() == 0 {
		return 0
	}

	accountIDs, ok := p.callbacks.PendingAccounts()
	if !ok {
		return p.pollAll(ctx)
	}

	resolved := 0
	for _, accountID := range accountIDs {
		resolved += p.poll(ctx, accountID)
		if p.callbacks.Pending() == 0 {
			break
		}
	}

	return resolved
}

func (p *TransactionPoller) pollAll(ctx context.Context) int {
	resolved := 0
	for _, blockchain := range p.blockchains {
		accounts, err := p.accounts.ListAccounts(ctx, blockchain)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to list accounts", "blockchain", blockchain, "error", err)
			continue
		}

		for _, account := range accounts {
			resolved += p.poll(ctx, account.ID)
			if p.callbacks.Pending() == 0 {
				return resolved
			}
		}
	}

	return resolved
}

func (p *TransactionPoller) poll(ctx context.Context, accountID string) int {
	txs, err := p.transactions.FetchTransactions(ctx, accountID)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to fetch transactions",
			"account_id", accountID,
			"error", err)
		return 0
	}

	return p.callbacks.Resolve(txs)
}
