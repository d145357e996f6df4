package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// Nudger is poked whenever a watched account shows up in a transaction.
type Nudger interface {
	Nudge()
}

// SolanaBlockchain watches logs mentioning stored Solana accounts over the
// websocket API and nudges the transaction poller on every hit. Account
// changes are picked up on the next reconnect.
type SolanaBlockchain struct {
	logger *slog.Logger

	endpoints []string
	network   string
	accounts  AccountLister
	poller    Nudger

	resubscribeInterval time.Duration
}

func NewSolanaBlockchain(
	logger *slog.Logger,
	endpoints []string,
	network string,
	accounts AccountLister,
	poller Nudger,
) *SolanaBlockchain {
	return &SolanaBlockchain{
		logger:              logger,
		endpoints:           endpoints,
		network:             network,
		accounts:            accounts,
		poller:              poller,
		resubscribeInterval: 5 * time.Minute,
	}
}

// SubscribeToTransactions keeps the subscriptions alive until ctx is done.
func (s *SolanaBlockchain) SubscribeToTransactions(ctx context.Context) error {
	for {
		s.logger.InfoContext(ctx, "Starting Solana account monitoring via WebSocket...")

		err := s.subscribeViaWebsocket(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "Solana WebSocket subscription failed, retrying...",
				"delay", ports.BlockchainSubscriptionRetryDelay, "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(ports.BlockchainSubscriptionRetryDelay):
			}
		}
	}
}

func (s *SolanaBlockchain) connect(ctx context.Context) (*ws.Client, string, error) {
	for _, endpoint := range s.endpoints {
		wsClient, err := ws.Connect(ctx, endpoint)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to connect to Solana WebSocket endpoint",
				"endpoint", endpoint, "error", err)
			continue
		}
		return wsClient, endpoint, nil
	}
	return nil, "", errors.New("failed to connect to any Solana WebSocket endpoint")
}

// subscribeViaWebsocket returns nil when it is time to reload the account list.
func (s *SolanaBlockchain) subscribeViaWebsocket(ctx context.Context) error {
	accounts, err := s.accounts.ListAccounts(ctx, entities.BlockchainSolana)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	var watched []solana.PublicKey
	for _, account := range accounts {
		if account.Network != s.network {
			continue
		}
		key, err := solana.PublicKeyFromBase58(account.Address)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping account with invalid address",
				"account_id", account.ID, "address", account.Address)
			continue
		}
		watched = append(watched, key)
	}

	subCtx, cancel := context.WithTimeout(ctx, s.resubscribeInterval)
	defer cancel()

	if len(watched) == 0 {
		<-subCtx.Done()
		return nil
	}

	wsClient, endpoint, err := s.connect(subCtx)
	if err != nil {
		return err
	}
	defer wsClient.Close()

	errs := make(chan error, len(watched))
	for _, key := range watched {
		sub, err := wsClient.LogsSubscribeMentions(key, rpc.CommitmentConfirmed)
		if err != nil {
			return fmt.Errorf("failed to subscribe to logs of %s: %w", key, err)
		}

		go func(key solana.PublicKey, sub *ws.LogSubscription) {
			defer sub.Unsubscribe()
			for {
				result, err := sub.Recv(subCtx)
				if err != nil {
					errs <- fmt.Errorf("WebSocket Recv error for %s from %s: %w", key, endpoint, err)
					return
				}
				if result == nil || result.Value.Err != nil {
					continue
				}

				s.logger.DebugContext(subCtx, "Solana account activity",
					"address", key.String(),
					"tx_signature", result.Value.Signature.String())
				s.poller.Nudge()
			}
		}(key, sub)
	}

	s.logger.InfoContext(ctx, "Watching Solana accounts", "endpoint", endpoint, "count", len(watched))

	select {
	case <-subCtx.Done():
		if ctx.Err() == nil {
			return nil
		}
		return ctx.Err()
	case err := <-errs:
		if subCtx.Err() != nil && ctx.Err() == nil {
			return nil
		}
		return err
	}
}
