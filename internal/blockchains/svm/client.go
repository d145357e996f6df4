package svm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sand/wallet-transactions/backend/internal/shared"
)

// HTTPEndpoints lists RPC endpoints to try, the configured one first.
func HTTPEndpoints(configured string) []string {
	var endpoints []string
	if configured != "" {
		endpoints = append(endpoints, configured)
	}
	if shared.IsBlockchainDebugMode() {
		return append(endpoints, rpc.DevNet_RPC)
	}
	return append(endpoints, rpc.MainNetBeta_RPC)
}

// WebSocketEndpoints lists websocket endpoints of the cluster.
func WebSocketEndpoints() []string {
	if shared.IsBlockchainDebugMode() {
		return []string{rpc.DevNet_WS}
	}
	return []string{rpc.MainNetBeta_WS}
}

// Dial returns a client for the first endpoint answering getVersion.
func Dial(ctx context.Context, logger *slog.Logger, endpoints []string) (*rpc.Client, error) {
	var lastErr error

	for _, endpoint := range endpoints {
		client := rpc.New(endpoint)

		version, err := client.GetVersion(ctx)
		if err == nil {
			logger.InfoContext(ctx, "Connected to Solana HTTP endpoint",
				"endpoint", endpoint,
				"solana_core", version.SolanaCore)
			return client, nil
		}

		lastErr = err
		logger.WarnContext(ctx, "Failed to connect to Solana HTTP endpoint", "endpoint", endpoint, "error", err)
	}

	return nil, fmt.Errorf("failed to connect to any Solana HTTP endpoint: %w", lastErr)
}
