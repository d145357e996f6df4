package shared

import (
	"os"
	"strings"
)

const EnvBlockchainDebugMode = "BLOCKCHAIN_DEBUG_MODE"

// IsBlockchainDebugMode reports whether test networks should be used.
func IsBlockchainDebugMode() bool {
	switch strings.ToLower(os.Getenv(EnvBlockchainDebugMode)) {
	case "true", "1":
		return true
	}
	return false
}

// NetworkName picks the production or the test network name.
func NetworkName(production, debug string) string {
	if IsBlockchainDebugMode() {
		return debug
	}
	return production
}
