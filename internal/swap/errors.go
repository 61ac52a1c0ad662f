package swap

import (
	"errors"
	"strings"

	"github.com/xiliaf09/tgbotv4/internal/wallet"
	"github.com/xiliaf09/tgbotv4/internal/zerox"
)

// Classify maps an execution error to a short user-facing message. Raw
// provider noise is truncated rather than shown verbatim.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *zerox.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case zerox.KindLiquidity:
			return "No liquidity available for this pair."
		case zerox.KindValidation:
			return "The aggregator rejected the request: " + truncate(apiErr.Reason)
		case zerox.KindTimeout:
			return "The aggregator did not respond in time. Try again."
		default:
			return "The aggregator returned an error. Try again."
		}
	}

	if errors.Is(err, wallet.ErrReplacedAndFailed) {
		return "Your transaction was replaced by another one that failed."
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return "Insufficient funds to cover the swap and gas."
	case strings.Contains(lower, "execution reverted") || strings.Contains(lower, "gas required exceeds"):
		return "The swap would revert on-chain. Check the token and amount."
	case strings.Contains(lower, "nonce too low") || strings.Contains(lower, "replacement transaction underpriced"):
		return "A competing transaction is pending. Wait for it to settle."
	case strings.Contains(lower, "context deadline exceeded"):
		return "The operation timed out. Try again."
	}
	return "Swap failed: " + truncate(msg)
}

func truncate(s string) string {
	const max = 100
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
