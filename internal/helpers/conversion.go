package helpers

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const etherDecimals = 18

// MinBuyAmountWei is the smallest buy the bot accepts (0.00001 ETH).
var MinBuyAmountWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(13), nil)

// ParseEthAmount converts a decimal ETH string ("0.05") into wei exactly,
// using integer string arithmetic. Floats would drift on high-precision
// amounts, which matters once percentage sells re-enter the quote flow.
func ParseEthAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "eth"))
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("amount must be positive")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals {
		frac = frac[:etherDecimals]
	}
	frac += strings.Repeat("0", etherDecimals-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return wei, nil
}

// PercentageOf computes floor(amount * pct / 100) in integer arithmetic.
func PercentageOf(amount *big.Int, pct int) *big.Int {
	if amount == nil || pct <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
	return out.Div(out, big.NewInt(100))
}

// FormatEth renders wei as a human ETH amount. Display only.
func FormatEth(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	v := new(big.Float).SetInt(wei)
	v.Quo(v, big.NewFloat(1e18))

	f, _ := v.Float64()
	switch {
	case f != 0 && f < 0.0001:
		return fmt.Sprintf("%.8f", f)
	case f < 1:
		return fmt.Sprintf("%.6f", f)
	case f < 100:
		return fmt.Sprintf("%.4f", f)
	default:
		return fmt.Sprintf("%.2f", f)
	}
}

// FormatTokenAmount renders base units with the token's decimal scaling. Display only.
func FormatTokenAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	v := new(big.Float).SetInt(amount)
	v.Quo(v, divisor)

	f, _ := v.Float64()
	if decimals <= 2 {
		return fmt.Sprintf("%.0f", f)
	} else if decimals <= 8 {
		return fmt.Sprintf("%.4f", f)
	}
	return fmt.Sprintf("%.6f", f)
}

// FormatUSD renders an approximate dollar figure with K/M suffixes.
func FormatUSD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.2fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.2fK", v/1_000)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

// FormatAddress shortens an address for display.
func FormatAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// FormatTxHash shortens a transaction hash for display.
func FormatTxHash(hash common.Hash) string {
	hex := hash.Hex()
	return hex[:10] + "..." + hex[len(hex)-6:]
}

// GweiToWei converts an integer gwei string to wei.
func GweiToWei(gweiStr string) (*big.Int, error) {
	gwei, ok := new(big.Int).SetString(strings.TrimSpace(gweiStr), 10)
	if !ok {
		return nil, fmt.Errorf("invalid gwei amount: %s", gweiStr)
	}
	return new(big.Int).Mul(gwei, big.NewInt(1_000_000_000)), nil
}

// WeiToGwei renders wei as whole gwei.
func WeiToGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return new(big.Int).Div(wei, big.NewInt(1_000_000_000)).String()
}
