package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a human-readable decimal amount (e.g. "100.50") to
// base units with the given number of decimals. Digits beyond the token's
// precision are truncated.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	parts := strings.Split(amount, ".")
	if amount == "" || len(parts) > 2 || parts[0] == "" {
		return nil, fmt.Errorf("invalid amount: %q", amount)
	}
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("invalid amount: %q", amount)
	}

	// Pad or truncate fractional part to the token's decimals
	for len(frac) < decimals {
		frac += "0"
	}
	frac = frac[:decimals]

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", amount)
	}
	return result, nil
}

// FormatUnits converts base units to a decimal string without trailing
// zeros: 2500000 with 6 decimals is "2.5", 2000000 is "2".
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	neg := value.Sign() < 0
	abs := new(big.Int).Abs(value)

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, remainder := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	out := whole.String()
	if remainder.Sign() != 0 {
		frac := remainder.String()
		frac = strings.Repeat("0", decimals-len(frac)) + frac
		out += "." + strings.TrimRight(frac, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
