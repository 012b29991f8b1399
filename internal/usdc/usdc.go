// Package usdc converts between USDC's human decimal-string representation
// (6 fractional digits) and its 256-bit smallest-units integer
// representation, shared by the Payment Engine (C6), USDC Ledger (C7) and
// Client Authorization (C5) budgeting.
package usdc

import (
	"fmt"
	"math/big"
	"strings"
)

const Decimals = 6

var unitsPerDollar = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// DisplayToUnits parses a decimal string (e.g. "1.50") into its smallest-unit
// integer (1_500_000). Rejects non-numeric, negative, and zero amounts, per
// spec §4.6 "Amount encoding".
func DisplayToUnits(display string) (*big.Int, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return nil, fmt.Errorf("amount must not be empty")
	}
	neg := strings.HasPrefix(display, "-")
	if neg {
		return nil, fmt.Errorf("amount must not be negative: %q", display)
	}

	whole, frac, hasFrac := strings.Cut(display, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return nil, fmt.Errorf("amount must be numeric: %q", display)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("amount has more than %d fractional digits: %q", Decimals, display)
	}
	frac = frac + strings.Repeat("0", Decimals-len(frac))

	units, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be numeric: %q", display)
	}
	if units.Sign() == 0 {
		return nil, fmt.Errorf("amount must not be zero")
	}
	return units, nil
}

// UnitsToDisplay renders smallest units back to a decimal string with up to
// 6 fractional digits, trimming trailing zeros (R4 round-trip).
func UnitsToDisplay(units *big.Int) string {
	if units == nil {
		units = big.NewInt(0)
	}
	neg := units.Sign() < 0
	abs := new(big.Int).Abs(units)

	s := abs.String()
	for len(s) <= Decimals {
		s = "0" + s
	}
	whole := s[:len(s)-Decimals]
	frac := strings.TrimRight(s[len(s)-Decimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
