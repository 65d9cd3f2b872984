package engine

import (
	"fmt"
	"math/big"

	"dca-engine-go/internal/models"

	"github.com/shopspring/decimal"
)

// Allocate returns floor(balance / remaining), the amount to sell this
// period. It is zero when nothing remains.
func Allocate(balance *big.Int, remaining int) *big.Int {
	if balance == nil || balance.Sign() <= 0 || remaining <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(balance, big.NewInt(int64(remaining)))
}

// FormatAmount renders a smallest-unit amount for display, e.g. "2.50 USDC".
func FormatAmount(amount *big.Int, token models.Token) string {
	if amount == nil {
		amount = new(big.Int)
	}
	d := decimal.NewFromBigInt(amount, -token.Decimals)
	text := d.String()
	if d.Equal(d.Round(2)) {
		text = d.StringFixed(2)
	}
	if token.Symbol == "" {
		return text
	}
	return text + " " + token.Symbol
}

// ParseAmount converts a display amount such as "12.5" into smallest units.
// Amounts finer than the token's precision are rejected.
func ParseAmount(text string, token models.Token) (*big.Int, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %s", text)
	}
	units := d.Shift(token.Decimals)
	if !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("amount %s exceeds %d decimal places", text, token.Decimals)
	}
	return units.BigInt(), nil
}
