package square

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are charged in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"KRW": true,
	"JPY": true,
}

// MinorUnits converts a decimal amount into the smallest currency unit.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if zeroDecimalCurrencies[code] {
		if !amount.Equal(amount.Truncate(0)) {
			return 0, fmt.Errorf("%s amounts cannot carry fractions", code)
		}
		return amount.IntPart(), nil
	}
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimals", amount.String())
	}
	return cents.IntPart(), nil
}
