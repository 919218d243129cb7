package domain

import "github.com/shopspring/decimal"

// RoundMoney rounds half-up to 2 decimal places, the single rounding rule at
// every monetary boundary (10.005 rounds to 10.01, not 10.00).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MoneyString renders a monetary amount with exactly 2 decimals.
func MoneyString(d decimal.Decimal) string {
	return RoundMoney(d).StringFixed(2)
}
