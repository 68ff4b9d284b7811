// Package types holds value types shared across the ledger.
package types

import "github.com/shopspring/decimal"

// Money is an exact decimal amount. Unit costs and count gaps use it so
// sums never drift the way float64 would.
type Money = decimal.Decimal

// MustMoney parses a decimal literal such as "12.40" and panics on bad input.
func MustMoney(s string) Money { return decimal.RequireFromString(s) }

func Zero() Money { return decimal.Zero }

// Extend returns qty × unitCost, the monetary value of a quantity.
func Extend(qty int64, unitCost Money) Money {
	return unitCost.Mul(decimal.NewFromInt(qty))
}
