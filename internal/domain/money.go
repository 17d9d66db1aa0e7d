package domain

import "github.com/shopspring/decimal"

// moneyPlaces is the number of fractional digits every monetary value
// carries once it leaves a computation.
const moneyPlaces = 8

// Quantize rounds a monetary value to 8 fractional digits using
// round-half-to-even. Every fee and net-amount computation passes its
// result through Quantize before it is placed into a Trade or Transaction;
// unrounded intermediates never reach callers.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(moneyPlaces)
}
