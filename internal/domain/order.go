// Package domain contains the shared entities every exchange adapter maps
// its API responses into: markets, trades, orders and transactions. All of
// them are immutable value objects constructed once from a parsed response;
// none holds a reference to the network layer.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a trade or order (buy or sell).
type Side string

const (
	// SideBuy indicates base currency was (or is to be) bought.
	SideBuy Side = "buy"
	// SideSell indicates base currency was (or is to be) sold.
	SideSell Side = "sell"
)

// Order represents a currently resting, unfulfilled order. It is an
// immutable snapshot: orders are never updated in place, only re-fetched
// wholesale via GetMyOpenOrders.
type Order struct {
	// ID is the identifier assigned by the exchange.
	ID string
	// Market is the canonical pair the order rests on.
	Market Market
	// Side indicates whether this is a buy or sell order.
	Side Side
	// Time is when the order was created, in UTC.
	Time time.Time
	// Amount is the quantity of base currency to buy or sell.
	Amount decimal.Decimal
	// Price is the limit price in counter currency.
	Price decimal.Decimal
}

// Trade represents an executed trade.
type Trade struct {
	// ID is the trade identifier assigned by the exchange.
	ID string
	// OrderID is the identifier of the order this trade filled.
	OrderID string
	// Market is the canonical pair the trade happened on.
	Market Market
	// Side indicates buy or sell.
	Side Side
	// Time is when the trade was executed, in UTC.
	Time time.Time
	// Amount is the quantity of base currency traded.
	Amount decimal.Decimal
	// Price is the execution price in counter currency.
	Price decimal.Decimal
	// Fee is the trading fee charged.
	Fee decimal.Decimal
	// FeeCurrency is the currency the fee was charged in: the base
	// currency for buys, the counter currency for sells.
	FeeCurrency string
}

var errInvalidTrade = errors.New("invalid trade")

// Validate checks the trade invariants: amount and price are positive and
// the fee is not negative.
func (t Trade) Validate() error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount %s is not positive", errInvalidTrade, t.Amount)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("%w: price %s is not positive", errInvalidTrade, t.Price)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("%w: fee %s is negative", errInvalidTrade, t.Fee)
	}
	return nil
}

// GrossValue returns amount * price, the counter-currency value of the
// trade before fees.
func (t Trade) GrossValue() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}
