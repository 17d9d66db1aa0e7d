// Package exchange defines the uniform capability set every exchange
// adapter provides, along with the Manager that coordinates multiple
// adapters. Adapters translate between the unified domain model and one
// exchange's REST surface.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/jayme-github/cryptex/internal/domain"
)

// ErrExchangeNotFound is returned when requesting an exchange that is not
// registered with the Manager.
var ErrExchangeNotFound = errors.New("exchange not found")

// Exchange is the capability set every exchange implementation satisfies.
// Every method that reaches the remote API maps canonical market pairs to
// the exchange's native identifiers (and back for results), converts
// exchange timestamps to UTC-aware times, and decodes every monetary
// field as an exact decimal. Calls are synchronous; retry and backoff on
// transport failures belong to the caller.
type Exchange interface {
	// Name returns the unique identifier of this exchange (e.g.,
	// "btce", "cryptsy").
	Name() string

	// GetMarkets returns the canonical pairs currently tradeable.
	GetMarkets(ctx context.Context) ([]domain.Market, error)

	// GetMyOpenOrders returns the currently resting, unfulfilled
	// orders.
	GetMyOpenOrders(ctx context.Context) ([]domain.Order, error)

	// GetMyTrades returns the user's executed trades. A limit of 0
	// means the exchange default.
	GetMyTrades(ctx context.Context, limit int) ([]domain.Trade, error)

	// CancelOrder cancels a resting order by its id.
	CancelOrder(ctx context.Context, orderID string) error

	// Buy places a limit buy order and returns the new order id.
	Buy(ctx context.Context, market domain.Market, amount, price decimal.Decimal) (string, error)

	// Sell places a limit sell order and returns the new order id.
	Sell(ctx context.Context, market domain.Market, amount, price decimal.Decimal) (string, error)

	// GetMyTransactions returns the user's deposits and withdrawals. A
	// limit of 0 means the exchange default.
	GetMyTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)

	// GetMyFunds returns the available balance per uppercase currency
	// code.
	GetMyFunds(ctx context.Context) (map[string]decimal.Decimal, error)
}
