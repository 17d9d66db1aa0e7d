package btce

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jayme-github/cryptex/internal/domain"
	"github.com/jayme-github/cryptex/internal/exchange/signed"
)

// noOrdersMessage is the error string BTC-e uses to report an empty order
// list. It is translated into an empty result rather than propagated.
const noOrdersMessage = "no orders"

// Adapter implements the exchange capability set against the BTC-e trade
// API. It owns the credential state (nonce counter) for one API key and
// uses the public API for market listings and trade fees.
type Adapter struct {
	endpoint *signed.Endpoint
	public   *PublicClient
	logger   *zap.Logger
}

// Config holds configuration for creating a BTC-e adapter.
type Config struct {
	// APIKey is the public API key identifier.
	APIKey string
	// APISecret is the shared secret used for request signing.
	APISecret string
	// NonceSeed is the last nonce already consumed by this key; leave 0
	// for a fresh key.
	NonceSeed int64
	// Logger is the logger instance.
	Logger *zap.Logger
}

// NewAdapter creates an adapter against the production API.
func NewAdapter(cfg Config) *Adapter {
	return NewAdapterWithBaseURLs(TradeAPIURL, PublicBaseURL, cfg)
}

// NewAdapterWithBaseURLs creates an adapter against custom trade and
// public API URLs. This is primarily used for testing with mock servers.
func NewAdapterWithBaseURLs(tradeURL, publicURL string, cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	endpoint := signed.NewEndpoint(signed.EndpointConfig{
		URL:       tradeURL,
		Key:       cfg.APIKey,
		Secret:    cfg.APISecret,
		NonceSeed: cfg.NonceSeed,
		Quirks: signed.Quirks{
			TranslateError: translateNoOrders,
		},
		Logger: logger,
	})

	return &Adapter{
		endpoint: endpoint,
		public:   NewPublicClientWithBaseURL(publicURL, logger),
		logger:   logger,
	}
}

// translateNoOrders downgrades the "no orders" error into an empty result
// set, since it simply means there is nothing to list.
func translateNoOrders(_ string, message string) (json.RawMessage, bool) {
	if message == noOrdersMessage {
		return json.RawMessage(`{}`), true
	}
	return nil, false
}

// Name returns the exchange identifier.
func (a *Adapter) Name() string {
	return "btce"
}

// Public returns the public market data client the adapter uses.
func (a *Adapter) Public() *PublicClient {
	return a.public
}

// GetMarkets returns the canonical pairs currently tradeable.
func (a *Adapter) GetMarkets(ctx context.Context) ([]domain.Market, error) {
	info, err := a.public.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(info.Pairs))
	for pair := range info.Pairs {
		market, err := pairToMarket(pair)
		if err != nil {
			return nil, fmt.Errorf("get markets: %w", err)
		}
		markets = append(markets, market)
	}
	return markets, nil
}

type orderRecord struct {
	Pair             string          `json:"pair"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Rate             decimal.Decimal `json:"rate"`
	TimestampCreated int64           `json:"timestamp_created"`
}

// GetMyOpenOrders returns the currently resting orders. An empty order
// book is reported by the API as the error "no orders", which the
// endpoint quirk translates into an empty result.
func (a *Adapter) GetMyOpenOrders(ctx context.Context) ([]domain.Order, error) {
	raw, err := a.endpoint.Do(ctx, "ActiveOrders", nil)
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	var records map[string]orderRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse open orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(records))
	for id, rec := range records {
		market, err := pairToMarket(rec.Pair)
		if err != nil {
			return nil, fmt.Errorf("parse open orders: %w", err)
		}
		orders = append(orders, domain.Order{
			ID:     id,
			Market: market,
			Side:   sideFromType(rec.Type),
			Time:   unixUTC(rec.TimestampCreated),
			Amount: rec.Amount,
			Price:  rec.Rate,
		})
	}
	return orders, nil
}

// GetMyTrades returns the user's trade history. The trade fee is not part
// of the response; it is computed from the public fee endpoint, charged
// in base currency for buys and in counter currency for sells.
func (a *Adapter) GetMyTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	params := map[string]string{}
	if limit > 0 {
		params["count"] = strconv.Itoa(limit)
	}

	raw, err := a.endpoint.Do(ctx, "TradeHistory", params)
	if err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}

	var records map[string]TradeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(records))
	for id, rec := range records {
		trade, err := a.formatTrade(ctx, id, rec)
		if err != nil {
			return nil, fmt.Errorf("format trade %s: %w", id, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (a *Adapter) formatTrade(ctx context.Context, id string, rec TradeRecord) (domain.Trade, error) {
	market, err := pairToMarket(rec.Pair)
	if err != nil {
		return domain.Trade{}, err
	}

	amount, err := decimal.NewFromString(rec.Amount.String())
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse amount: %w", err)
	}

	feePercent, err := a.public.GetTradeFee(ctx, market, false)
	if err != nil {
		return domain.Trade{}, err
	}

	hundred := decimal.NewFromInt(100)
	side := sideFromType(rec.Type)

	var fee decimal.Decimal
	var feeCurrency string
	if side == domain.SideBuy {
		fee = domain.Quantize(feePercent.Mul(amount).Div(hundred))
		feeCurrency = market.Base
	} else {
		fee = domain.Quantize(feePercent.Mul(amount).Mul(rec.Rate).Div(hundred))
		feeCurrency = market.Counter
	}

	return domain.Trade{
		ID:          id,
		OrderID:     strconv.FormatInt(rec.OrderID, 10),
		Market:      market,
		Side:        side,
		Time:        unixUTC(rec.Timestamp),
		Amount:      amount,
		Price:       rec.Rate,
		Fee:         fee,
		FeeCurrency: feeCurrency,
	}, nil
}

// CancelOrder cancels a resting order by its id.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	if _, err := a.endpoint.Do(ctx, "CancelOrder", map[string]string{"order_id": orderID}); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

type createOrderResponse struct {
	Received decimal.Decimal `json:"received"`
	Remains  decimal.Decimal `json:"remains"`
	OrderID  int64           `json:"order_id"`
}

// Buy places a limit buy order and returns the new order id.
func (a *Adapter) Buy(ctx context.Context, market domain.Market, amount, price decimal.Decimal) (string, error) {
	return a.createOrder(ctx, market, "buy", amount, price)
}

// Sell places a limit sell order and returns the new order id.
func (a *Adapter) Sell(ctx context.Context, market domain.Market, amount, price decimal.Decimal) (string, error) {
	return a.createOrder(ctx, market, "sell", amount, price)
}

func (a *Adapter) createOrder(ctx context.Context, market domain.Market, orderType string, amount, price decimal.Decimal) (string, error) {
	params := map[string]string{
		"pair":   marketToPair(market),
		"type":   orderType,
		"amount": amount.String(),
		"rate":   price.String(),
	}

	raw, err := a.endpoint.Do(ctx, "Trade", params)
	if err != nil {
		return "", fmt.Errorf("create %s order on %s: %w", orderType, market, err)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("parse order response: %w", err)
	}

	a.logger.Info("order created",
		zap.String("market", market.String()),
		zap.String("type", orderType),
		zap.Int64("order_id", resp.OrderID))

	return strconv.FormatInt(resp.OrderID, 10), nil
}

// GetMyTransactions returns the deposits and withdrawals from the
// combined history feed. Trade-typed records are ignored here; use
// GetMyTransactionHistory to reconstruct trades as well.
func (a *Adapter) GetMyTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	history, err := a.transHistory(ctx, limit)
	if err != nil {
		return nil, err
	}

	transactions, _, _ := Reconcile(history, nil, true, false)
	return transactions, nil
}

// GetMyTransactionHistory returns both the deposits/withdrawals and the
// trades reconstructed from the combined history feed, cross-referencing
// the trade history to recover trade ids. Reconciliation failures are
// returned per record; the rest of the batch is unaffected.
func (a *Adapter) GetMyTransactionHistory(ctx context.Context, limit int) ([]domain.Transaction, []domain.Trade, []error, error) {
	history, err := a.transHistory(ctx, limit)
	if err != nil {
		return nil, nil, nil, err
	}

	raw, err := a.endpoint.Do(ctx, "TradeHistory", nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get trade history: %w", err)
	}
	var trades map[string]TradeRecord
	if err := json.Unmarshal(raw, &trades); err != nil {
		return nil, nil, nil, fmt.Errorf("parse trade history: %w", err)
	}

	transactions, recovered, errs := Reconcile(history, trades, true, true)
	for _, err := range errs {
		a.logger.Warn("trade reconciliation failed", zap.Error(err))
	}
	return transactions, recovered, errs, nil
}

func (a *Adapter) transHistory(ctx context.Context, limit int) (map[string]TransRecord, error) {
	params := map[string]string{}
	if limit > 0 {
		params["count"] = strconv.Itoa(limit)
	}

	raw, err := a.endpoint.Do(ctx, "TransHistory", params)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	var history map[string]TransRecord
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}
	return history, nil
}

type getInfoResponse struct {
	Funds map[string]decimal.Decimal `json:"funds"`
}

// GetMyFunds returns the available (not on orders) balance per currency,
// with uppercase currency codes.
func (a *Adapter) GetMyFunds(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := a.endpoint.Do(ctx, "getInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("get funds: %w", err)
	}

	var resp getInfoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse funds: %w", err)
	}

	funds := make(map[string]decimal.Decimal, len(resp.Funds))
	for currency, value := range resp.Funds {
		funds[strings.ToUpper(currency)] = value
	}
	return funds, nil
}
