// Package cryptsy provides a Cryptsy exchange adapter. Markets are
// identified natively by numeric market ids, timestamps arrive as
// exchange-local "YYYY-MM-DD HH:MM:SS" strings, and the createorder
// response deviates from the shared envelope shape.
package cryptsy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jayme-github/cryptex/internal/domain"
	"github.com/jayme-github/cryptex/internal/exchange/signed"
)

// TradeAPIURL is the Cryptsy authenticated API endpoint.
const TradeAPIURL = "https://api.cryptsy.com/api"

// ErrMarketNotFound is returned when a caller-supplied pair has no
// corresponding native market id.
var ErrMarketNotFound = errors.New("market not found")

// cryptsyLocation is the exchange-local timezone. The API offers no way
// to query it, so it is pinned to EST (UTC-5, no DST), which is what the
// server reports in practice.
var cryptsyLocation = time.FixedZone("EST", -5*60*60)

// timeLayout is the exchange's datetime string format.
const timeLayout = "2006-01-02 15:04:05"

// Adapter implements the exchange capability set against the Cryptsy
// API. It owns the credential state (nonce counter) and a lazily
// populated, immutable market-id map; markets change far less often than
// trades, so the map is fetched once per process lifetime and only
// invalidated by an explicit RefreshMarkets.
type Adapter struct {
	endpoint *signed.Endpoint
	logger   *zap.Logger

	marketsMu   sync.Mutex
	marketsByID map[string]domain.Market
	idsByMarket map[domain.Market]string
}

// Config holds configuration for creating a Cryptsy adapter.
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
	return NewAdapterWithBaseURL(TradeAPIURL, cfg)
}

// NewAdapterWithBaseURL creates an adapter against a custom API URL.
// This is primarily used for testing with mock servers.
func NewAdapterWithBaseURL(baseURL string, cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	endpoint := signed.NewEndpoint(signed.EndpointConfig{
		URL:       baseURL,
		Key:       cfg.APIKey,
		Secret:    cfg.APISecret,
		NonceSeed: cfg.NonceSeed,
		Quirks: signed.Quirks{
			NormalizeResponse: normalizeCreateOrder,
		},
		Logger: logger,
	})

	return &Adapter{
		endpoint: endpoint,
		logger:   logger,
	}
}

// normalizeCreateOrder repairs the createorder response, which places
// orderid and moreinfo at the top level instead of under "return".
func normalizeCreateOrder(method string, body []byte) []byte {
	if method != "createorder" {
		return body
	}

	var resp struct {
		Success  json.RawMessage `json:"success"`
		Error    string          `json:"error"`
		Return   json.RawMessage `json:"return"`
		OrderID  json.RawMessage `json:"orderid"`
		MoreInfo json.RawMessage `json:"moreinfo"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Return != nil || resp.OrderID == nil {
		return body
	}

	ret, err := json.Marshal(map[string]json.RawMessage{
		"orderid":  resp.OrderID,
		"moreinfo": resp.MoreInfo,
	})
	if err != nil {
		return body
	}

	envelope := map[string]json.RawMessage{
		"success": resp.Success,
		"return":  ret,
	}
	if resp.Error != "" {
		errMsg, _ := json.Marshal(resp.Error)
		envelope["error"] = errMsg
	}
	fixed, err := json.Marshal(envelope)
	if err != nil {
		return body
	}
	return fixed
}

// Name returns the exchange identifier.
func (a *Adapter) Name() string {
	return "cryptsy"
}

// convertTime converts an exchange-local datetime string to a UTC-aware
// time.
func convertTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, cryptsyLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return t.UTC(), nil
}

type marketRecord struct {
	MarketID  json.Number `json:"marketid"`
	Primary   string      `json:"primary_currency_code"`
	Secondary string      `json:"secondary_currency_code"`
}

// marketMaps returns the bidirectional marketid<->pair mapping, fetching
// it on first use. The populated maps are immutable and shared; only
// RefreshMarkets discards them.
func (a *Adapter) marketMaps(ctx context.Context) (map[string]domain.Market, map[domain.Market]string, error) {
	a.marketsMu.Lock()
	defer a.marketsMu.Unlock()

	if a.marketsByID != nil {
		return a.marketsByID, a.idsByMarket, nil
	}

	raw, err := a.endpoint.Do(ctx, "getmarkets", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("get markets: %w", err)
	}

	var records []marketRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil, fmt.Errorf("parse markets: %w", err)
	}

	byID := make(map[string]domain.Market, len(records))
	byMarket := make(map[domain.Market]string, len(records))
	for _, rec := range records {
		market := domain.NewMarket(rec.Primary, rec.Secondary)
		byID[rec.MarketID.String()] = market
		byMarket[market] = rec.MarketID.String()
	}

	a.marketsByID = byID
	a.idsByMarket = byMarket
	a.logger.Debug("market map populated", zap.Int("markets", len(byID)))
	return byID, byMarket, nil
}

// RefreshMarkets discards the cached market-id map so the next call
// re-fetches it.
func (a *Adapter) RefreshMarkets() {
	a.marketsMu.Lock()
	defer a.marketsMu.Unlock()
	a.marketsByID = nil
	a.idsByMarket = nil
}

// marketID maps a canonical pair to its native market id.
func (a *Adapter) marketID(ctx context.Context, market domain.Market) (string, error) {
	_, byMarket, err := a.marketMaps(ctx)
	if err != nil {
		return "", err
	}
	id, ok := byMarket[market]
	if !ok {
		return "", fmt.Errorf("%s: %w", market, ErrMarketNotFound)
	}
	return id, nil
}

// currencies maps a native market id back to its canonical pair.
func (a *Adapter) currencies(ctx context.Context, marketID string) (domain.Market, error) {
	byID, _, err := a.marketMaps(ctx)
	if err != nil {
		return domain.Market{}, err
	}
	market, ok := byID[marketID]
	if !ok {
		return domain.Market{}, fmt.Errorf("market id %s: %w", marketID, ErrMarketNotFound)
	}
	return market, nil
}

// GetMarkets returns the canonical pairs currently tradeable.
func (a *Adapter) GetMarkets(ctx context.Context) ([]domain.Market, error) {
	byID, _, err := a.marketMaps(ctx)
	if err != nil {
		return nil, err
	}

	markets := make([]domain.Market, 0, len(byID))
	for _, market := range byID {
		markets = append(markets, market)
	}
	return markets, nil
}

type tradeRecord struct {
	TradeID    json.Number     `json:"tradeid"`
	TradeType  string          `json:"tradetype"`
	DateTime   string          `json:"datetime"`
	MarketID   json.Number     `json:"marketid"`
	OrderID    json.Number     `json:"order_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	TradePrice decimal.Decimal `json:"tradeprice"`
	Fee        decimal.Decimal `json:"fee"`
}

// GetMyTrades returns the user's trade history across all markets. The
// fee is reported by the API and is always charged in counter currency.
func (a *Adapter) GetMyTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	raw, err := a.endpoint.Do(ctx, "allmytrades", params)
	if err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}

	var records []tradeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(records))
	for _, rec := range records {
		market, err := a.currencies(ctx, rec.MarketID.String())
		if err != nil {
			return nil, err
		}
		tradeTime, err := convertTime(rec.DateTime)
		if err != nil {
			return nil, err
		}

		side := domain.SideSell
		if rec.TradeType == "Buy" {
			side = domain.SideBuy
		}

		trades = append(trades, domain.Trade{
			ID:      rec.TradeID.String(),
			OrderID: rec.OrderID.String(),
			Market:  market,
			Side:    side,
			Time:    tradeTime,
			Amount:  rec.Quantity,
			Price:   rec.TradePrice,
			Fee:     rec.Fee,
			// Cryptsy takes its fee from counter currency for both
			// sides.
			FeeCurrency: market.Counter,
		})
	}
	return trades, nil
}

type openOrderRecord struct {
	OrderID   json.Number     `json:"orderid"`
	OrderType string          `json:"ordertype"`
	MarketID  json.Number     `json:"marketid"`
	Created   string          `json:"created"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// GetMyOpenOrders returns the currently resting orders across all
// markets.
func (a *Adapter) GetMyOpenOrders(ctx context.Context) ([]domain.Order, error) {
	raw, err := a.endpoint.Do(ctx, "allmyorders", nil)
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	var records []openOrderRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse open orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		market, err := a.currencies(ctx, rec.MarketID.String())
		if err != nil {
			return nil, err
		}
		created, err := convertTime(rec.Created)
		if err != nil {
			return nil, err
		}

		side := domain.SideSell
		if rec.OrderType == "Buy" {
			side = domain.SideBuy
		}

		orders = append(orders, domain.Order{
			ID:     rec.OrderID.String(),
			Market: market,
			Side:   side,
			Time:   created,
			Amount: rec.Quantity,
			Price:  rec.Price,
		})
	}
	return orders, nil
}

// CancelOrder cancels a resting order by its id.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	if _, err := a.endpoint.Do(ctx, "cancelorder", map[string]string{"orderid": orderID}); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// Buy places a limit buy order and returns the new order id.
func (a *Adapter) Buy(ctx context.Context, market domain.Market, amount, price decimal.Decimal) (string, error) {
	return a.createOrder(ctx, market, "Buy", amount, price)
}

// Sell places a limit sell order and returns the new order id.
func (a *Adapter) Sell(ctx context.Context, market domain.Market, amount, price decimal.Decimal) (string, error) {
	return a.createOrder(ctx, market, "Sell", amount, price)
}

func (a *Adapter) createOrder(ctx context.Context, market domain.Market, orderType string, amount, price decimal.Decimal) (string, error) {
	marketID, err := a.marketID(ctx, market)
	if err != nil {
		return "", err
	}

	params := map[string]string{
		"marketid":  marketID,
		"ordertype": orderType,
		"quantity":  amount.String(),
		"price":     price.String(),
	}

	raw, err := a.endpoint.Do(ctx, "createorder", params)
	if err != nil {
		return "", fmt.Errorf("create %s order on %s: %w", orderType, market, err)
	}

	var resp struct {
		OrderID json.Number `json:"orderid"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("parse order response: %w", err)
	}

	a.logger.Info("order created",
		zap.String("market", market.String()),
		zap.String("type", orderType),
		zap.String("order_id", resp.OrderID.String()))

	return resp.OrderID.String(), nil
}

type transactionRecord struct {
	TrxID    json.Number     `json:"trxid"`
	Type     string          `json:"type"`
	DateTime string          `json:"datetime"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Address  string          `json:"address"`
	Fee      decimal.Decimal `json:"fee"`
}

// GetMyTransactions returns deposits and withdrawals, including internal
// transfers. "Points" deposits are exchange credits, not real deposits,
// and come back as generic transactions.
func (a *Adapter) GetMyTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	raw, err := a.endpoint.Do(ctx, "mytransactions", nil)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	var records []transactionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}

	transactions := make([]domain.Transaction, 0, len(records))
	for _, rec := range records {
		kind := domain.KindGeneric
		switch rec.Type {
		case "Withdrawal":
			kind = domain.KindWithdrawal
		case "Deposit":
			if rec.Currency != "Points" {
				kind = domain.KindDeposit
			}
		}

		txTime, err := convertTime(rec.DateTime)
		if err != nil {
			return nil, err
		}

		fee := rec.Fee
		transactions = append(transactions, domain.Transaction{
			ID:       rec.TrxID.String(),
			Kind:     kind,
			Time:     txTime,
			Currency: rec.Currency,
			Amount:   rec.Amount,
			Address:  rec.Address,
			Fee:      &fee,
		})
	}

	transfers, err := a.getMyTransfers(ctx)
	if err != nil {
		return nil, err
	}
	transactions = append(transactions, transfers...)

	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

type transferRecord struct {
	Direction          string          `json:"direction"`
	Currency           string          `json:"currency"`
	Quantity           decimal.Decimal `json:"quantity"`
	To                 string          `json:"to"`
	Processed          json.Number     `json:"processed"`
	ProcessedTimestamp string          `json:"processed_timestamp"`
}

// getMyTransfers fetches Cryptsy's internal transfers and maps them onto
// deposits and withdrawals. The feed carries no transaction id, so a
// stable one is synthesized from the record's fields.
func (a *Adapter) getMyTransfers(ctx context.Context) ([]domain.Transaction, error) {
	raw, err := a.endpoint.Do(ctx, "mytransfers", nil)
	if err != nil {
		return nil, fmt.Errorf("get transfers: %w", err)
	}

	var records []transferRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse transfers: %w", err)
	}

	transfers := make([]domain.Transaction, 0, len(records))
	for _, rec := range records {
		if rec.Processed.String() != "1" {
			// Not processed yet, skip.
			continue
		}

		kind := domain.KindGeneric
		switch rec.Direction {
		case "in":
			kind = domain.KindDeposit
		case "out":
			kind = domain.KindWithdrawal
		}

		processed, err := convertTime(rec.ProcessedTimestamp)
		if err != nil {
			return nil, err
		}

		transfers = append(transfers, domain.Transaction{
			ID:       transferID(rec),
			Kind:     kind,
			Time:     processed,
			Currency: rec.Currency,
			Amount:   rec.Quantity,
			Address:  rec.To,
		})
	}
	return transfers, nil
}

// transferID synthesizes a stable identifier for a transfer record.
func transferID(rec transferRecord) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		rec.Direction, rec.Currency, rec.Quantity.String(), rec.To, rec.ProcessedTimestamp)
	return fmt.Sprintf("transfer-%016x", h.Sum64())
}

type getInfoResponse struct {
	BalancesAvailable map[string]decimal.Decimal `json:"balances_available"`
	ServerTimezone    string                     `json:"servertimezone"`
}

// GetMyFunds returns the available (not on orders) balance per currency,
// with uppercase currency codes.
func (a *Adapter) GetMyFunds(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := a.endpoint.Do(ctx, "getinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("get funds: %w", err)
	}

	var resp getInfoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse funds: %w", err)
	}

	funds := make(map[string]decimal.Decimal, len(resp.BalancesAvailable))
	for currency, value := range resp.BalancesAvailable {
		funds[strings.ToUpper(currency)] = value
	}
	return funds, nil
}
