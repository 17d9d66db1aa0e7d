// Package btce provides a BTC-e exchange adapter. Markets are identified
// natively by lowercase pair strings ("btc_usd"), timestamps are Unix
// epoch seconds, and the combined transaction history buries executed
// trades inside free-text descriptions that the reconciler recovers.
package btce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jayme-github/cryptex/internal/domain"
	"github.com/jayme-github/cryptex/internal/exchange/signed"
)

const (
	// PublicBaseURL is the BTC-e public API endpoint.
	PublicBaseURL = "https://btc-e.com/api/3"
	// TradeAPIURL is the BTC-e trade (authenticated) API endpoint.
	TradeAPIURL = "https://btc-e.com/tapi"

	// maxPublicLimit is the largest record count the public API accepts.
	maxPublicLimit = 2000
)

// PublicClient queries the unauthenticated BTC-e market data API. The
// server caches all responses for two seconds; trade fees additionally
// get a local per-market cache because they change essentially never.
type PublicClient struct {
	endpoint *signed.Public
	logger   *zap.Logger

	feeMu    sync.Mutex
	feeCache map[string]decimal.Decimal
}

// NewPublicClient creates a client for the production public API.
func NewPublicClient(logger *zap.Logger) *PublicClient {
	return NewPublicClientWithBaseURL(PublicBaseURL, logger)
}

// NewPublicClientWithBaseURL creates a public client against a custom base
// URL. This is primarily used for testing with mock servers.
func NewPublicClientWithBaseURL(baseURL string, logger *zap.Logger) *PublicClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicClient{
		endpoint: signed.NewPublic(baseURL, logger),
		logger:   logger,
		feeCache: make(map[string]decimal.Decimal),
	}
}

// Info describes the currently active pairs and the server time.
type Info struct {
	// ServerTime is the exchange clock, in UTC.
	ServerTime time.Time
	// Pairs maps native pair strings to their trading constraints.
	Pairs map[string]PairInfo
}

// PairInfo holds the trading constraints of one pair.
type PairInfo struct {
	// DecimalPlaces is the price precision of the pair.
	DecimalPlaces int
	// MinPrice and MaxPrice bound accepted order prices.
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	// MinAmount is the smallest accepted order quantity.
	MinAmount decimal.Decimal
	// Hidden marks pairs not shown on the website.
	Hidden bool
	// Fee is the trade fee for the pair, in percent.
	Fee decimal.Decimal
}

type infoResponse struct {
	ServerTime int64                       `json:"server_time"`
	Pairs      map[string]pairInfoResponse `json:"pairs"`
}

type pairInfoResponse struct {
	DecimalPlaces int             `json:"decimal_places"`
	MinPrice      decimal.Decimal `json:"min_price"`
	MaxPrice      decimal.Decimal `json:"max_price"`
	MinAmount     decimal.Decimal `json:"min_amount"`
	Hidden        int             `json:"hidden"`
	Fee           decimal.Decimal `json:"fee"`
}

// GetInfo returns the active pairs and their constraints.
func (c *PublicClient) GetInfo(ctx context.Context) (*Info, error) {
	raw, err := c.endpoint.Get(ctx, "info", nil)
	if err != nil {
		return nil, fmt.Errorf("get info: %w", err)
	}

	var resp infoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse info: %w", err)
	}

	info := &Info{
		ServerTime: time.Unix(resp.ServerTime, 0).UTC(),
		Pairs:      make(map[string]PairInfo, len(resp.Pairs)),
	}
	for pair, p := range resp.Pairs {
		info.Pairs[pair] = PairInfo{
			DecimalPlaces: p.DecimalPlaces,
			MinPrice:      p.MinPrice,
			MaxPrice:      p.MaxPrice,
			MinAmount:     p.MinAmount,
			Hidden:        p.Hidden == 1,
			Fee:           p.Fee,
		}
	}
	return info, nil
}

// Ticker describes the last 24 hours of trading on one pair.
type Ticker struct {
	High    decimal.Decimal
	Low     decimal.Decimal
	Avg     decimal.Decimal
	Vol     decimal.Decimal
	VolCur  decimal.Decimal
	Last    decimal.Decimal
	Buy     decimal.Decimal
	Sell    decimal.Decimal
	Updated time.Time
}

type tickerResponse struct {
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Avg     decimal.Decimal `json:"avg"`
	Vol     decimal.Decimal `json:"vol"`
	VolCur  decimal.Decimal `json:"vol_cur"`
	Last    decimal.Decimal `json:"last"`
	Buy     decimal.Decimal `json:"buy"`
	Sell    decimal.Decimal `json:"sell"`
	Updated int64           `json:"updated"`
}

// GetTicker returns the 24h ticker for a market.
func (c *PublicClient) GetTicker(ctx context.Context, market domain.Market) (*Ticker, error) {
	pair := marketToPair(market)
	raw, err := c.getMarketInfo(ctx, "ticker", pair, 0)
	if err != nil {
		return nil, err
	}

	var resp tickerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse ticker: %w", err)
	}

	return &Ticker{
		High:    resp.High,
		Low:     resp.Low,
		Avg:     resp.Avg,
		Vol:     resp.Vol,
		VolCur:  resp.VolCur,
		Last:    resp.Last,
		Buy:     resp.Buy,
		Sell:    resp.Sell,
		Updated: time.Unix(resp.Updated, 0).UTC(),
	}, nil
}

// PublicTrade is one entry of the public recent-trades feed.
type PublicTrade struct {
	Type      string
	Price     decimal.Decimal
	Amount    decimal.Decimal
	TID       int64
	Timestamp time.Time
}

type publicTradeResponse struct {
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	TID       int64           `json:"tid"`
	Timestamp int64           `json:"timestamp"`
}

// GetTrades returns the latest public trades on a market, newest first.
// Limit caps the number of records (default 150, maximum 2000).
func (c *PublicClient) GetTrades(ctx context.Context, market domain.Market, limit int) ([]PublicTrade, error) {
	raw, err := c.getMarketInfo(ctx, "trades", marketToPair(market), limit)
	if err != nil {
		return nil, err
	}

	var resp []publicTradeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}

	trades := make([]PublicTrade, 0, len(resp))
	for _, t := range resp {
		trades = append(trades, PublicTrade{
			Type:      t.Type,
			Price:     t.Price,
			Amount:    t.Amount,
			TID:       t.TID,
			Timestamp: time.Unix(t.Timestamp, 0).UTC(),
		})
	}
	return trades, nil
}

// GetTradeFee returns the trade fee for a market in percent. The value is
// cached per market; pass forceUpdate to bypass the cache.
func (c *PublicClient) GetTradeFee(ctx context.Context, market domain.Market, forceUpdate bool) (decimal.Decimal, error) {
	pair := marketToPair(market)

	c.feeMu.Lock()
	fee, cached := c.feeCache[pair]
	c.feeMu.Unlock()
	if cached && !forceUpdate {
		return fee, nil
	}

	raw, err := c.getMarketInfo(ctx, "fee", pair, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if err := json.Unmarshal(raw, &fee); err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse fee: %w", err)
	}

	c.feeMu.Lock()
	c.feeCache[pair] = fee
	c.feeMu.Unlock()

	return fee, nil
}

// getMarketInfo requests a per-market method ("ticker", "fee", "trades")
// and unwraps the pair-keyed object the public API responds with.
func (c *PublicClient) getMarketInfo(ctx context.Context, method, pair string, limit int) (json.RawMessage, error) {
	params := url.Values{}
	if limit > 0 {
		if limit > maxPublicLimit {
			return nil, fmt.Errorf("limit %d exceeds maximum of %d", limit, maxPublicLimit)
		}
		params.Set("limit", strconv.Itoa(limit))
	}
	params.Set("ignore_invalid", "1")

	raw, err := c.endpoint.Get(ctx, method+"/"+pair, params)
	if err != nil {
		return nil, fmt.Errorf("get %s for %s: %w", method, pair, err)
	}

	var byPair map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byPair); err != nil {
		return nil, fmt.Errorf("parse %s: %w", method, err)
	}
	result, ok := byPair[pair]
	if !ok {
		return nil, fmt.Errorf("pair %s missing from %s response", pair, method)
	}
	return result, nil
}
