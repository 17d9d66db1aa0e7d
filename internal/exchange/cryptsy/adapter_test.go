package cryptsy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayme-github/cryptex/internal/domain"
	"github.com/jayme-github/cryptex/internal/exchange/cryptsy"
)

const marketsResponse = `{"success": "1", "return": [
	{"marketid": "3", "primary_currency_code": "LTC", "secondary_currency_code": "BTC"},
	{"marketid": "132", "primary_currency_code": "DOGE", "secondary_currency_code": "BTC"}
]}`

// newTestAdapter builds an adapter backed by a server that dispatches on
// the posted method field and counts requests per method.
func newTestAdapter(t *testing.T, responses map[string]string) (*cryptsy.Adapter, map[string]int) {
	t.Helper()

	calls := make(map[string]int)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		method := r.PostFormValue("method")
		calls[method]++
		body, ok := responses[method]
		require.True(t, ok, "unexpected API method %q", method)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	adapter := cryptsy.NewAdapterWithBaseURL(server.URL, cryptsy.Config{
		APIKey:    "test-key",
		APISecret: "test-secret",
	})
	return adapter, calls
}

func TestAdapter_GetMarkets(t *testing.T) {
	t.Parallel()

	adapter, calls := newTestAdapter(t, map[string]string{
		"getmarkets": marketsResponse,
	})
	ctx := context.Background()

	markets, err := adapter.GetMarkets(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Market{
		domain.NewMarket("LTC", "BTC"),
		domain.NewMarket("DOGE", "BTC"),
	}, markets)

	// The market-id map is fetched once and reused.
	_, err = adapter.GetMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls["getmarkets"])

	adapter.RefreshMarkets()
	_, err = adapter.GetMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, calls["getmarkets"], "RefreshMarkets must discard the cached map")
}

func TestAdapter_GetMyTrades(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, map[string]string{
		"getmarkets": marketsResponse,
		"allmytrades": `{"success": "1", "return": [
			{"tradeid": "101", "tradetype": "Buy", "datetime": "2014-02-01 10:00:00",
			 "marketid": "3", "order_id": "55", "quantity": "2.5", "tradeprice": "0.025", "fee": "0.000125"}
		]}`,
	})

	trades, err := adapter.GetMyTrades(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, "101", trade.ID)
	assert.Equal(t, "55", trade.OrderID)
	assert.Equal(t, domain.NewMarket("LTC", "BTC"), trade.Market)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.True(t, trade.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, trade.Price.Equal(decimal.RequireFromString("0.025")))
	assert.True(t, trade.Fee.Equal(decimal.RequireFromString("0.000125")))
	assert.Equal(t, "BTC", trade.FeeCurrency, "the fee is charged in counter currency for both sides")

	// "2014-02-01 10:00:00" exchange-local (UTC-5) is 15:00 UTC.
	assert.Equal(t, time.Date(2014, 2, 1, 15, 0, 0, 0, time.UTC), trade.Time)
}

func TestAdapter_GetMyOpenOrders(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, map[string]string{
		"getmarkets": marketsResponse,
		"allmyorders": `{"success": "1", "return": [
			{"orderid": "7", "ordertype": "Sell", "marketid": "132",
			 "created": "2014-02-02 08:30:00", "quantity": "1000", "price": "0.0000015"}
		]}`,
	})

	orders, err := adapter.GetMyOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)

	order := orders[0]
	assert.Equal(t, "7", order.ID)
	assert.Equal(t, domain.NewMarket("DOGE", "BTC"), order.Market)
	assert.Equal(t, domain.SideSell, order.Side)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("1000")))
	assert.True(t, order.Price.Equal(decimal.RequireFromString("0.0000015")))
}

func TestAdapter_BuyNormalizesCreateOrderResponse(t *testing.T) {
	t.Parallel()

	// The createorder response places its fields at the top level
	// instead of under "return".
	adapter, _ := newTestAdapter(t, map[string]string{
		"getmarkets":  marketsResponse,
		"createorder": `{"success": "1", "orderid": "12345", "moreinfo": "Your Buy order has been placed."}`,
	})

	orderID, err := adapter.Buy(context.Background(),
		domain.NewMarket("LTC", "BTC"),
		decimal.RequireFromString("2.5"),
		decimal.RequireFromString("0.025"))
	require.NoError(t, err)
	assert.Equal(t, "12345", orderID)
}

func TestAdapter_BuyUnknownMarket(t *testing.T) {
	t.Parallel()

	adapter, calls := newTestAdapter(t, map[string]string{
		"getmarkets": marketsResponse,
	})

	_, err := adapter.Buy(context.Background(),
		domain.NewMarket("XXX", "YYY"),
		decimal.New(1, 0), decimal.New(1, 0))
	require.ErrorIs(t, err, cryptsy.ErrMarketNotFound)
	assert.Zero(t, calls["createorder"], "no order request may be sent for an unknown market")
}

func TestAdapter_CancelOrder(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, map[string]string{
		"cancelorder": `{"success": "1", "return": "Order 7 canceled."}`,
	})

	require.NoError(t, adapter.CancelOrder(context.Background(), "7"))
}

func TestAdapter_GetMyTransactions(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, map[string]string{
		"mytransactions": `{"success": "1", "return": [
			{"trxid": "t1", "type": "Deposit", "datetime": "2014-02-01 10:00:00",
			 "currency": "BTC", "amount": "1.5", "address": "1A2b3C", "fee": "0"},
			{"trxid": "t2", "type": "Deposit", "datetime": "2014-02-01 11:00:00",
			 "currency": "Points", "amount": "10", "address": "", "fee": "0"},
			{"trxid": "t3", "type": "Withdrawal", "datetime": "2014-02-01 12:00:00",
			 "currency": "LTC", "amount": "20", "address": "LabcDEF", "fee": "0.02"}
		]}`,
		"mytransfers": `{"success": "1", "return": [
			{"direction": "in", "currency": "DOGE", "quantity": "5000", "to": "user2",
			 "processed": "1", "processed_timestamp": "2014-02-03 09:00:00"},
			{"direction": "out", "currency": "DOGE", "quantity": "100", "to": "user3",
			 "processed": "0", "processed_timestamp": "2014-02-03 10:00:00"}
		]}`,
	})

	transactions, err := adapter.GetMyTransactions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, transactions, 4, "unprocessed transfers are excluded")

	byID := make(map[string]domain.Transaction)
	for _, tx := range transactions {
		byID[tx.ID] = tx
	}

	assert.Equal(t, domain.KindDeposit, byID["t1"].Kind)
	assert.Equal(t, domain.KindGeneric, byID["t2"].Kind, "Points deposits are exchange credits, not deposits")
	assert.Equal(t, domain.KindWithdrawal, byID["t3"].Kind)
	assert.Equal(t, "LabcDEF", byID["t3"].Address)
	require.NotNil(t, byID["t3"].Fee)
	assert.True(t, byID["t3"].Fee.Equal(decimal.RequireFromString("0.02")))

	delete(byID, "t1")
	delete(byID, "t2")
	delete(byID, "t3")
	require.Len(t, byID, 1)
	for _, transfer := range byID {
		assert.Equal(t, domain.KindDeposit, transfer.Kind)
		assert.Equal(t, "DOGE", transfer.Currency)
		assert.True(t, transfer.Amount.Equal(decimal.RequireFromString("5000")))
	}
}

func TestAdapter_GetMyTransactionsLimit(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, map[string]string{
		"mytransactions": `{"success": "1", "return": [
			{"trxid": "t1", "type": "Deposit", "datetime": "2014-02-01 10:00:00", "currency": "BTC", "amount": "1", "fee": "0"},
			{"trxid": "t2", "type": "Deposit", "datetime": "2014-02-01 11:00:00", "currency": "BTC", "amount": "2", "fee": "0"}
		]}`,
		"mytransfers": `{"success": "1", "return": []}`,
	})

	transactions, err := adapter.GetMyTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, transactions, 1, "the limit is applied client side")
}

func TestAdapter_GetMyFunds(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, map[string]string{
		"getinfo": `{"success": "1", "return": {
			"balances_available": {"BTC": "0.5", "ltc": "12", "DOGE": "0"},
			"servertimezone": "EST"
		}}`,
	})

	funds, err := adapter.GetMyFunds(context.Background())
	require.NoError(t, err)
	require.Len(t, funds, 3)

	assert.True(t, funds["BTC"].Equal(decimal.RequireFromString("0.5")))
	assert.True(t, funds["LTC"].Equal(decimal.RequireFromString("12")), "currency codes are uppercased")
	assert.True(t, funds["DOGE"].IsZero())
}
