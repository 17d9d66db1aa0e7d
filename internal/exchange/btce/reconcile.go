package btce

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jayme-github/cryptex/internal/domain"
)

// The combined TransHistory feed discriminates record types numerically.
const (
	transTypeDeposit    = 1
	transTypeWithdrawal = 2
	transTypeCredit     = 4
	transTypeDebit      = 5
)

// addressMarker precedes the destination address in withdrawal
// descriptions.
const addressMarker = "address "

// TransRecord is one entry of the combined TransHistory feed. For trade
// records (types 4 and 5) the structured fields live only inside Desc;
// the trade's own identifier is absent entirely and must be recovered
// from the TradeHistory feed.
type TransRecord struct {
	Type      int             `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Desc      string          `json:"desc"`
	Status    int             `json:"status"`
	Timestamp int64           `json:"timestamp"`
}

// TradeRecord is one entry of the TradeHistory feed, keyed by trade id.
// The amount is kept as wire text because the reconciler compares it
// character-wise against display-rounded description amounts.
type TradeRecord struct {
	Pair      string          `json:"pair"`
	Type      string          `json:"type"`
	Amount    json.Number     `json:"amount"`
	Rate      decimal.Decimal `json:"rate"`
	OrderID   int64           `json:"order_id"`
	Timestamp int64           `json:"timestamp"`
}

// Trade descriptions embed their fields in a numeric-and-currency-code
// grammar, e.g. "0.5 BTC (-0.2%) :order:123: ... 100 USD". Sells carry an
// additional trailing "total <proceeds> <CUR>" segment.
var (
	buyDescPattern = regexp.MustCompile(
		`^(\d+(?:\.\d+)?) ([A-Z][A-Z0-9]*) \(-(\d+(?:\.\d+)?)%\) :order:(\d+):(?:.*?) (\d+(?:\.\d+)?) ([A-Z][A-Z0-9]*)$`)
	sellDescPattern = regexp.MustCompile(
		`^(\d+(?:\.\d+)?) ([A-Z][A-Z0-9]*) \(-(\d+(?:\.\d+)?)%\) :order:(\d+):(?:.*?) (\d+(?:\.\d+)?) ([A-Z][A-Z0-9]*)(?:.*?) total (\d+(?:\.\d+)?) ([A-Z][A-Z0-9]*)$`)
)

// ParsedTrade holds the structured fields recovered from a trade
// description.
type ParsedTrade struct {
	// Side is SideBuy when the buy pattern matched, SideSell for the
	// sell pattern.
	Side domain.Side
	// Amount is the base currency quantity. AmountText preserves the
	// exact digits of the description for trade-id disambiguation.
	Amount     decimal.Decimal
	AmountText string
	// BaseCurrency and CounterCurrency are the uppercase codes from the
	// description.
	BaseCurrency    string
	CounterCurrency string
	// FeePercent is the fee the description reports, in percent.
	FeePercent decimal.Decimal
	// OrderID is the originating order id.
	OrderID string
	// Price is the execution price in counter currency.
	Price decimal.Decimal
	// Total is the gross counter currency proceeds; sells only.
	Total decimal.Decimal
}

// ParseTradeDescription classifies a history description as a buy, a
// sell, or not a trade at all, and extracts the embedded fields. It is a
// pure function; trade-id recovery happens separately in Reconcile.
func ParseTradeDescription(desc string) (ParsedTrade, bool) {
	if m := sellDescPattern.FindStringSubmatch(desc); m != nil {
		parsed, err := newParsedTrade(domain.SideSell, m)
		if err != nil {
			return ParsedTrade{}, false
		}
		parsed.Total, err = decimal.NewFromString(m[7])
		if err != nil {
			return ParsedTrade{}, false
		}
		return parsed, true
	}
	if m := buyDescPattern.FindStringSubmatch(desc); m != nil {
		parsed, err := newParsedTrade(domain.SideBuy, m)
		if err != nil {
			return ParsedTrade{}, false
		}
		return parsed, true
	}
	return ParsedTrade{}, false
}

func newParsedTrade(side domain.Side, m []string) (ParsedTrade, error) {
	amount, err := decimal.NewFromString(m[1])
	if err != nil {
		return ParsedTrade{}, err
	}
	feePercent, err := decimal.NewFromString(m[3])
	if err != nil {
		return ParsedTrade{}, err
	}
	price, err := decimal.NewFromString(m[5])
	if err != nil {
		return ParsedTrade{}, err
	}
	return ParsedTrade{
		Side:            side,
		Amount:          amount,
		AmountText:      m[1],
		BaseCurrency:    m[2],
		CounterCurrency: m[6],
		FeePercent:      feePercent,
		OrderID:         m[4],
		Price:           price,
	}, nil
}

// Fee computes the trade fee from the parsed description. Buys pay in
// base currency on the amount; sells pay in counter currency on the
// gross proceeds.
func (p ParsedTrade) Fee() (decimal.Decimal, string) {
	hundred := decimal.NewFromInt(100)
	if p.Side == domain.SideBuy {
		return domain.Quantize(p.FeePercent.Mul(p.Amount).Div(hundred)), p.BaseCurrency
	}
	return domain.Quantize(p.FeePercent.Mul(p.Amount).Mul(p.Price).Div(hundred)), p.CounterCurrency
}

// ReconcileError reports a history record whose description matched a
// trade pattern but whose trade id could not be recovered from the trade
// feed. It is distinct from "not a trade record", which is dropped
// silently, so batch processing can report lost trades instead of hiding
// them.
type ReconcileError struct {
	// TransactionID is the history feed key of the failed record.
	TransactionID string
	// OrderID is the order id parsed from the description.
	OrderID string
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("no trade id found for transaction %s (order %s)", e.TransactionID, e.OrderID)
}

// Reconcile turns the combined TransHistory feed into well-typed
// transactions and trades. Deposits and withdrawals are mapped directly;
// trade records are parsed out of their descriptions and cross-referenced
// against the TradeHistory feed to recover the trade id. Per-record
// reconciliation failures are collected without aborting the batch, and
// both result slices preserve the feed's iteration order (which, being a
// map, is not sorted).
func Reconcile(history map[string]TransRecord, trades map[string]TradeRecord, wantTransactions, wantTrades bool) ([]domain.Transaction, []domain.Trade, []error) {
	var (
		transactions []domain.Transaction
		recovered    []domain.Trade
		errs         []error
	)

	for id, rec := range history {
		switch rec.Type {
		case transTypeDeposit:
			if !wantTransactions {
				continue
			}
			// The API reports no deposit fees.
			fee := decimal.Zero
			transactions = append(transactions, domain.Transaction{
				ID:       id,
				Kind:     domain.KindDeposit,
				Time:     time.Unix(rec.Timestamp, 0).UTC(),
				Currency: rec.Currency,
				Amount:   rec.Amount,
				Fee:      &fee,
			})
		case transTypeWithdrawal:
			if !wantTransactions {
				continue
			}
			transactions = append(transactions, domain.Transaction{
				ID:       id,
				Kind:     domain.KindWithdrawal,
				Time:     time.Unix(rec.Timestamp, 0).UTC(),
				Currency: rec.Currency,
				Amount:   rec.Amount,
				Address:  withdrawalAddress(rec.Desc),
			})
		case transTypeCredit, transTypeDebit:
			if !wantTrades {
				continue
			}
			parsed, ok := ParseTradeDescription(rec.Desc)
			if !ok {
				// Unparseable trade-typed records yield no output
				// rather than failing the batch.
				continue
			}
			tradeID, ok := matchTradeID(trades, rec.Timestamp, parsed.OrderID, parsed.AmountText)
			if !ok {
				errs = append(errs, &ReconcileError{TransactionID: id, OrderID: parsed.OrderID})
				continue
			}
			fee, feeCurrency := parsed.Fee()
			recovered = append(recovered, domain.Trade{
				ID:          tradeID,
				OrderID:     parsed.OrderID,
				Market:      domain.NewMarket(parsed.BaseCurrency, parsed.CounterCurrency),
				Side:        parsed.Side,
				Time:        time.Unix(rec.Timestamp, 0).UTC(),
				Amount:      parsed.Amount,
				Price:       parsed.Price,
				Fee:         fee,
				FeeCurrency: feeCurrency,
			})
		}
	}

	return transactions, recovered, errs
}

// matchTradeID recovers the trade id for a parsed description by
// filtering the trade feed on the exact (timestamp, order id) pair.
// Multiple fills of the same order in the same second are disambiguated
// by amount text: an exact match wins immediately; otherwise the
// candidate sharing the longest leading prefix with the parsed amount is
// kept, since the description amount may be display-rounded while the
// feed amount is exact. On equal scores the first candidate seen wins,
// in whatever order the feed iterates.
func matchTradeID(trades map[string]TradeRecord, timestamp int64, orderID, amountText string) (string, bool) {
	var bestID string
	best := -1
	for id, rec := range trades {
		if rec.Timestamp != timestamp || strconv.FormatInt(rec.OrderID, 10) != orderID {
			continue
		}
		candidate := rec.Amount.String()
		if candidate == amountText {
			return id, true
		}
		if n := commonPrefixLen(candidate, amountText); n > best {
			best = n
			bestID = id
		}
	}
	if best < 0 {
		return "", false
	}
	return bestID, true
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// withdrawalAddress extracts the destination address from a withdrawal
// description by taking everything after the "address " marker. The
// marker may legitimately sit at position 0; only a missing marker yields
// an empty string.
func withdrawalAddress(desc string) string {
	idx := strings.Index(desc, addressMarker)
	if idx < 0 {
		return ""
	}
	return desc[idx+len(addressMarker):]
}
