package btce

import (
	"fmt"
	"strings"
	"time"

	"github.com/jayme-github/cryptex/internal/domain"
)

// pairToMarket converts a native pair string ("btc_usd") to the canonical
// market form.
func pairToMarket(pair string) (domain.Market, error) {
	base, counter, ok := strings.Cut(pair, "_")
	if !ok || base == "" || counter == "" {
		return domain.Market{}, fmt.Errorf("malformed pair %q", pair)
	}
	return domain.NewMarket(base, counter), nil
}

// marketToPair converts a canonical market to the native pair string.
func marketToPair(m domain.Market) string {
	return strings.ToLower(m.Base) + "_" + strings.ToLower(m.Counter)
}

// sideFromType maps the API's order/trade type string onto a side.
// Anything that is not "buy" is a sell, matching the API's two-valued
// field.
func sideFromType(t string) domain.Side {
	if t == "buy" {
		return domain.SideBuy
	}
	return domain.SideSell
}

// unixUTC converts an epoch-seconds timestamp to a UTC-aware time.
func unixUTC(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}
