package domain

import "strings"

// Market identifies a tradeable instrument as an ordered pair of uppercase
// currency codes. Exchanges expose markets under their own native
// identifiers (pair strings, numeric ids); the adapters own the mapping
// between those identifiers and this canonical form.
type Market struct {
	// Base is the currency being bought or sold (e.g., "BTC").
	Base string
	// Counter is the currency the base is priced in (e.g., "USD").
	Counter string
}

// NewMarket builds a Market, uppercasing both currency codes.
func NewMarket(base, counter string) Market {
	return Market{
		Base:    strings.ToUpper(base),
		Counter: strings.ToUpper(counter),
	}
}

// String returns the canonical "BASE/COUNTER" form.
func (m Market) String() string {
	return m.Base + "/" + m.Counter
}
