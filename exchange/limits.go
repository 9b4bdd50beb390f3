package exchange

import "github.com/synapsetrade/core/domain"

// VenueLimit is one row of the hard-coded Exchange Limits table
// (spec.md §6). A zero value for any bound means "unbounded" (∞ in the
// spec table) and must be treated as math.MaxInt in capacity derivation.
type VenueLimit struct {
	PerSymbol   int // 0 == unbounded
	PerAccount  int // 0 == unbounded
	Conditional int // 0 == unbounded
}

const unbounded = 0

// Unbounded reports whether n represents the table's "∞" entry.
func Unbounded(n int) bool { return n == unbounded }

// LimitKey addresses one row of LIMITS by (venue, market).
type LimitKey struct {
	Exchange domain.Exchange
	Market   domain.MarketType
}

// LIMITS reproduces spec.md §6's Exchange Limits table exactly.
// Implementers must not alter these numbers.
var LIMITS = map[LimitKey]VenueLimit{
	{domain.Binance, domain.MarketFutures}: {PerSymbol: 200, PerAccount: 10000, Conditional: 10},
	{domain.Binance, domain.MarketSpot}:    {PerSymbol: 25, PerAccount: 1000, Conditional: 5},
	{domain.Bybit, domain.MarketFutures}:   {PerSymbol: 500, PerAccount: unbounded, Conditional: 10},
	{domain.Bybit, domain.MarketSpot}:      {PerSymbol: unbounded, PerAccount: 500, Conditional: 30},
	{domain.OKX, domain.MarketFutures}:     {PerSymbol: 500, PerAccount: 4000, Conditional: unbounded},
	{domain.OKX, domain.MarketSpot}:        {PerSymbol: 500, PerAccount: 4000, Conditional: unbounded},
	{domain.Upbit, domain.MarketSpot}:      {PerSymbol: unbounded, PerAccount: unbounded, Conditional: 20},
}

// Lookup returns the VenueLimit row for (exchange, market). The bool is
// false when the venue/market combination isn't in the hard-coded table
// (e.g. an ALPACA securities account, which has no entry here and is
// governed by its own brokerage-level limits instead).
func Lookup(ex domain.Exchange, market domain.MarketType) (VenueLimit, bool) {
	v, ok := LIMITS[LimitKey{ex, market}]
	return v, ok
}
