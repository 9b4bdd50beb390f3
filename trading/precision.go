package trading

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/exchange"
	"github.com/synapsetrade/core/pricecache"
	"github.com/synapsetrade/core/quantize"
)

// tickerPriceSource adapts the Price Cache + an Exchange Adapter into
// quantity.PriceSource, so the Quantity Calculator never has to know
// about caching or tickers directly (spec.md §4.5(a)).
type tickerPriceSource struct {
	cache   *pricecache.Cache
	adapter exchange.Adapter
}

func (s *tickerPriceSource) EffectivePrice(ctx context.Context, ex domain.Exchange, market domain.MarketType, symbol string) (decimal.Decimal, error) {
	detail, err := s.cache.Get(ctx, s.adapter, ex, market, symbol, true)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return detail.Price, nil
}

type precisionKey struct {
	exchange domain.Exchange
	market   domain.MarketType
	symbol   string
}

// PrecisionCache memoizes exchange.Adapter.GetPrecision results — exchange
// filter tables change rarely, so unlike pricecache there is no TTL: once a
// key is stored it is served until the process exits.
type PrecisionCache struct {
	mu      sync.RWMutex
	entries map[precisionKey]quantize.Precision
}

func NewPrecisionCache() *PrecisionCache {
	return &PrecisionCache{entries: make(map[precisionKey]quantize.Precision)}
}

func (c *PrecisionCache) Get(ctx context.Context, adapter exchange.Adapter, market domain.MarketType, symbol string) (quantize.Precision, error) {
	key := precisionKey{exchange: adapter.Exchange(), market: market, symbol: symbol}

	c.mu.RLock()
	if p, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	raw, err := adapter.GetPrecision(ctx, market, symbol)
	if err != nil {
		return quantize.Precision{}, fmt.Errorf("trading: get_precision %s %s %s: %w", adapter.Exchange(), market, symbol, err)
	}
	p := quantize.Precision{
		StepSize:    raw.StepSize,
		TickSize:    raw.TickSize,
		MinQuantity: raw.MinQuantity,
		MinNotional: raw.MinNotional,
	}

	c.mu.Lock()
	c.entries[key] = p
	c.mu.Unlock()
	return p, nil
}
