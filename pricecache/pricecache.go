// Package pricecache implements the Price Cache (spec.md §4.4): a TTL
// cache of last prices keyed by (exchange, market, symbol), falling back
// to the Exchange Adapter's ticker on miss. Reads are lock-free via
// atomic snapshots; writers replace the entry with an unconditional
// atomic store (last write wins, no compare-and-swap).
package pricecache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
)

// TickerFetcher is the minimal capability the cache needs from an
// Exchange Adapter on a miss (spec.md §4.2 fetch_ticker).
type TickerFetcher interface {
	FetchTicker(ctx context.Context, market domain.MarketType, symbol string) (decimal.Decimal, error)
}

type entry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

type key struct {
	exchange domain.Exchange
	market   domain.MarketType
	symbol   string
}

// Cache is a TTL price cache. Zero value is not usable; use New.
type Cache struct {
	ttl     time.Duration
	entries sync.Map // key -> *atomic.Pointer[entry]
}

func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Detail is the observability-shaped return value for
// get_price(..., return_details=true) in spec.md §4.4.
type Detail struct {
	Price     decimal.Decimal
	Source    string // "cache" | "api"
	AgeSeconds float64
}

// Set eagerly repopulates the cache, as the WebSocket price feed does on
// every public-feed tick (spec.md §4.4 "eagerly repopulated by the
// WebSocket price feed when available").
func (c *Cache) Set(exchange domain.Exchange, market domain.MarketType, symbol string, price decimal.Decimal) {
	c.store(key{exchange, market, symbol}, price, time.Now())
}

// Get serves from cache when fresh. Otherwise, with fallbackToAPI it
// calls adapter.FetchTicker and populates the cache (spec.md §4.4);
// without it, it returns the stale entry if there is one, else errNoPrice.
func (c *Cache) Get(ctx context.Context, adapter TickerFetcher, exchange domain.Exchange, market domain.MarketType, symbol string, fallbackToAPI bool) (Detail, error) {
	k := key{exchange, market, symbol}
	if e, ok := c.load(k); ok && time.Since(e.fetchedAt) < c.ttl {
		return Detail{Price: e.price, Source: "cache", AgeSeconds: time.Since(e.fetchedAt).Seconds()}, nil
	}
	if !fallbackToAPI {
		if e, ok := c.load(k); ok {
			return Detail{Price: e.price, Source: "cache", AgeSeconds: time.Since(e.fetchedAt).Seconds()}, nil
		}
		return Detail{}, errNoPrice
	}
	price, err := adapter.FetchTicker(ctx, market, symbol)
	if err != nil {
		return Detail{}, err
	}
	now := time.Now()
	c.store(k, price, now)
	return Detail{Price: price, Source: "api", AgeSeconds: 0}, nil
}

func (c *Cache) load(k key) (entry, bool) {
	v, ok := c.entries.Load(k)
	if !ok {
		return entry{}, false
	}
	ptr := v.(*atomic.Pointer[entry])
	e := ptr.Load()
	if e == nil {
		return entry{}, false
	}
	return *e, true
}

func (c *Cache) store(k key, price decimal.Decimal, at time.Time) {
	e := &entry{price: price, fetchedAt: at}
	v, _ := c.entries.LoadOrStore(k, &atomic.Pointer[entry]{})
	ptr := v.(*atomic.Pointer[entry])
	ptr.Store(e)
}

type priceCacheError string

func (e priceCacheError) Error() string { return string(e) }

const errNoPrice = priceCacheError("pricecache: no cached price and fallback disabled")
