package wspool

import (
	"context"
	"fmt"
	"sync"

	"github.com/synapsetrade/core/domain"
)

// Normalizer is the per-exchange strategy-pattern implementation that
// turns a raw public-feed message into a canonical PriceQuote (spec.md
// §4.12). Grounded on the teacher's trader/vwap_collector.go message
// parsing, repurposed from VWAP inputs into plain quote production.
type Normalizer interface {
	Normalize(raw []byte) (PriceQuote, error)
}

// PriceQuote is the canonical public-feed tick (spec.md §4.12).
type PriceQuote struct {
	Exchange  domain.Exchange
	Symbol    string
	Price     string // decimal-string to avoid importing shopspring here; callers parse
	Timestamp int64
	Volume    *string
	Change24h *string
}

// PriceSink receives normalized quotes, typically backed by
// pricecache.Cache.Set.
type PriceSink interface {
	OnQuote(q PriceQuote)
}

// connKey addresses one connection: public feeds are keyed by exchange
// alone (one shared connection fans out many symbols); private feeds are
// keyed by account id.
type connKey struct {
	kind     string // "public" | "private"
	exchange domain.Exchange
	accountID int64
}

// Pool is the WebSocket Pool (spec.md §4.12).
type Pool struct {
	// connMu guards connections; the teacher's reentrant-lock convention
	// is approximated here since Go's sync.Mutex has no reentrant
	// variant — all connMu-holding call paths in this package are
	// structured to never re-enter.
	connMu      sync.Mutex
	connections map[connKey]*Connection

	// subMu is a separate, non-reentrant lock guarding the symbol
	// refcount map, per spec.md §4.12's explicit separation of the two
	// locks.
	subMu sync.Mutex
	subs  map[string]int // key: accountID:symbol -> refcount

	normalizers map[domain.Exchange]Normalizer
	sink        PriceSink
}

func New(sink PriceSink) *Pool {
	return &Pool{
		connections: map[connKey]*Connection{},
		subs:        map[string]int{},
		normalizers: map[domain.Exchange]Normalizer{},
		sink:        sink,
	}
}

func (p *Pool) RegisterNormalizer(ex domain.Exchange, n Normalizer) {
	p.normalizers[ex] = n
}

// ConnectPublic dials the public price feed for exchange and registers it
// ONLY after the handshake succeeds — the invariant spec.md §4.12 calls
// out as a previously-fixed critical bug: a failed handshake must never
// leave a ghost registry entry.
func (p *Pool) ConnectPublic(ctx context.Context, ex domain.Exchange, url string) (*Connection, error) {
	norm := p.normalizers[ex]
	conn := NewConnection(url, func(msg []byte) {
		if norm == nil || p.sink == nil {
			return
		}
		q, err := norm.Normalize(msg)
		if err != nil {
			return
		}
		p.sink.OnQuote(q)
	})

	if err := conn.Dial(ctx); err != nil {
		return nil, fmt.Errorf("wspool: public feed handshake failed for %s: %w", ex, err)
	}

	k := connKey{kind: "public", exchange: ex}
	p.connMu.Lock()
	p.connections[k] = conn
	p.connMu.Unlock()

	go conn.Run(ctx)
	return conn, nil
}

// ConnectPrivate dials the private account feed, same register-after-
// handshake discipline as ConnectPublic.
func (p *Pool) ConnectPrivate(ctx context.Context, accountID int64, url string, onFill func([]byte)) (*Connection, error) {
	conn := NewConnection(url, onFill)
	if err := conn.Dial(ctx); err != nil {
		return nil, fmt.Errorf("wspool: private feed handshake failed for account %d: %w", accountID, err)
	}
	k := connKey{kind: "private", accountID: accountID}
	p.connMu.Lock()
	p.connections[k] = conn
	p.connMu.Unlock()

	go conn.Run(ctx)
	return conn, nil
}

// GetPublic returns the registered public connection for ex, if any.
func (p *Pool) GetPublic(ex domain.Exchange) (*Connection, bool) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	c, ok := p.connections[connKey{kind: "public", exchange: ex}]
	return c, ok
}

// Remove deletes a connection from the registry. Nothing in this package
// calls it: neither Close nor an exhausted Reconnect removes a connection.
func (p *Pool) Remove(ex domain.Exchange, accountID int64, kind string) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	delete(p.connections, connKey{kind: kind, exchange: ex, accountID: accountID})
}

// Snapshot returns a copy of every registered connection's stats,
// never iterating the live map while holding it beyond the copy itself
// (spec.md §4.12).
func (p *Pool) Snapshot() map[string]Snapshot {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	out := make(map[string]Snapshot, len(p.connections))
	for k, c := range p.connections {
		label := fmt.Sprintf("%s:%s:%d", k.kind, k.exchange, k.accountID)
		out[label] = c.Stats()
	}
	return out
}

func subKey(accountID int64, symbol string) string {
	return fmt.Sprintf("%d:%s", accountID, symbol)
}

// SubscribeSymbol increments the (account, symbol) refcount; only the
// 0->1 transition actually sends a subscribe frame to the venue, via
// subscribeFn (spec.md §4.12 refcounting).
func (p *Pool) SubscribeSymbol(accountID int64, symbol string, subscribeFn func() error) error {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	k := subKey(accountID, symbol)
	if p.subs[k] == 0 {
		if err := subscribeFn(); err != nil {
			return err
		}
	}
	p.subs[k]++
	return nil
}

// UnsubscribeSymbol decrements the refcount; only the 1->0 transition
// sends the venue unsubscribe and removes the key (spec.md §4.12).
func (p *Pool) UnsubscribeSymbol(accountID int64, symbol string, unsubscribeFn func() error) error {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	k := subKey(accountID, symbol)
	if p.subs[k] == 0 {
		return nil
	}
	if p.subs[k] == 1 {
		if err := unsubscribeFn(); err != nil {
			return err
		}
		delete(p.subs, k)
		return nil
	}
	p.subs[k]--
	return nil
}

// RefCount returns the current refcount for (account, symbol), for tests
// and observability.
func (p *Pool) RefCount(accountID int64, symbol string) int {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	return p.subs[subKey(accountID, symbol)]
}
