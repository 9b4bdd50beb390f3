package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsetrade/core/config"
	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/events"
	"github.com/synapsetrade/core/exchange"
	"github.com/synapsetrade/core/openorder"
	"github.com/synapsetrade/core/orderqueue"
	"github.com/synapsetrade/core/position"
	"github.com/synapsetrade/core/pricecache"
	"github.com/synapsetrade/core/record"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// --- fakes ---

type fakeEntities struct {
	strategy *domain.Strategy
	accounts map[int64]*domain.Account
	links    []*domain.StrategyAccount
	capital  map[int64]*domain.StrategyCapital
	executions []*domain.TradeExecution
}

func (f *fakeEntities) GetStrategyByGroupName(ctx context.Context, groupName string) (*domain.Strategy, error) {
	if f.strategy != nil && f.strategy.GroupName == groupName {
		return f.strategy, nil
	}
	return nil, nil
}

func (f *fakeEntities) ValidTokensForStrategy(ctx context.Context, ownerUserID, strategyID int64, isPublic bool) (map[string]bool, error) {
	return map[string]bool{"valid-token": true}, nil
}

func (f *fakeEntities) ListActiveStrategyAccounts(ctx context.Context, strategyID int64) ([]*domain.StrategyAccount, error) {
	return f.links, nil
}

func (f *fakeEntities) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return f.accounts[id], nil
}

func (f *fakeEntities) GetStrategyCapital(ctx context.Context, strategyAccountID int64) (*domain.StrategyCapital, error) {
	return f.capital[strategyAccountID], nil
}

func (f *fakeEntities) InsertTradeExecution(ctx context.Context, e *domain.TradeExecution) error {
	f.executions = append(f.executions, e)
	return nil
}

type fakeAdapter struct {
	exchange  domain.Exchange
	precision exchange.Precision
	fillPrice decimal.Decimal
}

func (a *fakeAdapter) Exchange() domain.Exchange { return a.exchange }

func (a *fakeAdapter) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	return exchange.OrderResult{
		ExchangeOrderID:  "ex-1",
		Status:           domain.StatusFilled,
		FilledQuantity:   req.Quantity,
		AveragePrice:     a.fillPrice,
		AdjustedQuantity: req.Quantity,
		AdjustedPrice:    req.Price,
	}, nil
}

func (a *fakeAdapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error { return nil }

func (a *fakeAdapter) FetchOrder(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	return exchange.OrderResult{ExchangeOrderID: exchangeOrderID, Status: domain.StatusFilled}, nil
}

func (a *fakeAdapter) FetchOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	return nil, nil
}

func (a *fakeAdapter) FetchTicker(ctx context.Context, market domain.MarketType, symbol string) (decimal.Decimal, error) {
	return a.fillPrice, nil
}

func (a *fakeAdapter) FetchBalance(ctx context.Context) (decimal.Decimal, error) { return decimal.Zero, nil }

func (a *fakeAdapter) CreateBatchOrders(ctx context.Context, reqs []exchange.OrderRequest) ([]exchange.BatchOrderOutcome, error) {
	return nil, nil
}

func (a *fakeAdapter) GetPrecision(ctx context.Context, market domain.MarketType, symbol string) (exchange.Precision, error) {
	return a.precision, nil
}

type fakeAdapterSource struct {
	adapter exchange.Adapter
}

func (f *fakeAdapterSource) AdapterForAccount(ctx context.Context, accountID int64) (exchange.Adapter, error) {
	return f.adapter, nil
}

type memPositionStore struct {
	mu   sync.Mutex
	rows map[string]*domain.StrategyPosition
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{rows: map[string]*domain.StrategyPosition{}}
}

func (s *memPositionStore) key(id int64, symbol string) string {
	return symbol
}

func (s *memPositionStore) TryLockPosition(ctx context.Context, strategyAccountID int64, symbol string) (*domain.StrategyPosition, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[s.key(strategyAccountID, symbol)]
	if !ok {
		return nil, false, false, nil
	}
	cp := *row
	return &cp, true, true, nil
}

func (s *memPositionStore) SavePosition(ctx context.Context, pos *domain.StrategyPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pos
	s.rows[s.key(pos.StrategyAccountID, pos.Symbol)] = &cp
	return nil
}

func (s *memPositionStore) DeletePosition(ctx context.Context, strategyAccountID int64, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, s.key(strategyAccountID, symbol))
	return nil
}

func (s *memPositionStore) UnlockPosition(ctx context.Context, strategyAccountID int64, symbol string) {}

func (s *memPositionStore) GetPosition(ctx context.Context, strategyAccountID int64, symbol string) (*domain.StrategyPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[s.key(strategyAccountID, symbol)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

type memRecordStore struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade
	nextID int64
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{trades: map[string]*domain.Trade{}}
}

func (s *memRecordStore) FindTrade(ctx context.Context, strategyAccountID int64, exchangeOrderID string) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades[exchangeOrderID], nil
}

func (s *memRecordStore) InsertTrade(ctx context.Context, t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	cp := *t
	s.trades[t.ExchangeOrderID] = &cp
	return nil
}

func (s *memRecordStore) UpdateTrade(ctx context.Context, t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.trades[t.ExchangeOrderID] = &cp
	return nil
}

func (s *memRecordStore) CurrentSignedQuantity(ctx context.Context, strategyAccountID int64, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type memQueueStore struct {
	mu        sync.Mutex
	pending   []*domain.PendingOrder
	nextID    int64
	liveLimit int // stubbed CountLiveOpenOrders(..., OrderLimit) result, for capacity tests
}

func newMemQueueStore() *memQueueStore { return &memQueueStore{} }

func (s *memQueueStore) InsertPendingOrder(order *domain.PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	order.ID = s.nextID
	s.pending = append(s.pending, order)
	return nil
}

func (s *memQueueStore) ListPendingOrders(strategyAccountID int64, symbol string, side domain.Side) ([]*domain.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.PendingOrder
	for _, o := range s.pending {
		if o.StrategyAccountID == strategyAccountID && o.Symbol == symbol && o.Side == side {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memQueueStore) DeletePendingOrder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.pending {
		if o.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memQueueStore) CountLiveOpenOrders(strategyAccountID int64, symbol string, side domain.Side, orderType domain.OrderType) (int, error) {
	if orderType == domain.OrderLimit {
		return s.liveLimit, nil
	}
	return 0, nil
}

type memOpenOrderStore struct {
	mu   sync.Mutex
	rows map[string]*domain.OpenOrder
}

func newMemOpenOrderStore() *memOpenOrderStore {
	return &memOpenOrderStore{rows: map[string]*domain.OpenOrder{}}
}

func (s *memOpenOrderStore) InsertOpenOrder(ctx context.Context, o *domain.OpenOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.rows[o.ExchangeOrderID] = &cp
	return nil
}

func (s *memOpenOrderStore) UpdateOpenOrder(ctx context.Context, o *domain.OpenOrder) error {
	return s.InsertOpenOrder(ctx, o)
}

func (s *memOpenOrderStore) DeleteOpenOrder(ctx context.Context, exchangeOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, exchangeOrderID)
	return nil
}

func (s *memOpenOrderStore) GetOpenOrder(ctx context.Context, exchangeOrderID string) (*domain.OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[exchangeOrderID], nil
}

func (s *memOpenOrderStore) ListOpenOrders(ctx context.Context, filter openorder.ListFilter) ([]*domain.OpenOrder, error) {
	return nil, nil
}

func (s *memOpenOrderStore) ListOpenOrdersOlderThan(ctx context.Context, accountID int64, age time.Duration) ([]*domain.OpenOrder, error) {
	return nil, nil
}

type fakeSink struct {
	orderEvents []events.OrderEvent
}

func (s *fakeSink) PublishOrderEvent(userID int64, e events.OrderEvent)     { s.orderEvents = append(s.orderEvents, e) }
func (s *fakeSink) PublishPositionEvent(userID int64, e events.PositionEvent) {}
func (s *fakeSink) PublishBatchEvent(userID int64, e events.OrderBatchEvent) {}

type fakeWS struct{}

func (fakeWS) SubscribeSymbol(accountID int64, symbol string, subscribeFn func() error) error {
	return subscribeFn()
}

// newTestCore builds a fully wired Core over in-memory fakes, with a
// single account on a fake exchange that fills every MARKET order
// immediately at fillPrice.
func newTestCore(t *testing.T, fillPrice decimal.Decimal) (*Core, *fakeEntities, *fakeSink) {
	t.Helper()

	strategy := &domain.Strategy{ID: 1, GroupName: "demo", UserID: 1, IsActive: true, IsPublic: false, MarketType: domain.MarketSpot}
	entities := &fakeEntities{
		strategy: strategy,
		accounts: map[int64]*domain.Account{10: {ID: 10, UserID: 1, Exchange: domain.Binance, IsActive: true}},
		links:    []*domain.StrategyAccount{{ID: 100, StrategyID: 1, AccountID: 10, Leverage: dec("1")}},
		capital:  map[int64]*domain.StrategyCapital{100: {StrategyAccountID: 100, AllocatedCapital: dec("1000")}},
	}

	adapter := &fakeAdapter{
		exchange:  domain.Binance,
		fillPrice: fillPrice,
		precision: exchange.Precision{StepSize: dec("0.0001"), TickSize: dec("0.01"), MinQuantity: dec("0.0001"), MinNotional: dec("1")},
	}

	sink := &fakeSink{}
	emitter := events.New(sink)

	positions := position.New(newMemPositionStore(), noopReallocator{}, emitter)
	records := record.New(newMemRecordStore())
	openOrders := openorder.New(newMemOpenOrderStore(), &fakeAdapterSource{adapter: adapter})
	queue := orderqueue.New(newMemQueueStore())

	cfg := &config.Config{
		BatchAccountTimeout:    5 * time.Second,
		MarketOrderDelay:       0,
		MarketOrderRetryDelays: nil,
		MaxMarketOrderRetries:  0,
	}

	core := New(entities, &fakeAdapterSource{adapter: adapter}, NewPrecisionCache(), pricecache.New(time.Minute),
		queue, positions, records, openOrders, emitter, fakeWS{}, cfg)
	return core, entities, sink
}

type noopReallocator struct{}

func (noopReallocator) OnPositionClosed(ctx context.Context, strategyAccountID int64, symbol string) {}

func TestExecute_MarketOrderFillsAndUpdatesPosition(t *testing.T) {
	core, _, sink := newTestCore(t, dec("50000"))

	result, err := core.Execute(context.Background(), SignalRequest{
		GroupName: "demo",
		Token:     "valid-token",
		Orders: []SignalInput{
			{Symbol: "BTCUSDT", Side: domain.Buy, OrderType: domain.OrderMarket, QtyPer: func() *decimal.Decimal { d := dec("10"); return &d }()},
		},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, domain.StatusFilled, result.Results[0].Status)
	assert.Equal(t, 1, result.Summary.SuccessfulTrades)
	assert.Len(t, sink.orderEvents, 1)

	qty, err := core.positions.CurrentQuantity(context.Background(), 100, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, qty.Equal(dec("0.002")), "got %s", qty)
}

func TestExecute_UnknownStrategyIsRejected(t *testing.T) {
	core, _, _ := newTestCore(t, dec("50000"))

	_, err := core.Execute(context.Background(), SignalRequest{
		GroupName: "does-not-exist",
		Token:     "valid-token",
		Orders:    []SignalInput{{Symbol: "BTCUSDT", Side: domain.Buy, OrderType: domain.OrderMarket}},
	})

	assert.Error(t, err)
}

func TestExecute_InvalidTokenIsRejected(t *testing.T) {
	core, _, _ := newTestCore(t, dec("50000"))

	_, err := core.Execute(context.Background(), SignalRequest{
		GroupName: "demo",
		Token:     "wrong-token",
		Orders:    []SignalInput{{Symbol: "BTCUSDT", Side: domain.Buy, OrderType: domain.OrderMarket}},
	})

	assert.Error(t, err)
}

func TestExecute_QueuedOrderNeverHitsExchange(t *testing.T) {
	core, _, _ := newTestCore(t, dec("50000"))

	price := dec("49000")
	result, err := core.Execute(context.Background(), SignalRequest{
		GroupName: "demo",
		Token:     "valid-token",
		Orders: []SignalInput{
			{Symbol: "BTCUSDT", Side: domain.Buy, OrderType: domain.OrderLimit, Price: &price,
				QtyPer: func() *decimal.Decimal { d := dec("10"); return &d }()},
		},
	})

	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)
	assert.True(t, result.Results[0].Queued)
	assert.Equal(t, domain.StatusPending, result.Results[0].Status)
}
