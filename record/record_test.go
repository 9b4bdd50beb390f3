package record

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsetrade/core/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memTradeStore struct {
	mu             sync.Mutex
	trades         map[string]*domain.Trade
	nextID         int64
	raceOnce       bool
	signedQuantity decimal.Decimal
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{trades: map[string]*domain.Trade{}}
}

func tradeKey(accountID int64, orderID string) string {
	return orderID
}

func (s *memTradeStore) FindTrade(ctx context.Context, strategyAccountID int64, exchangeOrderID string) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[tradeKey(strategyAccountID, exchangeOrderID)]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memTradeStore) InsertTrade(ctx context.Context, t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tradeKey(t.StrategyAccountID, t.ExchangeOrderID)
	if s.raceOnce {
		s.raceOnce = false
		s.trades[k] = &domain.Trade{StrategyAccountID: t.StrategyAccountID, ExchangeOrderID: t.ExchangeOrderID, Quantity: dec("0.01"), Price: t.Price}
		return ErrUniqueViolation
	}
	s.nextID++
	t.ID = s.nextID
	cp := *t
	s.trades[k] = &cp
	return nil
}

func (s *memTradeStore) UpdateTrade(ctx context.Context, t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.trades[tradeKey(t.StrategyAccountID, t.ExchangeOrderID)] = &cp
	return nil
}

func (s *memTradeStore) CurrentSignedQuantity(ctx context.Context, strategyAccountID int64, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedQuantity, nil
}

func TestCreateTradeRecordInsertsNew(t *testing.T) {
	st := newMemTradeStore()
	m := New(st)
	out, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Symbol: "BTC/USDT", Side: domain.Buy,
		Quantity: dec("0.01"), Price: dec("50000"), OrderPrice: dec("50000"), OrderType: domain.OrderMarket,
	})
	require.NoError(t, err)
	assert.True(t, out.QuantityDelta.Equal(dec("0.01")))
	assert.False(t, out.DuplicatePrevented)
}

func TestCreateTradeRecordIdempotentPartialFillUpdate(t *testing.T) {
	st := newMemTradeStore()
	m := New(st)
	_, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Symbol: "BTC/USDT", Side: domain.Buy,
		Quantity: dec("0.01"), Price: dec("50000"), OrderPrice: dec("50000"), OrderType: domain.OrderMarket,
	})
	require.NoError(t, err)

	out, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Symbol: "BTC/USDT", Side: domain.Buy,
		Quantity: dec("0.02"), Price: dec("50005"), OrderPrice: dec("50000"), OrderType: domain.OrderMarket,
	})
	require.NoError(t, err)
	assert.True(t, out.QuantityDelta.Equal(dec("0.01")), "got %s", out.QuantityDelta)
	assert.True(t, out.Trade.Quantity.Equal(dec("0.02")))

	// A third call with identical values is a true no-op.
	out2, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Symbol: "BTC/USDT", Side: domain.Buy,
		Quantity: dec("0.02"), Price: dec("50005"), OrderPrice: dec("50000"), OrderType: domain.OrderMarket,
	})
	require.NoError(t, err)
	assert.True(t, out2.DuplicatePrevented)
}

// TestCreateTradeRecordUpdateClassifiesOnDeltaNotCumulative pins the
// update path to the partial-fill delta: CurrentSignedQuantity already
// reflects what this order's first partial fill contributed, so
// reclassifying against the full new cumulative quantity would subtract
// that contribution twice and can flip a closing fill into a
// misclassified new entry.
func TestCreateTradeRecordUpdateClassifiesOnDeltaNotCumulative(t *testing.T) {
	st := newMemTradeStore()
	st.signedQuantity = dec("0.05") // long 0.05 before this order's first fill
	m := New(st)

	_, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Symbol: "BTC/USDT", Side: domain.Sell,
		Quantity: dec("0.03"), Price: dec("50000"), OrderPrice: dec("50000"), OrderType: domain.OrderMarket,
	})
	require.NoError(t, err)

	// Position Manager applies the first fill: long 0.05 -> long 0.02.
	st.signedQuantity = dec("0.02")

	out, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Symbol: "BTC/USDT", Side: domain.Sell,
		Quantity: dec("0.05"), Price: dec("50000"), OrderPrice: dec("50000"), OrderType: domain.OrderMarket,
	})
	require.NoError(t, err)
	assert.True(t, out.QuantityDelta.Equal(dec("0.02")), "got %s", out.QuantityDelta)
	assert.False(t, out.Trade.IsEntry, "closing the remaining 0.02 of a long position is not a new entry")
}

func TestCreateTradeRecordRecoversFromUniqueViolationRace(t *testing.T) {
	st := newMemTradeStore()
	st.raceOnce = true
	m := New(st)
	out, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Symbol: "BTC/USDT", Side: domain.Buy,
		Quantity: dec("0.02"), Price: dec("50000"), OrderPrice: dec("50000"), OrderType: domain.OrderMarket,
	})
	require.NoError(t, err)
	assert.True(t, out.Trade.Quantity.Equal(dec("0.02")))
}

func TestCreateTradeRecordRejectsNonPositiveQuantity(t *testing.T) {
	st := newMemTradeStore()
	m := New(st)
	_, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Quantity: dec("0"), Price: dec("1"),
	})
	require.Error(t, err)
}

func TestPostCommitHookFailureIsSwallowed(t *testing.T) {
	st := newMemTradeStore()
	called := false
	m := New(st, func(ctx context.Context, tr *domain.Trade, pnl *decimal.Decimal) {
		called = true
		panic("boom")
	})
	_, err := m.CreateTradeRecord(context.Background(), CreateTradeRecordInput{
		StrategyAccountID: 1, ExchangeOrderID: "X1", Quantity: dec("0.01"), Price: dec("1"),
	})
	require.NoError(t, err)
	assert.True(t, called)
}
