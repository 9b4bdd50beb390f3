package position

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/quantize"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memStore struct {
	mu       sync.Mutex
	rows     map[string]*domain.StrategyPosition
	locked   map[string]bool
	forceContention bool
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*domain.StrategyPosition{}, locked: map[string]bool{}}
}

func keyOf(id int64, symbol string) string {
	return symbol
}

func (s *memStore) TryLockPosition(ctx context.Context, strategyAccountID int64, symbol string) (*domain.StrategyPosition, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(strategyAccountID, symbol)
	if s.forceContention {
		if row, ok := s.rows[k]; ok {
			return row, true, false, nil
		}
	}
	row, ok := s.rows[k]
	if !ok {
		return nil, false, false, nil
	}
	s.locked[k] = true
	cp := *row
	return &cp, true, true, nil
}

func (s *memStore) SavePosition(ctx context.Context, pos *domain.StrategyPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pos
	s.rows[keyOf(pos.StrategyAccountID, pos.Symbol)] = &cp
	return nil
}

func (s *memStore) DeletePosition(ctx context.Context, strategyAccountID int64, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, keyOf(strategyAccountID, symbol))
	return nil
}

func (s *memStore) UnlockPosition(ctx context.Context, strategyAccountID int64, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locked, keyOf(strategyAccountID, symbol))
}

func (s *memStore) GetPosition(ctx context.Context, strategyAccountID int64, symbol string) (*domain.StrategyPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[keyOf(strategyAccountID, symbol)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

var prec = quantize.Precision{StepSize: dec("0.00001"), MinQuantity: dec("0.00001")}

func TestUpdatePositionNewPosition(t *testing.T) {
	st := newMemStore()
	m := New(st, nil, nil)
	out, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Buy, dec("0.02"), dec("50000"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	require.NotNil(t, out.Position)
	assert.True(t, out.Position.Quantity.Equal(dec("0.02")))
	assert.True(t, out.Position.EntryPrice.Equal(dec("50000")))
}

func TestUpdatePositionWeightedAverage(t *testing.T) {
	st := newMemStore()
	m := New(st, nil, nil)
	_, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Buy, dec("1"), dec("100"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	out, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Buy, dec("1"), dec("200"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	assert.True(t, out.Position.Quantity.Equal(dec("2")))
	assert.True(t, out.Position.EntryPrice.Equal(dec("150")), "got %s", out.Position.EntryPrice)
}

func TestUpdatePositionRealizedPnLOnClose(t *testing.T) {
	st := newMemStore()
	m := New(st, nil, nil)
	_, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Buy, dec("0.01"), dec("50000"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	out, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Sell, dec("0.01"), dec("51000"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	assert.True(t, out.RealizedPnL.Equal(dec("10")), "got %s", out.RealizedPnL)
}

func TestUpdatePositionSignFlip(t *testing.T) {
	st := newMemStore()
	m := New(st, nil, nil)
	_, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Buy, dec("0.01"), dec("50000"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	out, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Sell, dec("0.03"), dec("51000"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	require.NotNil(t, out.Position)
	assert.True(t, out.Position.Quantity.Equal(dec("-0.02")))
	assert.True(t, out.Position.EntryPrice.Equal(dec("51000")))
	assert.True(t, out.RealizedPnL.Equal(dec("10")))
}

func TestUpdatePositionLockContentionSkip(t *testing.T) {
	st := newMemStore()
	st.rows["BTC/USDT"] = &domain.StrategyPosition{StrategyAccountID: 1, Symbol: "BTC/USDT", Quantity: dec("0.01"), EntryPrice: dec("50000")}
	st.forceContention = true
	m := New(st, nil, nil)
	out, err := m.UpdatePosition(context.Background(), 1, "BTC/USDT", domain.Buy, dec("0.01"), dec("50000"), prec, domain.PositionEventMeta{StrategyID: 1, UserID: 1, AccountID: 10})
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, "lock_contention", out.SkipReason)
}
