package events

import (
	"context"
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

type fakeSink struct {
	orders     []OrderEvent
	positions  []PositionEvent
	batches    []OrderBatchEvent
}

func (f *fakeSink) PublishOrderEvent(userID int64, e OrderEvent)       { f.orders = append(f.orders, e) }
func (f *fakeSink) PublishPositionEvent(userID int64, e PositionEvent) { f.positions = append(f.positions, e) }
func (f *fakeSink) PublishBatchEvent(userID int64, e OrderBatchEvent)  { f.batches = append(f.batches, e) }

func TestExtractDisplayPriceMarketUnfilledIsZero(t *testing.T) {
	p, err := extractDisplayPrice(domain.OrderMarket, domain.StatusOpen, decimal.Zero, nil)
	require.NoError(t, err)
	assert.True(t, p.IsZero())
}

func TestExtractDisplayPriceMarketFilledRequiresPrice(t *testing.T) {
	_, err := extractDisplayPrice(domain.OrderMarket, domain.StatusFilled, decimal.Zero, nil)
	require.Error(t, err)

	p, err := extractDisplayPrice(domain.OrderMarket, domain.StatusFilled, dec("100"), nil)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("100")))
}

func TestExtractDisplayPriceStopMarketRequiresStopPrice(t *testing.T) {
	_, err := extractDisplayPrice(domain.OrderStopMarket, domain.StatusNew, decimal.Zero, nil)
	require.Error(t, err)

	sp := dec("95")
	p, err := extractDisplayPrice(domain.OrderStopMarket, domain.StatusNew, decimal.Zero, &sp)
	require.NoError(t, err)
	assert.True(t, p.Equal(dec("95")))
}

func TestExtractDisplayPriceLimitRequiresPrice(t *testing.T) {
	_, err := extractDisplayPrice(domain.OrderLimit, domain.StatusNew, decimal.Zero, nil)
	require.Error(t, err)
}

func TestEmitOrderEventsSmartUnpersistedEmitsFullQuantity(t *testing.T) {
	sink := &fakeSink{}
	e := New(sink)
	err := e.EmitOrderEventsSmart(context.Background(), FillContext{
		WasPersistedLocally: false,
		Order: OrderEvent{
			UserID: 1, OrderType: domain.OrderMarket, Status: domain.StatusFilled,
			Quantity: dec("0.02"), Price: dec("50000"),
		},
	})
	require.NoError(t, err)
	require.Len(t, sink.orders, 1)
	assert.True(t, sink.orders[0].Quantity.Equal(dec("0.02")))
	assert.Equal(t, "order_filled", sink.orders[0].EventType)
}

func TestEmitOrderEventsSmartPersistedEmitsDelta(t *testing.T) {
	sink := &fakeSink{}
	e := New(sink)
	err := e.EmitOrderEventsSmart(context.Background(), FillContext{
		WasPersistedLocally: true,
		PreviousFilledQty:   dec("0.01"),
		Order: OrderEvent{
			UserID: 1, OrderType: domain.OrderMarket, Status: domain.StatusFilled,
			Quantity: dec("0.02"), Price: dec("50000"),
		},
	})
	require.NoError(t, err)
	require.Len(t, sink.orders, 1)
	assert.True(t, sink.orders[0].Quantity.Equal(dec("0.01")))
}

func TestEmitOrderCancelledEventSkipsWhenUnresolvable(t *testing.T) {
	sink := &fakeSink{}
	e := New(sink)
	e.EmitOrderCancelledEvent(context.Background(), OrderEvent{UserID: 1}, false)
	assert.Empty(t, sink.orders)

	e.EmitOrderCancelledEvent(context.Background(), OrderEvent{UserID: 1, StrategyID: 5}, true)
	require.Len(t, sink.orders, 1)
	assert.Equal(t, "order_cancelled", sink.orders[0].EventType)
}
