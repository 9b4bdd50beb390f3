package quantity

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/quantize"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

type stubPriceSource struct {
	price decimal.Decimal
	err   error
}

func (s stubPriceSource) EffectivePrice(ctx context.Context, exchange domain.Exchange, market domain.MarketType, symbol string) (decimal.Decimal, error) {
	return s.price, s.err
}

func TestCalculatePercentageEntry(t *testing.T) {
	req := Request{
		OrderType:        domain.OrderMarket,
		Side:             domain.Buy,
		QtyPer:           ptr(dec("10")),
		Price:            ptr(dec("50000")),
		AllocatedCapital: dec("10000"),
		Leverage:         dec("1"),
		Precision:        quantize.Precision{StepSize: dec("0.00001")},
	}
	res, err := Calculate(context.Background(), nil, req)
	require.NoError(t, err)
	assert.True(t, res.Quantity.Equal(dec("0.02")), "got %s", res.Quantity)
	assert.True(t, res.EffectivePrice.Equal(dec("50000")))
}

func TestCalculatePercentageLiquidation(t *testing.T) {
	req := Request{
		OrderType:       domain.OrderMarket,
		Side:            domain.Sell,
		QtyPer:          ptr(dec("-200")), // caps at 100%
		Price:           ptr(dec("51000")),
		CurrentPosition: dec("0.01"),
		Precision:       quantize.Precision{StepSize: dec("0.00001")},
	}
	res, err := Calculate(context.Background(), nil, req)
	require.NoError(t, err)
	assert.True(t, res.Quantity.Equal(dec("0.01")))
}

func TestCalculateLiquidationWrongSideFails(t *testing.T) {
	req := Request{
		OrderType:       domain.OrderMarket,
		Side:            domain.Buy, // position is long; liquidating a long requires SELL
		QtyPer:          ptr(dec("-50")),
		Price:           ptr(dec("51000")),
		CurrentPosition: dec("0.01"),
		Precision:       quantize.Precision{},
	}
	_, err := Calculate(context.Background(), nil, req)
	require.Error(t, err)
	ee, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.QuantityCalculationError, ee.Kind)
}

func TestCalculateNoPositionToLiquidate(t *testing.T) {
	req := Request{
		OrderType: domain.OrderMarket,
		Side:      domain.Sell,
		QtyPer:    ptr(dec("-50")),
		Price:     ptr(dec("51000")),
	}
	_, err := Calculate(context.Background(), nil, req)
	require.Error(t, err)
}

func TestCalculateAbsoluteQtyRejectsNegative(t *testing.T) {
	req := Request{
		OrderType: domain.OrderMarket,
		Side:      domain.Buy,
		Qty:       ptr(dec("-1")),
		Price:     ptr(dec("100")),
	}
	_, err := Calculate(context.Background(), nil, req)
	require.Error(t, err)
}

func TestCalculateQtyPerWinsOverQtyWithWarning(t *testing.T) {
	req := Request{
		OrderType:        domain.OrderMarket,
		Side:             domain.Buy,
		Qty:              ptr(dec("5")),
		QtyPer:           ptr(dec("10")),
		Price:            ptr(dec("100")),
		AllocatedCapital: dec("1000"),
		Leverage:         dec("1"),
		Precision:        quantize.Precision{StepSize: dec("0.0001")},
	}
	res, err := Calculate(context.Background(), nil, req)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warning)
	assert.True(t, res.Quantity.Equal(dec("1")))
}

func TestDetermineEffectivePriceMarketPrefersWebhookPrice(t *testing.T) {
	req := Request{
		OrderType: domain.OrderMarket,
		Price:     ptr(dec("123.45")),
	}
	price, err := determineEffectivePrice(context.Background(), stubPriceSource{price: dec("999")}, req)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("123.45")))
}

func TestDetermineEffectivePriceMarketFallsBackToCache(t *testing.T) {
	req := Request{OrderType: domain.OrderMarket}
	price, err := determineEffectivePrice(context.Background(), stubPriceSource{price: dec("999")}, req)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("999")))
}

func TestDetermineEffectivePriceLimitRequiresPrice(t *testing.T) {
	req := Request{OrderType: domain.OrderLimit}
	_, err := determineEffectivePrice(context.Background(), nil, req)
	require.Error(t, err)
}

func TestDetermineEffectivePriceStopMarketUsesStopPrice(t *testing.T) {
	req := Request{OrderType: domain.OrderStopMarket, StopPrice: ptr(dec("77"))}
	price, err := determineEffectivePrice(context.Background(), nil, req)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("77")))
}
