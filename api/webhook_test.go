package api

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/trading"
)

func decPtr(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestToSignalRequest_SingleOrderPayload(t *testing.T) {
	p := webhookPayload{
		GroupName: "demo",
		Token:     "tok",
		orderPayload: orderPayload{
			Symbol: "BTCUSDT", Side: domain.Buy, OrderType: domain.OrderMarket, QtyPer: decPtr("10"),
		},
	}

	req := toSignalRequest(p)

	assert.Equal(t, "demo", req.GroupName)
	require.Len(t, req.Orders, 1)
	assert.Equal(t, "BTCUSDT", req.Orders[0].Symbol)
	assert.Equal(t, domain.Buy, req.Orders[0].Side)
}

func TestToSignalRequest_BatchPayloadIgnoresTopLevelOrder(t *testing.T) {
	p := webhookPayload{
		GroupName: "demo",
		Token:     "tok",
		orderPayload: orderPayload{Symbol: "SOLUSDT", Side: domain.Buy, OrderType: domain.OrderMarket},
		Orders: []orderPayload{
			{Symbol: "BTCUSDT", Side: domain.Buy, OrderType: domain.OrderMarket},
			{Symbol: "ETHUSDT", Side: domain.Sell, OrderType: domain.OrderMarket},
		},
	}

	req := toSignalRequest(p)

	require.Len(t, req.Orders, 2)
	assert.Equal(t, "BTCUSDT", req.Orders[0].Symbol)
	assert.Equal(t, "ETHUSDT", req.Orders[1].Symbol)
}

func TestToSignalRequest_EmptyPayloadYieldsNoOrders(t *testing.T) {
	req := toSignalRequest(webhookPayload{GroupName: "demo", Token: "tok"})

	assert.Empty(t, req.Orders)
}

func TestToResponse_MapsResultsAndTimings(t *testing.T) {
	result := trading.SignalResult{
		Action:     "BUY",
		Strategy:   "demo",
		MarketType: domain.MarketSpot,
		Success:    true,
		Results: []trading.AccountActionResult{
			{AccountID: 10, Symbol: "BTCUSDT", OrderType: domain.OrderMarket, Success: true, Status: domain.StatusFilled, ExchangeOrderID: "ex-1"},
			{AccountID: 11, Symbol: "BTCUSDT", OrderType: domain.OrderMarket, Success: false, Error: "insufficient funds", ErrorType: errkind.ExchangeError},
		},
		Summary: trading.Summary{TotalAccounts: 2, ExecutedAccounts: 2, SuccessfulTrades: 1, FailedTrades: 1},
	}

	resp := toResponse(result, 5*time.Millisecond, 2*time.Millisecond, 12*time.Millisecond)

	assert.Equal(t, "BUY", resp.Action)
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "ex-1", resp.Results[0].ExchangeOrderID)
	assert.Equal(t, "exchange_error", resp.Results[1].ErrorType)
	assert.Equal(t, 1, resp.Summary.SuccessfulTrades)
	assert.Equal(t, int64(12), resp.PerformanceMetrics.TotalProcessingTimeMS)
}
