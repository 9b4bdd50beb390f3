package orderqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synapsetrade/core/domain"
)

func TestDeriveCapacityBinanceFutures(t *testing.T) {
	// per_symbol=200 -> 20, per_account=10000 -> 1000, default 20 => min=20, clamp to 20
	c := DeriveCapacity(domain.Binance, domain.MarketFutures)
	assert.Equal(t, 20, c.MaxOrdersPerSide)
	assert.Equal(t, 10, c.MaxStopPerSide)
	assert.Equal(t, 10, c.MaxLimitPerSide)
}

func TestDeriveCapacityBinanceSpot(t *testing.T) {
	// per_symbol=25 -> 2, per_account=1000 -> 100, default 20 => min=2
	c := DeriveCapacity(domain.Binance, domain.MarketSpot)
	assert.Equal(t, 2, c.MaxOrdersPerSide)
	assert.Equal(t, 1, c.MaxStopPerSide)
	assert.Equal(t, 1, c.MaxLimitPerSide)
}

func TestDeriveCapacityUpbitUnboundedFallsBackToDefault(t *testing.T) {
	c := DeriveCapacity(domain.Upbit, domain.MarketSpot)
	assert.Equal(t, 20, c.MaxOrdersPerSide)
}

func TestDeriveCapacityBybitFuturesUnboundedAccount(t *testing.T) {
	// per_symbol=500 -> 50 (clamped to 20 by default cap), per_account unbounded -> ignored
	c := DeriveCapacity(domain.Bybit, domain.MarketFutures)
	assert.Equal(t, 20, c.MaxOrdersPerSide)
}

func TestDeriveCapacityUnknownVenueDefaults(t *testing.T) {
	c := DeriveCapacity(domain.Alpaca, domain.MarketSecurities)
	assert.Equal(t, 20, c.MaxOrdersPerSide)
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, Less(domain.OrderMarket, domain.OrderCancel))
	assert.True(t, Less(domain.OrderCancel, domain.OrderLimit))
	assert.True(t, Less(domain.OrderLimit, domain.OrderStopMarket))
	assert.True(t, Less(domain.OrderStopMarket, domain.OrderStopLimit))
	assert.Equal(t, 1, Priority(domain.OrderMarket))
	assert.Equal(t, 3, Priority(domain.OrderLimit))
}

func TestCapacityOneEdgeCaseGivesStopPriority(t *testing.T) {
	// Construct a synthetic single-unit capacity scenario directly.
	capVal := 1
	maxStop := capVal / 2
	maxLimit := capVal - maxStop
	if capVal == 1 {
		maxStop = 1
		maxLimit = 0
	}
	assert.Equal(t, 1, maxStop)
	assert.Equal(t, 0, maxLimit)
}
