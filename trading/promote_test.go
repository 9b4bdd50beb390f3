package trading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/orderqueue"
)

func TestPromoteQueued_PromotesOrderUnderCapacity(t *testing.T) {
	core, _, _ := newTestCore(t, dec("50000"))

	sa := &domain.StrategyAccount{ID: 100, StrategyID: 1, AccountID: 10, Leverage: dec("1")}
	qStore := newMemQueueStore()
	qStore.InsertPendingOrder(&domain.PendingOrder{
		StrategyAccountID: sa.ID, Symbol: "BTCUSDT", Side: domain.Buy,
		OrderType: domain.OrderLimit, Quantity: dec("0.01"), Price: dec("49000"),
	})
	core.queue = orderqueue.New(qStore)

	results, err := core.PromoteQueued(context.Background(), sa.AccountID, domain.MarketSpot, sa, "BTCUSDT", domain.Buy, qStore)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "ex-1", results[0].ExchangeOrderID)
	assert.Empty(t, qStore.pending, "promoted order must be removed from the pending queue")
}

func TestPromoteQueued_LeavesOrderQueuedAtCapacity(t *testing.T) {
	core, _, _ := newTestCore(t, dec("50000"))

	sa := &domain.StrategyAccount{ID: 100, StrategyID: 1, AccountID: 10, Leverage: dec("1")}
	qStore := newMemQueueStore()
	qStore.liveLimit = orderqueue.DeriveCapacity(domain.Binance, domain.MarketSpot).MaxLimitPerSide
	qStore.InsertPendingOrder(&domain.PendingOrder{
		StrategyAccountID: sa.ID, Symbol: "BTCUSDT", Side: domain.Buy,
		OrderType: domain.OrderLimit, Quantity: dec("0.01"), Price: dec("49000"),
	})
	core.queue = orderqueue.New(qStore)

	results, err := core.PromoteQueued(context.Background(), sa.AccountID, domain.MarketSpot, sa, "BTCUSDT", domain.Buy, qStore)

	require.NoError(t, err)
	assert.Len(t, results, 0)
	assert.Len(t, qStore.pending, 1, "order stays queued once the live-order capacity is already full")
}
