package trading

import (
	"context"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/exchange"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/status"
)

// QueueStore is the subset of orderqueue.Store the promotion path needs
// directly (deleting a PendingOrder once it has been submitted).
type QueueStore interface {
	DeletePendingOrder(id int64) error
}

// PromotionResult is one outcome of PromoteQueued.
type PromotionResult struct {
	Order           *domain.PendingOrder
	Success         bool
	ExchangeOrderID string
	Error           string
}

// PromoteQueued implements the submission half of spec.md §4.6's queue
// promotion: orderqueue.Manager.Rebalance only decides which PendingOrders
// fit under capacity; this is the caller that actually submits them to
// the exchange, persists the resulting OpenOrder, and — for LIMIT/STOP
// orders accepted directly rather than polled to completion — registers
// the symbol in the WebSocket Pool's subscription refcount. The subscribe
// callback it passes is a no-op, so no subscribe frame is sent to the
// venue.
//
// Nothing in the repository schedules PromoteQueued; it runs only when a
// caller invokes it, and the webhook path does not.
func (c *Core) PromoteQueued(ctx context.Context, accountID int64, marketType domain.MarketType, sa *domain.StrategyAccount, symbol string, side domain.Side, queueStore QueueStore) ([]PromotionResult, error) {
	adapter, err := c.adapters.AdapterForAccount(ctx, accountID)
	if err != nil {
		return nil, errkind.Wrap(errkind.ExchangeError, "failed to resolve adapter for promotion", err)
	}

	candidates, err := c.queue.Rebalance(adapter.Exchange(), marketType, sa.ID, symbol, side)
	if err != nil {
		return nil, errkind.Wrap(errkind.InternalError, "failed to compute rebalance candidates", err)
	}

	results := make([]PromotionResult, 0, len(candidates))
	for _, cand := range candidates {
		if !cand.Promote {
			continue
		}
		results = append(results, c.submitPromoted(ctx, adapter, marketType, sa, cand.Order, queueStore))
	}
	return results, nil
}

func (c *Core) submitPromoted(ctx context.Context, adapter exchange.Adapter, marketType domain.MarketType, sa *domain.StrategyAccount, order *domain.PendingOrder, queueStore QueueStore) PromotionResult {
	res := PromotionResult{Order: order}

	submitted, err := adapter.CreateOrder(ctx, exchange.OrderRequest{
		Symbol: order.Symbol, Market: marketType, Side: order.Side, OrderType: order.OrderType,
		Quantity: order.Quantity, Price: order.Price, StopPrice: order.StopPrice,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	if err := queueStore.DeletePendingOrder(order.ID); err != nil {
		logger.Warnf("trading: submitted order %s but failed to delete pending_orders row %d: %v", submitted.ExchangeOrderID, order.ID, err)
	}

	canonicalStatus := status.Transform(string(submitted.Status), adapter.Exchange())
	if err := c.openOrders.CreateOpenOrderRecord(ctx, &domain.OpenOrder{
		ExchangeOrderID: submitted.ExchangeOrderID, StrategyAccountID: sa.ID, Symbol: order.Symbol,
		Side: order.Side, OrderType: order.OrderType, Quantity: order.Quantity, Price: order.Price,
		StopPrice: order.StopPrice, Status: canonicalStatus, MarketType: marketType,
	}); err != nil {
		logger.Warnf("trading: failed to persist OpenOrder for promoted order %s: %v", submitted.ExchangeOrderID, err)
	}

	if c.ws != nil {
		if err := c.ws.SubscribeSymbol(sa.AccountID, order.Symbol, func() error { return nil }); err != nil {
			logger.Warnf("trading: private WS subscription failed for account=%d symbol=%s: %v", sa.AccountID, order.Symbol, err)
		}
	}

	res.Success = true
	res.ExchangeOrderID = submitted.ExchangeOrderID
	return res
}
