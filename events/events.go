// Package events implements the Event Emitter (spec.md §4.11): typed SSE
// events for order lifecycle, position changes, and batch aggregates,
// with a strict (raise-not-silently-default) price extraction rule.
//
// Grounded on original_source/web_server/app/services/trading/
// event_emitter.py's _extract_display_price and emit_order_events_smart.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
)

// AccountRef is the embedded account identity carried on OrderEvent and
// PositionEvent (spec.md §4.11).
type AccountRef struct {
	AccountID int64
	Name      string
	Exchange  domain.Exchange
}

// OrderEvent mirrors spec.md §4.11's OrderEvent shape.
type OrderEvent struct {
	EventType string
	OrderID   string
	Symbol    string
	StrategyID int64
	UserID    int64
	Side      domain.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Status    domain.CanonicalStatus
	Timestamp time.Time
	OrderType domain.OrderType
	StopPrice *decimal.Decimal
	Account   AccountRef
}

// PositionEvent mirrors spec.md §4.11's PositionEvent shape.
type PositionEvent struct {
	EventType        string // position_created | position_updated | position_closed
	PositionID       int64
	Symbol           string
	StrategyID       int64
	UserID           int64
	Quantity         decimal.Decimal
	EntryPrice       decimal.Decimal
	Timestamp        time.Time
	PreviousQuantity *decimal.Decimal
	Account          AccountRef
}

// BatchSummary is one row of an OrderBatchEvent.
type BatchSummary struct {
	OrderType domain.OrderType
	Created   int
	Cancelled int
}

// OrderBatchEvent mirrors spec.md §4.11's OrderBatchEvent shape.
type OrderBatchEvent struct {
	Summaries  []BatchSummary
	StrategyID int64
	UserID     int64
	Timestamp  time.Time
}

// Sink is where emitted events go — the SSE fan-out registry
// (api/sse.go) in the full wiring; kept as an interface here so the
// Event Emitter's logic is independently testable.
type Sink interface {
	PublishOrderEvent(userID int64, e OrderEvent)
	PublishPositionEvent(userID int64, e PositionEvent)
	PublishBatchEvent(userID int64, e OrderBatchEvent)
}

// Emitter is the Event Emitter (spec.md §4.11).
type Emitter struct {
	sink Sink
}

func New(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// FillContext is everything EmitOrderEventsSmart needs to decide the
// smart-dispatch rule (spec.md §4.11).
type FillContext struct {
	WasPersistedLocally  bool // was this order previously stored as an OpenOrder?
	PreviousFilledQty     decimal.Decimal
	Order                 OrderEvent
}

// EmitOrderEventsSmart implements spec.md §4.11's smart dispatch rule:
// a fill on an order that was never persisted locally (fast MARKET)
// emits only order_filled with the full quantity; one that was persisted
// diffs filled_quantity against the stored value and emits the delta.
func (e *Emitter) EmitOrderEventsSmart(ctx context.Context, fc FillContext) error {
	price, err := extractDisplayPrice(fc.Order.OrderType, fc.Order.Status, fc.Order.Price, fc.Order.StopPrice)
	if err != nil {
		return err
	}
	evt := fc.Order
	evt.Price = price
	evt.EventType = "order_filled"

	if fc.WasPersistedLocally {
		delta := fc.Order.Quantity.Sub(fc.PreviousFilledQty)
		evt.Quantity = delta
	}

	e.sink.PublishOrderEvent(fc.Order.UserID, evt)
	return nil
}

// EmitOrderCancelledEvent resolves strategy_id via the caller-supplied
// OpenOrder lookup before emitting; per spec.md §4.11, if unresolvable it
// must skip emission rather than emit with strategy_id=0.
func (e *Emitter) EmitOrderCancelledEvent(ctx context.Context, evt OrderEvent, strategyIDResolved bool) {
	if !strategyIDResolved {
		return
	}
	evt.EventType = "order_cancelled"
	e.sink.PublishOrderEvent(evt.UserID, evt)
}

// EmitPendingOrderEvent emits order_created for a freshly-queued PendingOrder.
func (e *Emitter) EmitPendingOrderEvent(ctx context.Context, evt OrderEvent) {
	evt.EventType = "order_created"
	e.sink.PublishOrderEvent(evt.UserID, evt)
}

// EmitOrderBatchUpdate emits the aggregated summary for a multi-account signal.
func (e *Emitter) EmitOrderBatchUpdate(ctx context.Context, evt OrderBatchEvent) {
	e.sink.PublishBatchEvent(evt.UserID, evt)
}

// EmitPositionEvent implements position.EventEmitter so the Position
// Manager can call straight through without importing this package's
// Sink directly. meta.UserID is the actual SSE routing key — every
// position_created/updated/closed event must reach the user who owns
// the fill, never a shared bucket (spec.md §4.11, §6).
func (e *Emitter) EmitPositionEvent(ctx context.Context, eventType string, pos *domain.StrategyPosition, previousQuantity *decimal.Decimal, meta domain.PositionEventMeta) {
	e.sink.PublishPositionEvent(meta.UserID, PositionEvent{
		EventType:        eventType,
		PositionID:       pos.ID,
		Symbol:           pos.Symbol,
		StrategyID:       meta.StrategyID,
		UserID:           meta.UserID,
		Quantity:         pos.Quantity,
		EntryPrice:       pos.EntryPrice,
		Timestamp:        time.Now(),
		PreviousQuantity: previousQuantity,
		Account:          AccountRef{AccountID: meta.AccountID, Exchange: meta.Exchange},
	})
}

// extractDisplayPrice implements _extract_display_price exactly
// (spec.md §4.11, testable property #10):
//   - MARKET unfilled (NEW/OPEN)     -> 0, no error
//   - MARKET filled                  -> must have averagePrice (here: price)
//   - LIMIT / STOP_LIMIT             -> must have price (prefer adjusted, but
//                                        this package receives only the
//                                        resolved price, so a zero price is
//                                        the "missing" signal)
//   - STOP_MARKET                    -> must have stopPrice
//   - anything else                  -> error
func extractDisplayPrice(orderType domain.OrderType, status domain.CanonicalStatus, price decimal.Decimal, stopPrice *decimal.Decimal) (decimal.Decimal, error) {
	if orderType == domain.OrderMarket {
		if status == domain.StatusOpen || status == domain.StatusNew {
			return decimal.Zero, nil
		}
		if price.Sign() > 0 {
			return price, nil
		}
		return decimal.Zero, fmt.Errorf("events: MARKET order filled but average_price is missing")
	}

	if orderType == domain.OrderLimit || orderType == domain.OrderStopLimit {
		if price.Sign() > 0 {
			return price, nil
		}
		return decimal.Zero, fmt.Errorf("events: %s order missing price/adjusted_price/average_price", orderType)
	}

	if orderType == domain.OrderStopMarket {
		if stopPrice != nil && stopPrice.Sign() > 0 {
			return *stopPrice, nil
		}
		return decimal.Zero, fmt.Errorf("events: STOP_MARKET order missing stop_price")
	}

	return decimal.Zero, fmt.Errorf("events: unknown order type %s for price extraction", orderType)
}
