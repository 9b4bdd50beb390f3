// Package openorder implements the Order Manager (spec.md §4.10):
// OpenOrder persistence, cancellation (by id / by filter / all), and
// periodic reconciliation with the exchange.
package openorder

import (
	"context"
	"time"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/exchange"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/status"
)

// Store is the persistence capability the Order Manager needs.
type Store interface {
	InsertOpenOrder(ctx context.Context, o *domain.OpenOrder) error
	UpdateOpenOrder(ctx context.Context, o *domain.OpenOrder) error
	DeleteOpenOrder(ctx context.Context, exchangeOrderID string) error
	GetOpenOrder(ctx context.Context, exchangeOrderID string) (*domain.OpenOrder, error)
	ListOpenOrders(ctx context.Context, filter ListFilter) ([]*domain.OpenOrder, error)
	// ListOpenOrdersOlderThan is scoped to accountID — the reconciler
	// must never fetch another account's stale orders through this
	// account's adapter (spec.md §4.10).
	ListOpenOrdersOlderThan(ctx context.Context, accountID int64, age time.Duration) ([]*domain.OpenOrder, error)
}

// ListFilter mirrors cancel_all_orders_by_user's filter parameters
// (spec.md §4.10).
type ListFilter struct {
	UserID     int64
	StrategyID int64
	AccountID  *int64
	Symbol     *string
	Side       *domain.Side
}

// Manager is the Order Manager (spec.md §4.10).
type Manager struct {
	store    Store
	adapters AdapterResolver
}

// AdapterResolver looks up the Exchange Adapter for a given account so the
// Order Manager can call CancelOrder/FetchOrder without owning account
// credentials directly.
type AdapterResolver interface {
	AdapterForAccount(ctx context.Context, accountID int64) (exchange.Adapter, error)
}

func New(store Store, adapters AdapterResolver) *Manager {
	return &Manager{store: store, adapters: adapters}
}

// CreateOpenOrderRecord inserts an OpenOrder only for non-terminal
// statuses (spec.md §4.10).
func (m *Manager) CreateOpenOrderRecord(ctx context.Context, o *domain.OpenOrder) error {
	if o.Status.IsTerminal() {
		return nil
	}
	return m.store.InsertOpenOrder(ctx, o)
}

// UpdateOpenOrderStatus reconciles local state from an authoritative
// exchange result; on terminal status it deletes the OpenOrder, leaving
// Record/Position Managers to apply the fill (spec.md §4.10).
func (m *Manager) UpdateOpenOrderStatus(ctx context.Context, exchangeOrderID string, result exchange.OrderResult) error {
	if result.Status.IsTerminal() {
		return m.store.DeleteOpenOrder(ctx, exchangeOrderID)
	}
	o, err := m.store.GetOpenOrder(ctx, exchangeOrderID)
	if err != nil {
		return err
	}
	if o == nil {
		return nil
	}
	o.Status = result.Status
	o.FilledQuantity = result.FilledQuantity
	o.UpdatedAt = time.Now()
	return m.store.UpdateOpenOrder(ctx, o)
}

// CancelledOrder summarizes one successfully-cancelled order. This is the
// spec.md §9 point 2 Open Question decision: cancel_all_orders_by_user
// always returns a list of these, never an int, resolving the source's
// type-polymorphic ambiguity.
type CancelledOrder struct {
	ExchangeOrderID string
	Symbol          string
}

// FailedCancellation summarizes one cancel attempt that failed.
type FailedCancellation struct {
	ExchangeOrderID string
	Symbol          string
	Error           string
}

// CancelOrder calls the Exchange Adapter, updates local state, and is the
// single-order building block cancel_all_orders_by_user uses per
// candidate (spec.md §4.10).
func (m *Manager) CancelOrder(ctx context.Context, accountID int64, symbol, exchangeOrderID string) error {
	adapter, err := m.adapters.AdapterForAccount(ctx, accountID)
	if err != nil {
		return errkind.Wrap(errkind.ExchangeError, "failed to resolve adapter for account", err)
	}
	if err := adapter.CancelOrder(ctx, symbol, exchangeOrderID); err != nil {
		return errkind.Wrap(errkind.ExchangeError, "exchange rejected cancel", err)
	}
	if err := m.store.DeleteOpenOrder(ctx, exchangeOrderID); err != nil {
		logger.Warnf("openorder: cancelled %s on exchange but failed to delete local row: %v", exchangeOrderID, err)
	}
	return nil
}

// CancelAllResult is the always-a-list result shape mandated by the
// spec.md §9 point 2 decision.
type CancelAllResult struct {
	Success   bool
	Cancelled []CancelledOrder
	Failed    []FailedCancellation
}

// CancelAllOrdersByUser enumerates OpenOrders matching filter and cancels
// each independently — one failure never aborts the rest (spec.md §4.10).
func (m *Manager) CancelAllOrdersByUser(ctx context.Context, accountID int64, filter ListFilter) (CancelAllResult, error) {
	orders, err := m.store.ListOpenOrders(ctx, filter)
	if err != nil {
		return CancelAllResult{}, errkind.Wrap(errkind.InternalError, "failed to list open orders", err)
	}

	result := CancelAllResult{Success: true, Cancelled: []CancelledOrder{}, Failed: []FailedCancellation{}}
	for _, o := range orders {
		if err := m.CancelOrder(ctx, accountID, o.Symbol, o.ExchangeOrderID); err != nil {
			result.Failed = append(result.Failed, FailedCancellation{ExchangeOrderID: o.ExchangeOrderID, Symbol: o.Symbol, Error: err.Error()})
			continue
		}
		result.Cancelled = append(result.Cancelled, CancelledOrder{ExchangeOrderID: o.ExchangeOrderID, Symbol: o.Symbol})
	}
	if len(result.Failed) > 0 && len(result.Cancelled) == 0 {
		result.Success = false
	}
	return result, nil
}

// ReconcileThreshold is how old an OpenOrder must be before the periodic
// reconciler re-fetches it from the exchange (spec.md §4.10
// update_open_orders_status).
const ReconcileThreshold = 60 * time.Second

// ReconcileOpenOrders is the periodic reconciler: for each of accountID's
// own OpenOrders older than ReconcileThreshold, call FetchOrder and apply
// the resulting transition (spec.md §4.10).
func (m *Manager) ReconcileOpenOrders(ctx context.Context, accountID int64) error {
	stale, err := m.store.ListOpenOrdersOlderThan(ctx, accountID, ReconcileThreshold)
	if err != nil {
		return err
	}
	adapter, err := m.adapters.AdapterForAccount(ctx, accountID)
	if err != nil {
		return errkind.Wrap(errkind.ExchangeError, "failed to resolve adapter for reconciliation", err)
	}
	for _, o := range stale {
		result, err := adapter.FetchOrder(ctx, o.Symbol, o.ExchangeOrderID)
		if err != nil {
			logger.Warnf("openorder: reconcile fetch_order failed for %s: %v", o.ExchangeOrderID, err)
			continue
		}
		result.Status = status.Transform(string(result.Status), adapter.Exchange())
		if err := m.UpdateOpenOrderStatus(ctx, o.ExchangeOrderID, result); err != nil {
			logger.Warnf("openorder: reconcile update failed for %s: %v", o.ExchangeOrderID, err)
		}
	}
	return nil
}
