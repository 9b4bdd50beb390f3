package orderqueue

import (
	"sort"
	"sync"
	"time"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/logger"
)

// Store is the minimal persistence capability the queue manager needs;
// implemented by store.OrderQueueStore in the full wiring.
type Store interface {
	InsertPendingOrder(order *domain.PendingOrder) error
	ListPendingOrders(strategyAccountID int64, symbol string, side domain.Side) ([]*domain.PendingOrder, error)
	DeletePendingOrder(id int64) error
	CountLiveOpenOrders(strategyAccountID int64, symbol string, side domain.Side, orderType domain.OrderType) (int, error)
}

// Manager is the Order Queue Manager (spec.md §4.6). It never blocks the
// webhook path: Enqueue only appends to PendingOrder. Promotion
// ("rebalance") runs only when a caller invokes Rebalance; the Manager
// starts no goroutine of its own.
type Manager struct {
	store Store
	mu    sync.Mutex // one lock serializes all Rebalance runs, whatever the key; Enqueue takes no lock
}

func New(store Store) *Manager {
	return &Manager{store: store}
}

// EnqueueOptions carries the enqueue commit flag. Enqueue does not read
// Commit: every call inserts its row immediately through Store, and there
// is no outer transaction for batch admission.
type EnqueueOptions struct {
	Commit bool
}

// Enqueue assigns priority and appends to PendingOrder (spec.md §4.6 step 1).
func (m *Manager) Enqueue(order *domain.PendingOrder, opts EnqueueOptions) error {
	order.Priority = Priority(order.OrderType)
	order.EnqueuedAt = time.Now()
	if err := m.store.InsertPendingOrder(order); err != nil {
		return err
	}
	return nil
}

// PromotionCandidate pairs a PendingOrder with the decision of whether it
// fits under the remaining capacity.
type PromotionCandidate struct {
	Order     *domain.PendingOrder
	Promote   bool
}

// Rebalance picks the highest-priority PendingOrders for
// (strategyAccountID, symbol, side) and returns which ones fit under the
// derived capacity (spec.md §4.6 "queue promotion / rebalance"). The
// caller (trading core / background scheduler) is responsible for
// actually submitting promoted orders to the exchange and deleting the
// PendingOrder row on success.
func (m *Manager) Rebalance(ex domain.Exchange, market domain.MarketType, strategyAccountID int64, symbol string, side domain.Side) ([]PromotionCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := DeriveCapacity(ex, market)

	pending, err := m.store.ListPendingOrders(strategyAccountID, symbol, side)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})

	liveLimit, err := m.store.CountLiveOpenOrders(strategyAccountID, symbol, side, domain.OrderLimit)
	if err != nil {
		return nil, err
	}

	// max_stop_per_side caps STOP_MARKET and STOP_LIMIT together (spec.md
	// §4.6, §8 testable property #7) — CountLiveOpenOrders matches
	// order_type exactly, so both must be counted and summed here rather
	// than querying STOP_MARKET alone.
	liveStopMarket, err := m.store.CountLiveOpenOrders(strategyAccountID, symbol, side, domain.OrderStopMarket)
	if err != nil {
		return nil, err
	}
	liveStopLimit, err := m.store.CountLiveOpenOrders(strategyAccountID, symbol, side, domain.OrderStopLimit)
	if err != nil {
		return nil, err
	}
	liveStop := liveStopMarket + liveStopLimit

	out := make([]PromotionCandidate, 0, len(pending))
	for _, p := range pending {
		switch p.OrderType {
		case domain.OrderLimit:
			if liveLimit < capacity.MaxLimitPerSide {
				out = append(out, PromotionCandidate{Order: p, Promote: true})
				liveLimit++
				continue
			}
		case domain.OrderStopMarket, domain.OrderStopLimit:
			if liveStop < capacity.MaxStopPerSide {
				out = append(out, PromotionCandidate{Order: p, Promote: true})
				liveStop++
				continue
			}
		default:
			logger.Warnf("orderqueue: rebalance saw unexpected pending order type %s", p.OrderType)
		}
		out = append(out, PromotionCandidate{Order: p, Promote: false})
	}
	return out, nil
}
