package orderqueue

import "github.com/synapsetrade/core/domain"

// basePriority implements spec.md §4.6's priority table (lower = higher
// priority): MARKET=1, CANCEL=2, LIMIT=3, STOP_MARKET=4, STOP_LIMIT=5.
func basePriority(orderType domain.OrderType) int {
	switch orderType {
	case domain.OrderMarket:
		return 1
	case domain.OrderCancel, domain.OrderCancelAll:
		return 2
	case domain.OrderLimit:
		return 3
	case domain.OrderStopMarket:
		return 4
	case domain.OrderStopLimit:
		return 5
	default:
		return 99
	}
}

// Priority assigns the admission priority for a PendingOrder: the base
// table value for its order_type only. No secondary key (price or
// stop_price) is applied; Rebalance orders equal priorities by EnqueuedAt.
func Priority(orderType domain.OrderType) int {
	return basePriority(orderType)
}

// Less reports whether a sorts before b under spec.md §4.6's ordering:
// lower base priority first; within STOP types, STOP_MARKET before
// STOP_LIMIT on ties (already encoded by the base table since
// STOP_MARKET=4 < STOP_LIMIT=5, so no further tie-break is needed beyond
// the base priority itself).
func Less(a, b domain.OrderType) bool {
	return basePriority(a) < basePriority(b)
}
