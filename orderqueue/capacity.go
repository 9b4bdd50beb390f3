// Package orderqueue implements the Order Queue Manager (spec.md §4.6): a
// per-(account,symbol,side) priority admission structure for LIMIT/STOP
// orders, plus Manager.Rebalance, which decides which PendingOrders fit
// under the remaining capacity. Nothing in the repository runs Rebalance
// on a schedule; it runs only when a caller invokes it.
package orderqueue

import (
	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/exchange"
)

// Capacity is the derived per-side admission caps for one (exchange,
// market) pair (spec.md §4.6).
type Capacity struct {
	MaxOrdersPerSide int
	MaxLimitPerSide  int
	MaxStopPerSide   int
}

const defaultCap = 20

// DeriveCapacity implements spec.md §4.6's exact formula:
//
//	cap = min(per_symbol*10%, per_account*10%, 20), clamped to [1,20]
//	max_stop_per_side  = cap / 2        (integer division)
//	max_limit_per_side = cap - max_stop_per_side
//
// Edge case: when cap==1, STOP gets priority, i.e. (limit=0, stop=1).
func DeriveCapacity(ex domain.Exchange, market domain.MarketType) Capacity {
	limit, ok := exchange.Lookup(ex, market)
	if !ok {
		return Capacity{MaxOrdersPerSide: defaultCap, MaxLimitPerSide: defaultCap / 2, MaxStopPerSide: defaultCap - defaultCap/2}
	}

	capVal := defaultCap
	if !exchange.Unbounded(limit.PerSymbol) {
		tenPct := limit.PerSymbol / 10
		if tenPct < capVal {
			capVal = tenPct
		}
	}
	if !exchange.Unbounded(limit.PerAccount) {
		tenPct := limit.PerAccount / 10
		if tenPct < capVal {
			capVal = tenPct
		}
	}
	if capVal > defaultCap {
		capVal = defaultCap
	}
	if capVal < 1 {
		capVal = 1
	}

	maxStop := capVal / 2
	maxLimit := capVal - maxStop
	if capVal == 1 {
		// Edge case (spec.md §4.6): STOP gets priority at capacity 1.
		maxStop = 1
		maxLimit = 0
	}

	return Capacity{MaxOrdersPerSide: capVal, MaxLimitPerSide: maxLimit, MaxStopPerSide: maxStop}
}
