package trading

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/record"
	"github.com/synapsetrade/core/store"
)

// CapitalHooks adapts the Record Manager's PostCommitHook and the Position
// Manager's CapitalReallocator onto StrategyCapital persistence. Both hooks
// are best-effort: a failure here must never roll back the trade or
// position write that already committed (spec.md §4.8, §4.9).
type CapitalHooks struct {
	entities *store.EntityStore
}

func NewCapitalHooks(entities *store.EntityStore) *CapitalHooks {
	return &CapitalHooks{entities: entities}
}

// ReflectPnL is a record.PostCommitHook: it folds a trade's realized PnL
// into the owning StrategyAccount's StrategyCapital.CurrentPnL. Grounded
// on the teacher's pattern of a narrow post-trade bookkeeping step kept
// separate from the trade write itself.
func (h *CapitalHooks) ReflectPnL(ctx context.Context, t *domain.Trade, realizedPnL *decimal.Decimal) {
	if t == nil || realizedPnL == nil || realizedPnL.IsZero() {
		return
	}
	capital, err := h.entities.GetStrategyCapital(ctx, t.StrategyAccountID)
	if err != nil {
		logger.Warnf("trading: failed to load strategy_capital for account %d to reflect pnl: %v", t.StrategyAccountID, err)
		return
	}
	if capital == nil {
		capital = &domain.StrategyCapital{StrategyAccountID: t.StrategyAccountID}
	}
	capital.CurrentPnL = capital.CurrentPnL.Add(*realizedPnL)
	if err := h.entities.SaveStrategyCapital(ctx, capital); err != nil {
		logger.Warnf("trading: failed to persist updated strategy_capital for account %d: %v", t.StrategyAccountID, err)
	}
}

// OnPositionClosed implements position.CapitalReallocator. A closed
// position is where an allocator would normally recompute how much
// capital to free for other symbols on the same account; this repo
// carries only the hook point and a log line — a full reallocation engine
// is out of scope (spec.md Non-goals: daily-summary / portfolio
// rebalancing is an external collaborator's job, and the Open Question on
// reallocation strategy is left undecided upstream). Wiring the hook here
// rather than omitting it keeps the position-close path exercised and
// ready for a real policy to drop in.
func (h *CapitalHooks) OnPositionClosed(ctx context.Context, strategyAccountID int64, symbol string) {
	logger.Infof("trading: position closed for strategy_account=%d symbol=%s, capital reallocation check skipped (no policy configured)", strategyAccountID, symbol)
}

var _ record.PostCommitHook = (&CapitalHooks{}).ReflectPnL
