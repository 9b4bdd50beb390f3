// Package record implements the Record Manager (spec.md §4.9): idempotent
// Trade persistence enforced at two layers (application-level SELECT then
// INSERT-or-UPDATE, plus a DB-level UNIQUE constraint as the race backstop),
// entry/exit classification, and non-blocking post-commit hooks.
//
// Grounded on original_source/web_server/app/services/trading/
// record_manager.py's create_trade_record.
package record

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/logger"
)

// ErrUniqueViolation is the sentinel the Store implementation must wrap
// and return when the DB-level UNIQUE(strategy_account_id,
// exchange_order_id) constraint fires on insert — the second layer of
// idempotency (spec.md §4.9, §5 "Idempotency substrate").
var ErrUniqueViolation = errors.New("record: unique constraint violation")

// Store is the persistence capability the Record Manager needs.
type Store interface {
	FindTrade(ctx context.Context, strategyAccountID int64, exchangeOrderID string) (*domain.Trade, error)
	InsertTrade(ctx context.Context, t *domain.Trade) error // must return ErrUniqueViolation on constraint conflict
	UpdateTrade(ctx context.Context, t *domain.Trade) error
	// CurrentSignedQuantity sums the signed open position quantity for
	// (strategyAccountID, symbol) — used for is_entry classification.
	CurrentSignedQuantity(ctx context.Context, strategyAccountID int64, symbol string) (decimal.Decimal, error)
}

// PostCommitHook runs after a Trade is committed; failures are logged and
// swallowed, never propagated (spec.md §4.9, §7).
type PostCommitHook func(ctx context.Context, t *domain.Trade, realizedPnL *decimal.Decimal)

// Manager is the Record Manager (spec.md §4.9).
type Manager struct {
	store Store
	hooks []PostCommitHook
}

func New(store Store, hooks ...PostCommitHook) *Manager {
	return &Manager{store: store, hooks: hooks}
}

// CreateTradeRecordInput is the input to CreateTradeRecord.
type CreateTradeRecordInput struct {
	StrategyAccountID int64
	ExchangeOrderID   string
	Symbol            string
	Side              domain.Side
	Quantity          decimal.Decimal // cumulative filled for this order (spec.md §9 point 4)
	Price             decimal.Decimal
	OrderPrice        decimal.Decimal
	OrderType         domain.OrderType
	Fee               decimal.Decimal
	RealizedPnL       *decimal.Decimal
}

// Outcome is the result of CreateTradeRecord.
type Outcome struct {
	Trade          *domain.Trade
	QuantityDelta  decimal.Decimal // new_total_filled - previous_total_filled
	DuplicatePrevented bool       // no-op write: nothing actually changed
}

// CreateTradeRecord implements spec.md §4.9's two-layer idempotent
// upsert. Quantity on the input is always the order's cumulative filled
// quantity; QuantityDelta is what the Position Manager must apply.
func (m *Manager) CreateTradeRecord(ctx context.Context, in CreateTradeRecordInput) (Outcome, error) {
	if in.Quantity.Sign() <= 0 {
		return Outcome{}, errkind.New(errkind.ValidationError, "trade quantity must be > 0")
	}
	if in.Price.Sign() <= 0 {
		return Outcome{}, errkind.New(errkind.ValidationError, "trade price must be > 0")
	}

	// Layer 1: application-level SELECT.
	existing, err := m.store.FindTrade(ctx, in.StrategyAccountID, in.ExchangeOrderID)
	if err != nil {
		return Outcome{}, errkind.Wrap(errkind.InternalError, "failed to look up existing trade", err)
	}

	var trade *domain.Trade
	var delta decimal.Decimal
	var duplicatePrevented bool

	if existing == nil {
		isEntry, err := m.classifyEntry(ctx, in.StrategyAccountID, in.Symbol, in.Quantity, in.Side)
		if err != nil {
			return Outcome{}, err
		}
		trade = &domain.Trade{
			StrategyAccountID: in.StrategyAccountID,
			ExchangeOrderID:   in.ExchangeOrderID,
			Symbol:            in.Symbol,
			Side:              in.Side,
			Quantity:          in.Quantity,
			Price:             in.Price,
			OrderPrice:        in.OrderPrice,
			OrderType:         in.OrderType,
			IsEntry:           isEntry,
			Fee:               in.Fee,
			PnL:               in.RealizedPnL,
		}
		delta = in.Quantity

		if err := m.store.InsertTrade(ctx, trade); err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				// Layer 2: a concurrent ingestor won the race between our
				// SELECT and our INSERT. Roll back to re-SELECT the row
				// it created and fold our update into it instead of
				// re-raising (spec.md §4.9).
				logger.Warnf("record: unique violation racing insert for order %s, re-selecting", in.ExchangeOrderID)
				raced, err := m.store.FindTrade(ctx, in.StrategyAccountID, in.ExchangeOrderID)
				if err != nil || raced == nil {
					return Outcome{}, errkind.Wrap(errkind.InternalError, "failed to recover from unique violation", err)
				}
				existing = raced
			} else {
				return Outcome{}, errkind.Wrap(errkind.InternalError, "failed to insert trade", err)
			}
		}
	}

	if existing != nil {
		previousQty := existing.Quantity
		delta = in.Quantity.Sub(previousQty)

		changed := false
		if !existing.Quantity.Equal(in.Quantity) {
			existing.Quantity = in.Quantity
			changed = true
		}
		if !existing.Price.Equal(in.Price) {
			existing.Price = in.Price
			changed = true
		}
		if !existing.OrderPrice.Equal(in.OrderPrice) {
			existing.OrderPrice = in.OrderPrice
			changed = true
		}
		if existing.Side != in.Side {
			existing.Side = in.Side
			changed = true
		}
		if existing.OrderType != in.OrderType {
			existing.OrderType = in.OrderType
			changed = true
		}

		if !changed {
			duplicatePrevented = true
		} else {
			// delta, not in.Quantity: CurrentSignedQuantity already reflects
			// the prior partial fill, so classifying against the full new
			// cumulative quantity would double-count the exposure this
			// order already contributed (spec.md §9 point 1).
			isEntry, err := m.classifyEntry(ctx, in.StrategyAccountID, in.Symbol, delta, in.Side)
			if err != nil {
				return Outcome{}, err
			}
			existing.IsEntry = isEntry
			if in.RealizedPnL != nil {
				existing.PnL = in.RealizedPnL
			}
			if err := m.store.UpdateTrade(ctx, existing); err != nil {
				return Outcome{}, errkind.Wrap(errkind.InternalError, "failed to update trade", err)
			}
		}
		trade = existing
	}

	m.runPostCommitHooks(ctx, trade, in.RealizedPnL)

	return Outcome{Trade: trade, QuantityDelta: delta, DuplicatePrevented: duplicatePrevented}, nil
}

// classifyEntry implements is_entry classification per the spec.md §9
// point 1 Open Question decision recorded in DESIGN.md: computed
// per-(strategy_account, symbol), not summed across the whole strategy's
// accounts (the source's apparent latent bug is NOT reproduced here).
//
// qty is the quantity this classification decision is actually about: the
// order's full cumulative quantity for a brand-new trade, or just the new
// partial-fill delta for an update — CurrentSignedQuantity already
// reflects everything this order previously contributed, so qty must
// never be the update path's full cumulative quantity again.
func (m *Manager) classifyEntry(ctx context.Context, strategyAccountID int64, symbol string, qty decimal.Decimal, side domain.Side) (bool, error) {
	current, err := m.store.CurrentSignedQuantity(ctx, strategyAccountID, symbol)
	if err != nil {
		return false, errkind.Wrap(errkind.InternalError, "failed to read current position for entry classification", err)
	}
	tradeQty := qty
	if side == domain.Sell {
		tradeQty = tradeQty.Neg()
	}
	resulting := current.Add(tradeQty)
	return resulting.Abs().GreaterThan(current.Abs()), nil
}

func (m *Manager) runPostCommitHooks(ctx context.Context, t *domain.Trade, realizedPnL *decimal.Decimal) {
	for _, h := range m.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("record: post-commit hook panicked: %v", r)
				}
			}()
			h(ctx, t, realizedPnL)
		}()
	}
}
