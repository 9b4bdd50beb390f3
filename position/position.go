// Package position implements the Position Manager (spec.md §4.8):
// row-locked application of fills to StrategyPosition, volume-weighted
// entry price, and realized PnL settlement on sign flips/closes.
//
// Grounded on original_source/web_server/app/services/trading/
// position_manager.py's _update_position, including the lock-contention
// skip and the transaction-separated capital-reallocation hook.
package position

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/money"
	"github.com/synapsetrade/core/quantize"
)

// Store is the persistence capability the Position Manager needs.
// TryLockPosition implements the SELECT ... FOR UPDATE SKIP LOCKED
// pattern (spec.md §4.8) — see store/position.go for the SQLite
// adaptation, since SQLite itself has no true row-level locking.
type Store interface {
	// TryLockPosition attempts to acquire the row for
	// (strategyAccountID, symbol). found=false,locked=false means no row
	// exists yet (create fresh). found=true,locked=false means a row
	// exists but another fill currently holds its lock (contention skip).
	// found=true,locked=true hands back the current row under lock.
	TryLockPosition(ctx context.Context, strategyAccountID int64, symbol string) (pos *domain.StrategyPosition, found bool, locked bool, err error)
	SavePosition(ctx context.Context, pos *domain.StrategyPosition) error
	DeletePosition(ctx context.Context, strategyAccountID int64, symbol string) error
	UnlockPosition(ctx context.Context, strategyAccountID int64, symbol string)
	// GetPosition is a plain, non-locking read used by callers that only
	// need the current signed quantity (e.g. the Quantity Calculator's
	// current_position input) and never intend to mutate the row.
	GetPosition(ctx context.Context, strategyAccountID int64, symbol string) (*domain.StrategyPosition, error)
}

// CapitalReallocator is invoked, best-effort, after a position is deleted
// (spec.md §4.8: "in a separate transactional step... trigger
// capital-reallocation check; its failure must not roll back the
// position deletion").
type CapitalReallocator interface {
	OnPositionClosed(ctx context.Context, strategyAccountID int64, symbol string)
}

// EventEmitter is the minimal capability needed to emit position events
// (spec.md §4.8 step "emit position event").
type EventEmitter interface {
	EmitPositionEvent(ctx context.Context, eventType string, pos *domain.StrategyPosition, previousQuantity *decimal.Decimal, meta domain.PositionEventMeta)
}

// Outcome is the result of UpdatePosition.
type Outcome struct {
	Skipped      bool
	SkipReason   string // "lock_contention" when Skipped
	Position     *domain.StrategyPosition // nil if deleted
	RealizedPnL  decimal.Decimal
	Deleted      bool
}

// Manager applies fills to positions (spec.md §4.8).
type Manager struct {
	store        Store
	reallocator  CapitalReallocator
	emitter      EventEmitter
}

func New(store Store, reallocator CapitalReallocator, emitter EventEmitter) *Manager {
	return &Manager{store: store, reallocator: reallocator, emitter: emitter}
}

// UpdatePosition implements spec.md §4.8's _update_position algorithm.
// meta is passed through unchanged to any emitted position event so it
// lands on the SSE stream of the user who actually owns the fill, never
// a shared/default bucket.
func (m *Manager) UpdatePosition(ctx context.Context, strategyAccountID int64, symbol string, side domain.Side, qty, price decimal.Decimal, precision quantize.Precision, meta domain.PositionEventMeta) (Outcome, error) {
	current, found, locked, err := m.store.TryLockPosition(ctx, strategyAccountID, symbol)
	if err != nil {
		return Outcome{}, errkind.Wrap(errkind.PositionUpdateFailed, "failed to acquire position lock", err)
	}

	if found && !locked {
		// Lock contention: another concurrent fill holds this row. Per
		// spec.md §4.8, this is a non-error, non-blocking skip — the
		// winner already applied (or will apply) the same authoritative
		// exchange state, and Trade's UNIQUE constraint guarantees
		// convergence.
		return Outcome{Skipped: true, SkipReason: "lock_contention"}, nil
	}
	defer m.store.UnlockPosition(ctx, strategyAccountID, symbol)

	tradeQty := qty
	if side == domain.Sell {
		tradeQty = qty.Neg()
	}

	if !found {
		current = &domain.StrategyPosition{StrategyAccountID: strategyAccountID, Symbol: symbol}
	}

	var realizedPnL decimal.Decimal
	var newQty, newEntry decimal.Decimal

	switch {
	case current.Quantity.IsZero():
		newQty = tradeQty
		newEntry = price

	case current.Quantity.Sign() == tradeQty.Sign():
		// Same sign: increasing exposure, volume-weighted average entry.
		newQty = current.Quantity.Add(tradeQty)
		newEntry = money.WeightedAverage(current.Quantity, current.EntryPrice, tradeQty, price)

	default:
		// Opposite sign: closing some or all of the position, possibly
		// flipping to the other side.
		closingQty := decimal.Min(current.Quantity.Abs(), tradeQty.Abs())
		if current.Quantity.Sign() > 0 {
			// closing a long
			realizedPnL = closingQty.Mul(price.Sub(current.EntryPrice))
		} else {
			// closing a short
			realizedPnL = closingQty.Mul(current.EntryPrice.Sub(price))
		}

		residual := current.Quantity.Add(tradeQty)
		newQty = residual
		if residual.IsZero() || residual.Sign() == current.Quantity.Sign() {
			newEntry = current.EntryPrice
		} else {
			// Sign flipped: the flip trade's execution price becomes the
			// new entry (spec.md §4.8, testable property #5).
			newEntry = price
		}
	}

	newQty = money.FloorToStep(newQty, precision.StepSize)
	threshold := quantize.MinPositionThreshold(precision)

	if newQty.Abs().LessThan(threshold) {
		if err := m.store.DeletePosition(ctx, strategyAccountID, symbol); err != nil {
			return Outcome{}, errkind.Wrap(errkind.PositionUpdateFailed, "failed to delete closed position", err)
		}
		m.triggerReallocation(ctx, strategyAccountID, symbol)
		prevQty := current.Quantity
		if m.emitter != nil {
			m.emitter.EmitPositionEvent(ctx, "position_closed", &domain.StrategyPosition{StrategyAccountID: strategyAccountID, Symbol: symbol}, &prevQty, meta)
		}
		return Outcome{Deleted: true, RealizedPnL: realizedPnL}, nil
	}

	eventType := "position_updated"
	if !found {
		eventType = "position_created"
	}
	prevQty := current.Quantity

	current.Quantity = newQty
	current.EntryPrice = newEntry
	if err := m.store.SavePosition(ctx, current); err != nil {
		return Outcome{}, errkind.Wrap(errkind.PositionUpdateFailed, "failed to save position", err)
	}

	if m.emitter != nil {
		m.emitter.EmitPositionEvent(ctx, eventType, current, &prevQty, meta)
	}

	return Outcome{Position: current, RealizedPnL: realizedPnL}, nil
}

// CurrentQuantity returns the signed quantity currently on record for
// (strategyAccountID, symbol), or zero if no position exists — the input
// the Quantity Calculator needs for qty_per liquidation sizing (spec.md
// §4.5), read without taking the fill lock.
func (m *Manager) CurrentQuantity(ctx context.Context, strategyAccountID int64, symbol string) (decimal.Decimal, error) {
	pos, err := m.store.GetPosition(ctx, strategyAccountID, symbol)
	if err != nil {
		return decimal.Zero, errkind.Wrap(errkind.InternalError, "failed to read current position", err)
	}
	if pos == nil {
		return decimal.Zero, nil
	}
	return pos.Quantity, nil
}

// triggerReallocation runs the capital-reallocation hook in a step that
// is never allowed to roll back the position deletion that already
// committed (spec.md §4.8).
func (m *Manager) triggerReallocation(ctx context.Context, strategyAccountID int64, symbol string) {
	if m.reallocator == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("position: capital reallocation hook panicked for account=%d symbol=%s: %v", strategyAccountID, symbol, r)
		}
	}()
	m.reallocator.OnPositionClosed(ctx, strategyAccountID, symbol)
}
