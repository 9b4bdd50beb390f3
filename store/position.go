package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
)

// PositionStore implements position.Store. SQLite has no row-level
// locking, so the SELECT...FOR UPDATE SKIP LOCKED pattern spec.md §4.8
// describes is emulated with a per-(strategy_account_id, symbol)
// in-process mutex: TryLock stands in for SKIP LOCKED (a held mutex
// means another goroutine already owns the row), and the actual SELECT
// only runs once the mutex is acquired, behind the same serialized
// connection every store type here shares.
type PositionStore struct {
	db    *DB
	locks sync.Map // key string -> *sync.Mutex
}

func NewPositionStore(db *DB) *PositionStore { return &PositionStore{db: db} }

func positionKey(strategyAccountID int64, symbol string) string {
	return fmt.Sprintf("%d:%s", strategyAccountID, symbol)
}

func (s *PositionStore) TryLockPosition(ctx context.Context, strategyAccountID int64, symbol string) (*domain.StrategyPosition, bool, bool, error) {
	key := positionKey(strategyAccountID, symbol)
	muIface, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)

	if !mu.TryLock() {
		return nil, true, false, nil
	}

	row := s.db.conn.QueryRowContext(ctx,
		`SELECT id, quantity, entry_price, last_updated FROM strategy_positions
		 WHERE strategy_account_id = ? AND symbol = ?`, strategyAccountID, symbol)

	var pos domain.StrategyPosition
	var qtyStr, entryStr string
	err := row.Scan(&pos.ID, &qtyStr, &entryStr, &pos.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, false, false, nil
	}
	if err != nil {
		mu.Unlock()
		return nil, false, false, fmt.Errorf("store: query position: %w", err)
	}

	pos.StrategyAccountID = strategyAccountID
	pos.Symbol = symbol
	pos.Quantity, _ = decimal.NewFromString(qtyStr)
	pos.EntryPrice, _ = decimal.NewFromString(entryStr)
	return &pos, true, true, nil
}

func (s *PositionStore) GetPosition(ctx context.Context, strategyAccountID int64, symbol string) (*domain.StrategyPosition, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT id, quantity, entry_price, last_updated FROM strategy_positions
		 WHERE strategy_account_id = ? AND symbol = ?`, strategyAccountID, symbol)

	var pos domain.StrategyPosition
	var qtyStr, entryStr string
	err := row.Scan(&pos.ID, &qtyStr, &entryStr, &pos.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get position: %w", err)
	}
	pos.StrategyAccountID = strategyAccountID
	pos.Symbol = symbol
	pos.Quantity, _ = decimal.NewFromString(qtyStr)
	pos.EntryPrice, _ = decimal.NewFromString(entryStr)
	return &pos, nil
}

func (s *PositionStore) SavePosition(ctx context.Context, pos *domain.StrategyPosition) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO strategy_positions (strategy_account_id, symbol, quantity, entry_price, last_updated)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(strategy_account_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			entry_price = excluded.entry_price,
			last_updated = CURRENT_TIMESTAMP
	`, pos.StrategyAccountID, pos.Symbol, pos.Quantity.String(), pos.EntryPrice.String())
	if err != nil {
		return fmt.Errorf("store: save position: %w", err)
	}
	return nil
}

func (s *PositionStore) DeletePosition(ctx context.Context, strategyAccountID int64, symbol string) error {
	_, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM strategy_positions WHERE strategy_account_id = ? AND symbol = ?`, strategyAccountID, symbol)
	if err != nil {
		return fmt.Errorf("store: delete position: %w", err)
	}
	return nil
}

func (s *PositionStore) UnlockPosition(ctx context.Context, strategyAccountID int64, symbol string) {
	key := positionKey(strategyAccountID, symbol)
	if muIface, ok := s.locks.Load(key); ok {
		muIface.(*sync.Mutex).Unlock()
	}
}
