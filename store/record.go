package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/record"
)

// RecordStore implements record.Store against the trades table, whose
// UNIQUE(strategy_account_id, exchange_order_id) constraint backs the
// two-layer idempotency spec.md §4.9 requires.
type RecordStore struct {
	db *DB
}

func NewRecordStore(db *DB) *RecordStore { return &RecordStore{db: db} }

func (s *RecordStore) FindTrade(ctx context.Context, strategyAccountID int64, exchangeOrderID string) (*domain.Trade, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, strategy_account_id, exchange_order_id, symbol, side, quantity, price,
		       order_price, order_type, is_entry, pnl, fee, timestamp
		FROM trades WHERE strategy_account_id = ? AND exchange_order_id = ?
	`, strategyAccountID, exchangeOrderID)
	return scanTrade(row)
}

func scanTrade(row *sql.Row) (*domain.Trade, error) {
	var t domain.Trade
	var side, orderType, qty, price, orderPrice, fee string
	var pnl sql.NullString
	err := row.Scan(&t.ID, &t.StrategyAccountID, &t.ExchangeOrderID, &t.Symbol, &side, &qty, &price,
		&orderPrice, &orderType, &t.IsEntry, &pnl, &fee, &t.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan trade: %w", err)
	}
	t.Side = domain.Side(side)
	t.OrderType = domain.OrderType(orderType)
	t.Quantity, _ = decimal.NewFromString(qty)
	t.Price, _ = decimal.NewFromString(price)
	t.OrderPrice, _ = decimal.NewFromString(orderPrice)
	t.Fee, _ = decimal.NewFromString(fee)
	if pnl.Valid {
		d, err := decimal.NewFromString(pnl.String)
		if err == nil {
			t.PnL = &d
		}
	}
	return &t, nil
}

func (s *RecordStore) InsertTrade(ctx context.Context, t *domain.Trade) error {
	var pnl interface{}
	if t.PnL != nil {
		pnl = t.PnL.String()
	}
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO trades (strategy_account_id, exchange_order_id, symbol, side, quantity, price,
		                     order_price, order_type, is_entry, pnl, fee, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, t.StrategyAccountID, t.ExchangeOrderID, t.Symbol, string(t.Side), t.Quantity.String(), t.Price.String(),
		t.OrderPrice.String(), string(t.OrderType), t.IsEntry, pnl, t.Fee.String())
	if err != nil {
		if isUniqueViolation(err) {
			return record.ErrUniqueViolation
		}
		return fmt.Errorf("store: insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		t.ID = id
	}
	return nil
}

// isUniqueViolation detects SQLite's UNIQUE constraint error text —
// modernc.org/sqlite reports it as a plain string rather than a typed
// sentinel, so matching on substring is the only portable option.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *RecordStore) UpdateTrade(ctx context.Context, t *domain.Trade) error {
	var pnl interface{}
	if t.PnL != nil {
		pnl = t.PnL.String()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE trades SET quantity = ?, price = ?, is_entry = ?, pnl = ?, fee = ?
		WHERE id = ?
	`, t.Quantity.String(), t.Price.String(), t.IsEntry, pnl, t.Fee.String(), t.ID)
	if err != nil {
		return fmt.Errorf("store: update trade: %w", err)
	}
	return nil
}

// CurrentSignedQuantity sums strategy_positions.quantity for (account,
// symbol) rather than re-deriving it from trades — the position row is
// the authoritative running total record.classifyEntry needs.
func (s *RecordStore) CurrentSignedQuantity(ctx context.Context, strategyAccountID int64, symbol string) (decimal.Decimal, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT quantity FROM strategy_positions WHERE strategy_account_id = ? AND symbol = ?`,
		strategyAccountID, symbol)
	var qtyStr string
	err := row.Scan(&qtyStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("store: current signed quantity: %w", err)
	}
	return decimal.NewFromString(qtyStr)
}
