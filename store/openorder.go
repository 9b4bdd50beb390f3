package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/openorder"
)

// OpenOrderStore implements openorder.Store against open_orders.
type OpenOrderStore struct {
	db *DB
}

func NewOpenOrderStore(db *DB) *OpenOrderStore { return &OpenOrderStore{db: db} }

func (s *OpenOrderStore) InsertOpenOrder(ctx context.Context, o *domain.OpenOrder) error {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO open_orders (exchange_order_id, strategy_account_id, symbol, side, order_type,
		                         quantity, filled_quantity, price, stop_price, status, market_type,
		                         created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, o.ExchangeOrderID, o.StrategyAccountID, o.Symbol, string(o.Side), string(o.OrderType),
		o.Quantity.String(), o.FilledQuantity.String(), o.Price.String(), o.StopPrice.String(),
		string(o.Status), string(o.MarketType))
	if err != nil {
		return fmt.Errorf("store: insert open order: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		o.ID = id
	}
	return nil
}

func (s *OpenOrderStore) UpdateOpenOrder(ctx context.Context, o *domain.OpenOrder) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE open_orders SET filled_quantity = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE exchange_order_id = ?
	`, o.FilledQuantity.String(), string(o.Status), o.ExchangeOrderID)
	if err != nil {
		return fmt.Errorf("store: update open order: %w", err)
	}
	return nil
}

func (s *OpenOrderStore) DeleteOpenOrder(ctx context.Context, exchangeOrderID string) error {
	_, err := s.db.conn.ExecContext(ctx, `DELETE FROM open_orders WHERE exchange_order_id = ?`, exchangeOrderID)
	if err != nil {
		return fmt.Errorf("store: delete open order: %w", err)
	}
	return nil
}

func scanOpenOrder(row interface {
	Scan(dest ...interface{}) error
}) (*domain.OpenOrder, error) {
	var o domain.OpenOrder
	var side, ot, qty, filledQty, price, stopPrice, status, marketType string
	err := row.Scan(&o.ID, &o.ExchangeOrderID, &o.StrategyAccountID, &o.Symbol, &side, &ot,
		&qty, &filledQty, &price, &stopPrice, &status, &marketType, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan open order: %w", err)
	}
	o.Side = domain.Side(side)
	o.OrderType = domain.OrderType(ot)
	o.Quantity, _ = decimal.NewFromString(qty)
	o.FilledQuantity, _ = decimal.NewFromString(filledQty)
	o.Price, _ = decimal.NewFromString(price)
	o.StopPrice, _ = decimal.NewFromString(stopPrice)
	o.Status = domain.CanonicalStatus(status)
	o.MarketType = domain.MarketType(marketType)
	return &o, nil
}

const openOrderColumns = `id, exchange_order_id, strategy_account_id, symbol, side, order_type,
	quantity, filled_quantity, price, stop_price, status, market_type, created_at, updated_at`

func prefixedOpenOrderColumns(alias string) string {
	cols := []string{"id", "exchange_order_id", "strategy_account_id", "symbol", "side", "order_type",
		"quantity", "filled_quantity", "price", "stop_price", "status", "market_type", "created_at", "updated_at"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

func (s *OpenOrderStore) GetOpenOrder(ctx context.Context, exchangeOrderID string) (*domain.OpenOrder, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT `+openOrderColumns+` FROM open_orders WHERE exchange_order_id = ?`, exchangeOrderID)
	return scanOpenOrder(row)
}

// ListOpenOrders resolves filter's (user/strategy/account) scope through
// strategy_accounts/strategies — open_orders itself only stores
// strategy_account_id, so the wider filter dimensions spec.md §4.10's
// cancel-all-by-user needs are joined in here.
func (s *OpenOrderStore) ListOpenOrders(ctx context.Context, filter openorder.ListFilter) ([]*domain.OpenOrder, error) {
	query := `
		SELECT ` + prefixedOpenOrderColumns("oo") + `
		FROM open_orders oo
		JOIN strategy_accounts sa ON sa.id = oo.strategy_account_id
		JOIN strategies s ON s.id = sa.strategy_id
		WHERE s.user_id = ?`
	args := []interface{}{filter.UserID}

	if filter.StrategyID != 0 {
		query += ` AND s.id = ?`
		args = append(args, filter.StrategyID)
	}
	if filter.AccountID != nil {
		query += ` AND sa.account_id = ?`
		args = append(args, *filter.AccountID)
	}
	if filter.Symbol != nil {
		query += ` AND oo.symbol = ?`
		args = append(args, *filter.Symbol)
	}
	if filter.Side != nil {
		query += ` AND oo.side = ?`
		args = append(args, string(*filter.Side))
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list open orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.OpenOrder
	for rows.Next() {
		o, err := scanOpenOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOpenOrdersOlderThan returns stale OpenOrders scoped to accountID —
// joined through strategy_accounts the same way ListOpenOrders is, since
// open_orders itself has no account_id column. The reconciler calls this
// once per active account and must only ever fetch that account's own
// orders through that account's own exchange credentials (spec.md §4.10).
func (s *OpenOrderStore) ListOpenOrdersOlderThan(ctx context.Context, accountID int64, age time.Duration) ([]*domain.OpenOrder, error) {
	cutoff := time.Now().Add(-age)
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+prefixedOpenOrderColumns("oo")+`
		FROM open_orders oo
		JOIN strategy_accounts sa ON sa.id = oo.strategy_account_id
		WHERE sa.account_id = ? AND oo.updated_at < ?
	`, accountID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list stale open orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.OpenOrder
	for rows.Next() {
		o, err := scanOpenOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
