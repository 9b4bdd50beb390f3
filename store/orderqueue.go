package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
)

// OrderQueueStore implements orderqueue.Store against pending_orders.
type OrderQueueStore struct {
	db *DB
}

func NewOrderQueueStore(db *DB) *OrderQueueStore { return &OrderQueueStore{db: db} }

func (s *OrderQueueStore) InsertPendingOrder(order *domain.PendingOrder) error {
	res, err := s.db.conn.Exec(`
		INSERT INTO pending_orders (strategy_account_id, symbol, side, order_type, quantity, price,
		                            stop_price, priority, reason, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, order.StrategyAccountID, order.Symbol, string(order.Side), string(order.OrderType),
		order.Quantity.String(), order.Price.String(), order.StopPrice.String(), order.Priority, order.Reason)
	if err != nil {
		return fmt.Errorf("store: insert pending order: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		order.ID = id
	}
	return nil
}

func (s *OrderQueueStore) ListPendingOrders(strategyAccountID int64, symbol string, side domain.Side) ([]*domain.PendingOrder, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, strategy_account_id, symbol, side, order_type, quantity, price, stop_price,
		       priority, reason, enqueued_at
		FROM pending_orders
		WHERE strategy_account_id = ? AND symbol = ? AND side = ?
		ORDER BY priority ASC, enqueued_at ASC
	`, strategyAccountID, symbol, string(side))
	if err != nil {
		return nil, fmt.Errorf("store: list pending orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.PendingOrder
	for rows.Next() {
		var o domain.PendingOrder
		var s2, ot, qty, price, stopPrice string
		if err := rows.Scan(&o.ID, &o.StrategyAccountID, &o.Symbol, &s2, &ot, &qty, &price, &stopPrice,
			&o.Priority, &o.Reason, &o.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("store: scan pending order: %w", err)
		}
		o.Side = domain.Side(s2)
		o.OrderType = domain.OrderType(ot)
		o.Quantity, _ = decimal.NewFromString(qty)
		o.Price, _ = decimal.NewFromString(price)
		o.StopPrice, _ = decimal.NewFromString(stopPrice)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *OrderQueueStore) DeletePendingOrder(id int64) error {
	_, err := s.db.conn.Exec(`DELETE FROM pending_orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete pending order: %w", err)
	}
	return nil
}

func (s *OrderQueueStore) CountLiveOpenOrders(strategyAccountID int64, symbol string, side domain.Side, orderType domain.OrderType) (int, error) {
	var count int
	err := s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM open_orders
		WHERE strategy_account_id = ? AND symbol = ? AND side = ? AND order_type = ?
		  AND status IN ('NEW', 'OPEN', 'PARTIALLY_FILLED')
	`, strategyAccountID, symbol, string(side), string(orderType)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count live open orders: %w", err)
	}
	return count, nil
}
