// Package metrics exposes Prometheus instrumentation on a custom
// registry, generalizing the teacher's synapsestrike_trader_* promauto
// pattern into the synapsetrade_<subsystem>_<name> naming convention for
// this system's own components (orders, positions, queue, websocket
// pool).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom registry this package's metrics are bound to —
// never the global default, matching the teacher's own convention.
var Registry = prometheus.NewRegistry()

var (
	// ============================================
	// Order lifecycle
	// ============================================

	OrdersSubmittedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "orders",
			Name:      "submitted_total",
			Help:      "Total orders submitted to an exchange",
		},
		[]string{"exchange", "market_type", "order_type"},
	)

	OrdersFilledTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "orders",
			Name:      "filled_total",
			Help:      "Total orders that reached FILLED",
		},
		[]string{"exchange", "market_type"},
	)

	OrdersFailedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "orders",
			Name:      "failed_total",
			Help:      "Total orders that failed at any stage",

		},
		[]string{"exchange", "error_type"},
	)

	OrderSubmitDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "synapsetrade",
			Subsystem: "orders",
			Name:      "submit_duration_seconds",
			Help:      "Time from signal receipt to exchange acknowledgement",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"exchange", "order_type"},
	)

	// ============================================
	// Positions
	// ============================================

	PositionsOpenCount = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "synapsetrade",
			Subsystem: "positions",
			Name:      "open_count",
			Help:      "Number of open StrategyPositions per strategy account",
		},
		[]string{"strategy_account_id"},
	)

	PositionsRealizedPnLTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "positions",
			Name:      "realized_pnl_total",
			Help:      "Cumulative realized PnL",
		},
		[]string{"strategy_account_id", "symbol"},
	)

	PositionLockContentionTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "positions",
			Name:      "lock_contention_total",
			Help:      "Position updates skipped due to lock contention",
		},
		[]string{"strategy_account_id"},
	)

	// ============================================
	// Order Queue Manager
	// ============================================

	QueueDepth = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "synapsetrade",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current PendingOrder count per (account, symbol, side)",
		},
		[]string{"account_id", "symbol", "side"},
	)

	QueuePromotionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "queue",
			Name:      "promotions_total",
			Help:      "PendingOrders promoted to real exchange orders",
		},
		[]string{"order_type"},
	)

	// ============================================
	// WebSocket Pool
	// ============================================

	WSConnectionsActive = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "synapsetrade",
			Subsystem: "ws",
			Name:      "connections_active",
			Help:      "Currently CONNECTED websocket connections",
		},
		[]string{"kind", "exchange"},
	)

	WSReconnectsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "ws",
			Name:      "reconnects_total",
			Help:      "Total reconnect attempts",
		},
		[]string{"kind", "exchange"},
	)

	WebhookRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapsetrade",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Total webhook requests received",
		},
		[]string{"success"},
	)
)
