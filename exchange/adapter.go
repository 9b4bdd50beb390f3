// Package exchange defines the Exchange Adapter capability (spec.md
// §4.2): a venue-neutral interface every concrete adapter
// (exchange/binance, exchange/bybit, exchange/okx, exchange/upbit,
// exchange/alpaca) implements, plus the hard-coded per-venue order-count
// limits table (spec.md §6).
package exchange

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/synapsetrade/core/domain"
)

// OrderRequest is the canonical input to CreateOrder.
type OrderRequest struct {
	Symbol    string
	Market    domain.MarketType
	Side      domain.Side
	OrderType domain.OrderType
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	StopPrice decimal.Decimal
}

// OrderResult is the canonical output of CreateOrder / FetchOrder
// (spec.md §4.2): adjusted_* reflects whatever precision rounding the
// adapter itself applied (distinct from quantize.Result, which is the
// Symbol Validator's own rounding pass before the call is even made).
type OrderResult struct {
	ExchangeOrderID  string
	Status           domain.CanonicalStatus
	FilledQuantity   decimal.Decimal
	AveragePrice     decimal.Decimal
	AdjustedQuantity decimal.Decimal
	AdjustedPrice    decimal.Decimal
	AdjustedStopPrice decimal.Decimal
	RawResponse      string
}

// BatchOrderOutcome is one element of CreateBatchOrders' result array.
// Partial success is a valid outcome (spec.md §4.2): a failure in one
// element never invalidates the others.
type BatchOrderOutcome struct {
	Result OrderResult
	Err    error
}

// Precision mirrors quantize.Precision but is the adapter's own
// capability surface (spec.md §4.2 get_precision); kept as a separate
// type so exchange implementations don't need to import quantize.
type Precision struct {
	StepSize    decimal.Decimal
	TickSize    decimal.Decimal
	MinQuantity decimal.Decimal
	MinNotional decimal.Decimal
}

// Adapter is the capability set every exchange implementation provides
// for one Account (spec.md §4.2).
type Adapter interface {
	Exchange() domain.Exchange

	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	FetchOrder(ctx context.Context, symbol, exchangeOrderID string) (OrderResult, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]OrderResult, error)
	FetchTicker(ctx context.Context, market domain.MarketType, symbol string) (decimal.Decimal, error)
	FetchBalance(ctx context.Context) (decimal.Decimal, error)
	CreateBatchOrders(ctx context.Context, reqs []OrderRequest) ([]BatchOrderOutcome, error)
	GetPrecision(ctx context.Context, market domain.MarketType, symbol string) (Precision, error)
}

// NewLimiter builds a token-bucket rate limiter. Each concrete adapter's
// New builds its own limiter at fixed venue rates; the constructors take
// no limiter argument, so callers cannot supply a different one.
func NewLimiter(ratePerSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}
