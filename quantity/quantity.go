// Package quantity implements the Quantity Calculator (spec.md §4.5):
// derives an absolute order quantity from either a caller-supplied qty or
// a qty_per percentage of allocated capital, and resolves the effective
// price used for that derivation.
//
// Grounded on original_source/web_server/app/services/trading/
// quantity_calculator.py's determine_order_price / calculate_order_quantity
// / calculate_quantity_from_percentage.
package quantity

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/errkind"
	"github.com/synapsetrade/core/money"
	"github.com/synapsetrade/core/quantize"
)

// PriceSource resolves the effective price when the webhook/order doesn't
// carry one outright (price cache → ticker fallback), per spec.md §4.5(a).
type PriceSource interface {
	EffectivePrice(ctx context.Context, exchange domain.Exchange, market domain.MarketType, symbol string) (decimal.Decimal, error)
}

// Request is the input to Calculate: the fields of a webhook/order that
// bear on sizing.
type Request struct {
	Exchange       domain.Exchange
	Market         domain.MarketType
	Symbol         string
	OrderType      domain.OrderType
	Side           domain.Side
	Qty            *decimal.Decimal // absolute quantity, mutually-preferred with QtyPer
	QtyPer         *decimal.Decimal // percentage of allocated capital; negative = liquidate
	Price          *decimal.Decimal // webhook-supplied price
	StopPrice      *decimal.Decimal
	AllocatedCapital decimal.Decimal
	Leverage       decimal.Decimal // 1 for spot
	CurrentPosition decimal.Decimal // signed; 0 if none
	Precision      quantize.Precision
}

// Result is the successful outcome of Calculate.
type Result struct {
	Quantity       decimal.Decimal
	EffectivePrice decimal.Decimal
	Warning        string // non-fatal, e.g. "qty_per took precedence over qty"
}

// Calculate implements both modes of spec.md §4.5 and the effective-price
// resolution order. Failures are returned as *errkind.ExecutionError with
// Kind=QuantityCalculationError, matching the source's
// QuantityCalculationError surfaced to the webhook response.
func Calculate(ctx context.Context, priceSource PriceSource, req Request) (Result, error) {
	effectivePrice, err := determineEffectivePrice(ctx, priceSource, req)
	if err != nil {
		return Result{}, err
	}
	if effectivePrice.Sign() <= 0 {
		return Result{}, errkind.New(errkind.QuantityCalculationError, "no resolvable price for order")
	}

	var rawQty decimal.Decimal
	var warning string

	switch {
	case req.QtyPer != nil:
		if req.Qty != nil {
			warning = "qty_per took precedence over qty"
		}
		rawQty, err = calculateFromPercentage(req, effectivePrice)
		if err != nil {
			return Result{}, err
		}
	case req.Qty != nil:
		if req.Qty.Sign() <= 0 {
			return Result{}, errkind.New(errkind.QuantityCalculationError, "absolute qty must be positive; use qty_per=-100 to liquidate")
		}
		rawQty = *req.Qty
	default:
		return Result{}, errkind.New(errkind.QuantityCalculationError, "either qty or qty_per is required")
	}

	adjusted := money.FloorToStep(rawQty, req.Precision.StepSize)
	if adjusted.Sign() <= 0 {
		return Result{}, errkind.New(errkind.QuantityCalculationError, "quantity rounds to zero after step quantization")
	}

	return Result{Quantity: adjusted, EffectivePrice: effectivePrice, Warning: warning}, nil
}

// calculateFromPercentage implements spec.md §4.5 mode 2.
func calculateFromPercentage(req Request, effectivePrice decimal.Decimal) (decimal.Decimal, error) {
	qtyPer := *req.QtyPer

	if qtyPer.Sign() > 0 {
		leverage := req.Leverage
		if leverage.IsZero() {
			leverage = decimal.NewFromInt(1)
		}
		// quantity = allocated_capital * (qty_per/100) / effective_price * leverage
		fraction := qtyPer.Div(decimal.NewFromInt(100))
		return req.AllocatedCapital.Mul(fraction).Div(effectivePrice).Mul(leverage), nil
	}

	// Negative qty_per: liquidate a fraction of the existing position.
	if req.CurrentPosition.IsZero() {
		return decimal.Zero, errkind.New(errkind.QuantityCalculationError, "no position to liquidate")
	}
	positionSide := domain.Buy
	if req.CurrentPosition.Sign() < 0 {
		positionSide = domain.Sell
	}
	if req.Side != positionSide.Opposite() {
		return decimal.Zero, errkind.New(errkind.QuantityCalculationError, "no position to liquidate")
	}

	pct := qtyPer.Abs()
	hundred := decimal.NewFromInt(100)
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	return req.CurrentPosition.Abs().Mul(pct).Div(hundred), nil
}

// determineEffectivePrice implements spec.md §4.5's resolution order:
// (a) MARKET prefers webhook-supplied price over the cache — the source's
// deliberate design choice ("웹훅 송신자가 더 정확한 가격을 알고 있다고 가정": the
// webhook sender is assumed to know a fresher price) — then falls back to
// the price cache/ticker; (b) LIMIT/STOP_LIMIT always use price;
// (c) STOP_MARKET always uses stop_price.
func determineEffectivePrice(ctx context.Context, priceSource PriceSource, req Request) (decimal.Decimal, error) {
	if req.OrderType.RequiresPrice() {
		if req.Price != nil {
			return *req.Price, nil
		}
		return decimal.Zero, errkind.New(errkind.QuantityCalculationError, "price is required for "+string(req.OrderType))
	}
	if req.OrderType.RequiresStopPrice() {
		if req.StopPrice != nil {
			return *req.StopPrice, nil
		}
		return decimal.Zero, errkind.New(errkind.QuantityCalculationError, "stop_price is required for "+string(req.OrderType))
	}

	// MARKET (and any other type not requiring a specific field):
	if req.Price != nil {
		return *req.Price, nil
	}
	if priceSource == nil {
		return decimal.Zero, nil
	}
	price, err := priceSource.EffectivePrice(ctx, req.Exchange, req.Market, req.Symbol)
	if err != nil {
		return decimal.Zero, nil // a failed lookup resolves to zero here; Calculate then rejects the zero price with QuantityCalculationError
	}
	return price, nil
}
