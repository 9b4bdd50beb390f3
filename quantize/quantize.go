// Package quantize implements the Symbol Validator / Quantizer (spec.md
// §4.3): applies step size, tick size, min notional, and min quantity per
// exchange+market to a proposed order.
package quantize

import (
	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/money"
)

// Precision carries the quantization rules for one (exchange, market,
// symbol). Populated from the Exchange Adapter's GetPrecision call
// (spec.md §4.2) and cached by trading.PrecisionCache, which, unlike the
// Price Cache, never expires an entry.
type Precision struct {
	StepSize    decimal.Decimal
	TickSize    decimal.Decimal
	MinQuantity decimal.Decimal
	MinNotional decimal.Decimal
}

// ErrorType is the canonical failure classification of a validation
// result (spec.md §4.3).
type ErrorType string

const (
	ErrMinQuantity ErrorType = "min_quantity_error"
	ErrMinNotional ErrorType = "min_notional_error"
	ErrStep        ErrorType = "step_error"
	ErrTick        ErrorType = "tick_error"
)

// Result is the outcome of ValidateOrderParams: either a success carrying
// the adjusted values, or a failure carrying an ErrorType (spec.md §4.3).
type Result struct {
	Success           bool
	AdjustedQuantity  decimal.Decimal
	AdjustedPrice     decimal.Decimal
	MinQuantity       decimal.Decimal
	StepSize          decimal.Decimal
	MinNotional       decimal.Decimal
	ErrorType         ErrorType
	Error             string
}

// ValidateOrderParams floors quantity to the nearest step and rounds
// price to the nearest tick, then checks the floored quantity against
// MinQuantity and MinNotional. A quantity that floors to zero is reported
// as ErrMinQuantity — never a bare "invalid" — so callers can distinguish
// "too small" from a malformed request (spec.md §4.3).
func ValidateOrderParams(p Precision, quantity, price decimal.Decimal) Result {
	adjustedQty := money.FloorToStep(quantity, p.StepSize)
	adjustedPrice := money.RoundToTick(price, p.TickSize)

	if adjustedQty.Sign() <= 0 {
		return Result{
			Success:     false,
			ErrorType:   ErrMinQuantity,
			Error:       "quantity rounds to zero after step quantization",
			StepSize:    p.StepSize,
			MinQuantity: p.MinQuantity,
			MinNotional: p.MinNotional,
		}
	}

	if p.MinQuantity.Sign() > 0 && adjustedQty.LessThan(p.MinQuantity) {
		return Result{
			Success:     false,
			ErrorType:   ErrMinQuantity,
			Error:       "adjusted quantity below exchange minimum",
			StepSize:    p.StepSize,
			MinQuantity: p.MinQuantity,
			MinNotional: p.MinNotional,
		}
	}

	if p.MinNotional.Sign() > 0 {
		notional := adjustedQty.Mul(adjustedPrice)
		if notional.LessThan(p.MinNotional) {
			return Result{
				Success:     false,
				ErrorType:   ErrMinNotional,
				Error:       "order notional below exchange minimum",
				StepSize:    p.StepSize,
				MinQuantity: p.MinQuantity,
				MinNotional: p.MinNotional,
			}
		}
	}

	return Result{
		Success:          true,
		AdjustedQuantity: adjustedQty,
		AdjustedPrice:    adjustedPrice,
		MinQuantity:      p.MinQuantity,
		StepSize:         p.StepSize,
		MinNotional:      p.MinNotional,
	}
}

// MinPositionThreshold returns the smallest absolute residual quantity
// that is still worth keeping open, per spec.md §4.8: delete the
// StrategyPosition row once |quantity| falls below
// max(step, min_qty, 1e-6).
func MinPositionThreshold(p Precision) decimal.Decimal {
	threshold := decimal.New(1, -6) // 1e-6
	if p.StepSize.GreaterThan(threshold) {
		threshold = p.StepSize
	}
	if p.MinQuantity.GreaterThan(threshold) {
		threshold = p.MinQuantity
	}
	return threshold
}
