// Package money centralizes decimal arithmetic helpers shared by every
// accounting-path package (quantity, position, record, quantize). Per
// spec.md §9's design note on the source's pervasive Python Decimal
// usage, all money/quantity/PnL math in this codebase uses
// shopspring/decimal; floats are only acceptable on SSE/display paths.
package money

import "github.com/shopspring/decimal"

// FloorToStep truncates value toward zero to a multiple of step (the
// exchange's step_size / tick_size quantization rule, spec.md §4.3);
// negative values therefore move up toward zero.
// step<=0 is treated as "no quantization" and value is returned unchanged.
func FloorToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	var floored decimal.Decimal
	if value.Sign() >= 0 {
		floored = value.Div(step).Floor()
	} else {
		floored = value.Div(step).Ceil()
	}
	return floored.Mul(step)
}

// RoundToTick rounds value to the nearest multiple of tick (price tick
// size quantization, spec.md §4.3).
func RoundToTick(value, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return value
	}
	return value.DivRound(tick, 0).Mul(tick)
}

// WeightedAverage computes the volume-weighted average of two prices
// weighted by absolute quantities, per spec.md §4.8 / testable property #3:
// (|q1|*p1 + |q2|*p2) / (|q1|+|q2|).
func WeightedAverage(q1, p1, q2, p2 decimal.Decimal) decimal.Decimal {
	absQ1 := q1.Abs()
	absQ2 := q2.Abs()
	denom := absQ1.Add(absQ2)
	if denom.IsZero() {
		return decimal.Zero
	}
	numerator := absQ1.Mul(p1).Add(absQ2.Mul(p2))
	return numerator.Div(denom)
}
