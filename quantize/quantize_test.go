package quantize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValidateOrderParamsSuccess(t *testing.T) {
	p := Precision{
		StepSize:    dec("0.001"),
		TickSize:    dec("0.01"),
		MinQuantity: dec("0.0001"),
		MinNotional: dec("10"),
	}
	r := ValidateOrderParams(p, dec("0.0239"), dec("50000.003"))
	require.True(t, r.Success)
	assert.True(t, r.AdjustedQuantity.Equal(dec("0.023")))
	assert.True(t, r.AdjustedPrice.Equal(dec("50000.00")))
}

func TestValidateOrderParamsZeroQuantityIsMinQuantityError(t *testing.T) {
	p := Precision{StepSize: dec("0.01"), TickSize: dec("0.01")}
	r := ValidateOrderParams(p, dec("0.004"), dec("100"))
	require.False(t, r.Success)
	assert.Equal(t, ErrMinQuantity, r.ErrorType)
}

func TestValidateOrderParamsBelowMinQuantity(t *testing.T) {
	p := Precision{StepSize: dec("0.001"), MinQuantity: dec("0.01")}
	r := ValidateOrderParams(p, dec("0.005"), dec("100"))
	require.False(t, r.Success)
	assert.Equal(t, ErrMinQuantity, r.ErrorType)
}

func TestValidateOrderParamsBelowMinNotional(t *testing.T) {
	p := Precision{StepSize: dec("0.001"), MinNotional: dec("100")}
	r := ValidateOrderParams(p, dec("0.01"), dec("50"))
	require.False(t, r.Success)
	assert.Equal(t, ErrMinNotional, r.ErrorType)
}

func TestMinPositionThreshold(t *testing.T) {
	p := Precision{StepSize: dec("0.01"), MinQuantity: dec("0.5")}
	assert.True(t, MinPositionThreshold(p).Equal(dec("0.5")))

	p2 := Precision{StepSize: dec("0.0000001"), MinQuantity: decimal.Zero}
	assert.True(t, MinPositionThreshold(p2).Equal(dec("0.000001")))
}
