package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synapsetrade/core/domain"
)

func TestTransformKnownMappings(t *testing.T) {
	cases := []struct {
		raw      string
		exchange domain.Exchange
		want     domain.CanonicalStatus
	}{
		{"NEW", domain.Binance, domain.StatusNew},
		{"PARTIALLY_FILLED", domain.Binance, domain.StatusPartiallyFilled},
		{"FILLED", domain.Binance, domain.StatusFilled},
		{"CANCELED", domain.Binance, domain.StatusCancelled},
		{"CANCELLED", domain.Binance, domain.StatusCancelled},
		{"REJECTED", domain.Binance, domain.StatusRejected},
		{"EXPIRED", domain.Binance, domain.StatusExpired},
		{"wait", domain.Upbit, domain.StatusOpen},
		{"watch", domain.Upbit, domain.StatusOpen},
		{"done", domain.Upbit, domain.StatusFilled},
		{"completed", domain.Upbit, domain.StatusFilled},
		{"cancel", domain.Upbit, domain.StatusCancelled},
		{"cancelled", domain.Upbit, domain.StatusCancelled},
		{"bid", domain.Bithumb, domain.StatusOpen},
		{"ask", domain.Bithumb, domain.StatusOpen},
		{"fill", domain.Bithumb, domain.StatusFilled},
		{"complete", domain.Bithumb, domain.StatusFilled},
		{"cancel", domain.Bithumb, domain.StatusCancelled},
		{"Created", domain.Bybit, domain.StatusNew},
		{"New", domain.Bybit, domain.StatusOpen},
		{"PartiallyFilled", domain.Bybit, domain.StatusPartiallyFilled},
		{"Filled", domain.Bybit, domain.StatusFilled},
		{"Cancelled", domain.Bybit, domain.StatusCancelled},
		{"Canceled", domain.Bybit, domain.StatusCancelled},
		{"Rejected", domain.Bybit, domain.StatusRejected},
	}
	for _, c := range cases {
		got := Transform(c.raw, c.exchange)
		assert.Equalf(t, c.want, got, "Transform(%q, %q)", c.raw, c.exchange)
	}
}

func TestTransformCaseInsensitiveExchange(t *testing.T) {
	assert.Equal(t, domain.StatusNew, Transform("NEW", domain.Exchange("binance")))
}

func TestTransformUnknownPassesThrough(t *testing.T) {
	assert.Equal(t, domain.CanonicalStatus("SOMETHING_WEIRD"), Transform("SOMETHING_WEIRD", domain.Binance))
	assert.Equal(t, domain.CanonicalStatus("NEW"), Transform("NEW", domain.Exchange("UNKNOWN_EXCHANGE")))
}

func TestIsSupportedExchange(t *testing.T) {
	assert.True(t, IsSupportedExchange(domain.Binance))
	assert.True(t, IsSupportedExchange(domain.Exchange("bybit")))
	assert.False(t, IsSupportedExchange(domain.Exchange("UNKNOWN")))
	assert.False(t, IsSupportedExchange(""))
}

func TestTransformWithValidation(t *testing.T) {
	r := TransformWithValidation("NEW", domain.Binance)
	assert.Equal(t, domain.StatusNew, r.TransformedStatus)
	assert.True(t, r.IsValidStandard)
	assert.False(t, r.IsTerminal)
	assert.True(t, r.IsActive)
	assert.True(t, r.ExchangeSupported)
}

func TestIsOpenIsTerminal(t *testing.T) {
	assert.True(t, domain.StatusNew.IsOpen())
	assert.True(t, domain.StatusOpen.IsOpen())
	assert.True(t, domain.StatusPartiallyFilled.IsOpen())
	assert.False(t, domain.StatusFilled.IsOpen())

	assert.True(t, domain.StatusFilled.IsTerminal())
	assert.True(t, domain.StatusCancelled.IsTerminal())
	assert.True(t, domain.StatusRejected.IsTerminal())
	assert.True(t, domain.StatusExpired.IsTerminal())
	assert.True(t, domain.StatusFailed.IsTerminal())
	assert.False(t, domain.StatusNew.IsTerminal())
}
