package exchange

import (
	"fmt"

	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/exchange/alpaca"
	"github.com/synapsetrade/core/exchange/binance"
	"github.com/synapsetrade/core/exchange/bybit"
	"github.com/synapsetrade/core/exchange/okx"
	"github.com/synapsetrade/core/exchange/upbit"
)

// Credentials is the decrypted key material for one Account (spec.md §3
// Account, plaintext after domain.OpenCredential), generalized per venue
// since OKX needs a passphrase and Alpaca needs an environment flag that
// the other venues don't.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string // OKX only
	IsPaper    bool   // Alpaca only
}

// New builds the concrete Adapter for one Account's exchange, the
// generalized equivalent of the teacher's auto_trader.go
// switch-on-config.Exchange factory — every branch there constructed one
// vendor-specific Trader; here each constructs one vendor-specific
// Adapter instead.
func New(ex domain.Exchange, creds Credentials) (Adapter, error) {
	switch ex {
	case domain.Binance:
		return binance.New(creds.APIKey, creds.SecretKey), nil
	case domain.Bybit:
		return bybit.New(creds.APIKey, creds.SecretKey), nil
	case domain.OKX:
		return okx.New(creds.APIKey, creds.SecretKey, creds.Passphrase), nil
	case domain.Upbit:
		return upbit.New(creds.APIKey, creds.SecretKey), nil
	case domain.Alpaca:
		return alpaca.New(creds.APIKey, creds.SecretKey, creds.IsPaper), nil
	default:
		return nil, fmt.Errorf("exchange: no adapter registered for %s", ex)
	}
}
