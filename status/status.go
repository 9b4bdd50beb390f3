// Package status implements the Status Transformer (spec.md §4.1): a
// pure, stateless, thread-safe mapping from per-exchange order status
// vocabularies to the canonical domain.CanonicalStatus enum.
//
// Grounded on original_source/web_server/app/exchanges/transformers/
// order_status_transformer.py: a data-driven per-exchange table with
// case-insensitive exchange lookup and pass-through for unknown values.
package status

import (
	"strings"

	"github.com/synapsetrade/core/domain"
)

// mappings holds the per-exchange raw-status → canonical table.
// BITHUMB is carried even though it is absent from spec.md §6's Exchange
// Limits table — the original source maps it and supplementing the
// status vocabulary costs nothing. OKX's table is new (the original had
// none) using OKX's real status vocabulary, since OKX does appear in the
// Exchange Limits table and needs a resolvable transformer.
var mappings = map[domain.Exchange]map[string]domain.CanonicalStatus{
	domain.Binance: {
		"NEW":              domain.StatusNew,
		"PARTIALLY_FILLED": domain.StatusPartiallyFilled,
		"FILLED":           domain.StatusFilled,
		"CANCELED":         domain.StatusCancelled,
		"CANCELLED":        domain.StatusCancelled,
		"REJECTED":         domain.StatusRejected,
		"EXPIRED":          domain.StatusExpired,
	},
	domain.Upbit: {
		"wait":      domain.StatusOpen,
		"watch":     domain.StatusOpen, // compatibility alias
		"done":      domain.StatusFilled,
		"completed": domain.StatusFilled, // compatibility alias
		"cancel":    domain.StatusCancelled,
		"cancelled": domain.StatusCancelled, // compatibility alias
	},
	domain.Bithumb: {
		"bid":      domain.StatusOpen,
		"ask":      domain.StatusOpen,
		"fill":     domain.StatusFilled,
		"complete": domain.StatusFilled,
		"cancel":   domain.StatusCancelled,
	},
	domain.Bybit: {
		"Created":        domain.StatusNew,
		"New":             domain.StatusOpen,
		"PartiallyFilled": domain.StatusPartiallyFilled,
		"Filled":          domain.StatusFilled,
		"Cancelled":       domain.StatusCancelled,
		"Canceled":        domain.StatusCancelled,
		"Rejected":        domain.StatusRejected,
	},
	domain.OKX: {
		"live":            domain.StatusOpen,
		"partially_filled": domain.StatusPartiallyFilled,
		"filled":          domain.StatusFilled,
		"canceled":        domain.StatusCancelled,
		"mmp_canceled":    domain.StatusCancelled,
	},
}

// Transform maps rawStatus from exchange into the canonical vocabulary.
// Unknown (exchange, rawStatus) pairs pass through unchanged as a
// domain.CanonicalStatus wrapping the raw string, so downstream code can
// log and fail closed rather than silently coercing (spec.md §4.1).
func Transform(rawStatus string, exchange domain.Exchange) domain.CanonicalStatus {
	if rawStatus == "" || exchange == "" {
		return domain.CanonicalStatus(rawStatus)
	}
	table, ok := mappings[normalizeExchange(exchange)]
	if !ok {
		return domain.CanonicalStatus(rawStatus)
	}
	if canonical, ok := table[rawStatus]; ok {
		return canonical
	}
	return domain.CanonicalStatus(rawStatus)
}

func normalizeExchange(exchange domain.Exchange) domain.Exchange {
	return domain.Exchange(strings.ToUpper(string(exchange)))
}

// IsSupportedExchange reports whether exchange has a known status table.
func IsSupportedExchange(exchange domain.Exchange) bool {
	if exchange == "" {
		return false
	}
	_, ok := mappings[normalizeExchange(exchange)]
	return ok
}

// SupportedExchanges lists every exchange with a registered status table.
func SupportedExchanges() []domain.Exchange {
	out := make([]domain.Exchange, 0, len(mappings))
	for ex := range mappings {
		out = append(out, ex)
	}
	return out
}

// ValidationResult is the structured outcome of TransformWithValidation,
// grounded on the original's transform_with_validation dict shape.
type ValidationResult struct {
	OriginalStatus    string
	TransformedStatus domain.CanonicalStatus
	IsValidStandard   bool
	IsTerminal        bool
	IsActive          bool
	ExchangeSupported bool
}

// TransformWithValidation transforms rawStatus and additionally reports
// whether the result is a recognized canonical value, terminal, or active.
func TransformWithValidation(rawStatus string, exchange domain.Exchange) ValidationResult {
	transformed := Transform(rawStatus, exchange)
	return ValidationResult{
		OriginalStatus:    rawStatus,
		TransformedStatus: transformed,
		IsValidStandard:   isValidCanonical(transformed),
		IsTerminal:        transformed.IsTerminal(),
		IsActive:          transformed.IsOpen(),
		ExchangeSupported: IsSupportedExchange(exchange),
	}
}

func isValidCanonical(s domain.CanonicalStatus) bool {
	switch s {
	case domain.StatusPending, domain.StatusNew, domain.StatusOpen,
		domain.StatusPartiallyFilled, domain.StatusFilled,
		domain.StatusCancelled, domain.StatusRejected,
		domain.StatusExpired, domain.StatusFailed:
		return true
	}
	return false
}
