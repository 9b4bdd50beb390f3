// Package errkind defines the canonical error taxonomy used across the
// trading core (spec §7). ExecutionError is a tagged enum: every failure
// path produced by the core carries one of these Kinds plus a message, so
// callers can switch on Kind instead of matching error strings.
package errkind

// Kind is the canonical error classification surfaced to webhook callers
// as `results[i].error_type`.
type Kind string

const (
	ValidationError            Kind = "validation_error"
	AuthError                  Kind = "auth_error"
	QuantityCalculationError   Kind = "quantity_calculation_error"
	ExchangeError              Kind = "exchange_error"
	PositionUpdateFailed       Kind = "position_update_failed"
	QueueCapacityError         Kind = "queue_capacity_error"
	ExecutionPriceUnavailable  Kind = "execution_price_unavailable"
	TimeoutError               Kind = "timeout_error"
	InternalError              Kind = "internal_error"
)

// ExecutionError is the sum type referenced in spec.md §9's "Exception-
// for-control-flow" design note: a Result<OrderOutcome, ExecutionError>
// instead of typed exceptions caught by the HTTP layer.
type ExecutionError struct {
	Kind    Kind
	Message string
	// Cause, when present, is the underlying error this one wraps — kept
	// for logging, never surfaced to webhook callers.
	Cause error
}

func New(kind Kind, message string) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: message, Cause: cause}
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// As reports whether err is an *ExecutionError and, if so, returns it.
func As(err error) (*ExecutionError, bool) {
	ee, ok := err.(*ExecutionError)
	return ee, ok
}
