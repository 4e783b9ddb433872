package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotCancellable  = errors.New("order_not_cancellable")
	ErrPositionNotFound     = errors.New("position_not_found")
	ErrUnsupportedMarket    = errors.New("unsupported_market")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrMissingLimitPrice    = errors.New("missing_limit_price")
	ErrQuoteUnavailable     = errors.New("quote_unavailable")
	ErrInsufficientCash     = errors.New("insufficient_cash")
	ErrInsufficientPosition = errors.New("insufficient_position")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
