package domain

import "time"

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderSide indicates whether an order buys or sells.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle state of an order.
// Orders transition exactly once from pending to a terminal state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order represents a buy or sell instruction placed by an account.
// Fills are all-or-nothing: FilledQuantity is either 0 or Quantity.
type Order struct {
	OrderNo        string
	AccountID      string
	Symbol         string
	Name           string
	Market         string
	Side           OrderSide
	Type           OrderType
	Price          int64 // cents, 0 when no limit price was supplied
	Quantity       int64
	FilledQuantity int64
	Status         OrderStatus
	Reason         string // cancellation reason, empty otherwise
	CreatedAt      time.Time
	FilledAt       *time.Time
	CancelledAt    *time.Time
}

// Terminal reports whether the order has reached an immutable state.
func (o *Order) Terminal() bool {
	return o.Status != OrderStatusPending
}
