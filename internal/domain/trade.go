package domain

import "time"

// Trade is the append-only record of a fill. Price is the execution
// price (the oracle's current price at fill time, never the limit
// price). Each filled order produces exactly one trade.
type Trade struct {
	TradeID    string
	OrderNo    string
	AccountID  string
	Symbol     string
	Name       string
	Market     string
	Side       OrderSide
	Price      int64 // cents
	Quantity   int64
	Commission int64 // cents
	ExecutedAt time.Time
}
