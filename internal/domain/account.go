package domain

import "time"

// Account represents a paper-trading account funded with virtual cash.
//
// Cash is the spendable balance and is the only figure affordability
// checks run against. FrozenCash tracks the estimated cost of open BUY
// orders for reporting; it is released (floored at zero) when the order
// fills or is cancelled. InitialCapital never changes after creation and
// exists for performance reporting.
type Account struct {
	AccountID      string
	Name           string
	InitialCapital int64 // cents
	Cash           int64 // cents
	FrozenCash     int64 // cents
	CreatedAt      time.Time
}

// AvailableCash returns the cash not reserved by open BUY orders.
func (a *Account) AvailableCash() int64 {
	if a.FrozenCash > a.Cash {
		return 0
	}
	return a.Cash - a.FrozenCash
}
