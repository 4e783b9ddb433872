package domain

// Position is an account's holding in one (symbol, market) pair.
//
// AvailableQuantity is the quantity not reserved by open SELL orders and
// must stay within [0, Quantity]. AvgCost is the weighted average entry
// price in cents, recomputed on every BUY fill and untouched by SELL
// fills (realized P&L shows up as cash only).
type Position struct {
	AccountID         string
	Symbol            string
	Name              string
	Market            string
	Quantity          int64
	AvailableQuantity int64
	AvgCost           int64 // cents
}
