package domain

import "math"

// MarketConfig holds the static trading parameters of one market.
// These come from configuration, never from computed state.
type MarketConfig struct {
	LotSize          int64
	MinOrderQuantity int64
	CommissionRate   float64 // fraction of notional, e.g. 0.001
	MinCommission    int64   // cents
}

// Commission computes the fee for a trade of the given notional value
// in cents: a percentage of notional with a floor.
func (m MarketConfig) Commission(notional int64) int64 {
	fee := int64(math.Round(float64(notional) * m.CommissionRate))
	if fee < m.MinCommission {
		return m.MinCommission
	}
	return fee
}
