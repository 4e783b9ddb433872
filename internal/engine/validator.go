package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/quote"
)

// Validator enforces market configuration constraints and pre-checks
// affordability (BUY) or available quantity (SELL) before an order is
// admitted as pending.
type Validator struct {
	markets map[string]domain.MarketConfig
	quotes  quote.Source
}

// NewValidator creates a Validator over the configured markets and the
// price oracle used to price market orders.
func NewValidator(markets map[string]domain.MarketConfig, quotes quote.Source) *Validator {
	return &Validator{markets: markets, quotes: quotes}
}

// referencePrice determines the price used for the affordability check:
// the oracle's current price for market orders (a market order cannot
// be priced without a quote), the limit price for limit orders.
func (v *Validator) referencePrice(ctx context.Context, orderType domain.OrderType, symbol, market string, limitPrice int64) (int64, error) {
	if orderType == domain.OrderTypeMarket {
		price, err := v.quotes.LastPrice(ctx, symbol, market)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
		}
		return price, nil
	}
	return limitPrice, nil
}

// Validate checks an order request against market constraints and the
// account's current state. On success it returns the reference price;
// the order is then safe to create as pending.
func (v *Validator) Validate(ctx context.Context, tx ledger.Tx, acct *domain.Account,
	side domain.OrderSide, orderType domain.OrderType,
	symbol, market string, limitPrice, quantity int64) (int64, error) {

	mkt, ok := v.markets[market]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedMarket, market)
	}

	if quantity%mkt.LotSize != 0 {
		return 0, fmt.Errorf("%w: quantity must be a multiple of %d", domain.ErrInvalidQuantity, mkt.LotSize)
	}
	if quantity < mkt.MinOrderQuantity {
		return 0, fmt.Errorf("%w: quantity must be >= %d", domain.ErrInvalidQuantity, mkt.MinOrderQuantity)
	}

	if orderType == domain.OrderTypeLimit && limitPrice <= 0 {
		return 0, fmt.Errorf("%w: limit orders require a positive price", domain.ErrMissingLimitPrice)
	}

	refPrice, err := v.referencePrice(ctx, orderType, symbol, market, limitPrice)
	if err != nil {
		return 0, err
	}

	switch side {
	case domain.OrderSideBuy:
		notional := refPrice * quantity
		needed := notional + mkt.Commission(notional)
		if acct.Cash < needed {
			return 0, fmt.Errorf("%w: need %s, have %s",
				domain.ErrInsufficientCash, domain.FormatCents(needed), domain.FormatCents(acct.Cash))
		}
	case domain.OrderSideSell:
		pos, err := tx.Position(acct.AccountID, symbol, market)
		if errors.Is(err, domain.ErrPositionNotFound) {
			return 0, fmt.Errorf("%w: need %d shares, have 0", domain.ErrInsufficientPosition, quantity)
		}
		if err != nil {
			return 0, err
		}
		if pos.AvailableQuantity < quantity {
			return 0, fmt.Errorf("%w: need %d shares, have %d available",
				domain.ErrInsufficientPosition, quantity, pos.AvailableQuantity)
		}
	}

	return refPrice, nil
}

// Market returns the configuration for a market.
func (v *Validator) Market(market string) (domain.MarketConfig, bool) {
	mkt, ok := v.markets[market]
	return mkt, ok
}
