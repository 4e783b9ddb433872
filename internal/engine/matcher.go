// Package engine implements the order lifecycle: admission of pending
// orders with cash reservation, fill eligibility against the price
// oracle, transactional execution, and cancellation with fund release.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/quote"
	"github.com/efreitasn/papertrade/pkg/id"
)

// fallbackCancelPrice is the per-share estimate used to release frozen
// cash when a cancelled BUY order carries no limit price. The release
// is floored at zero, so an overestimate cannot drive frozen cash
// negative.
const fallbackCancelPrice = 10000 // $100.00

// errNotPending aborts an execution transaction that lost the race to
// another fill or cancellation. Not an error worth logging.
var errNotPending = errors.New("order no longer pending")

// Engine owns the order state machine. Every mutation of account,
// position, order, and trade rows runs inside a single ledger
// transaction.
type Engine struct {
	store     ledger.Store
	quotes    quote.Source
	validator *Validator
	logger    *slog.Logger
}

// New creates an Engine wired with its ledger, price oracle, and market
// configuration.
func New(store ledger.Store, quotes quote.Source, markets map[string]domain.MarketConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		quotes:    quotes,
		validator: NewValidator(markets, quotes),
		logger:    logger,
	}
}

// PlaceOrderRequest is the input for order placement. Price is in
// dollars and is required for limit orders; a market order may carry
// one, in which case it participates in the freeze estimate but never
// in execution.
type PlaceOrderRequest struct {
	AccountID string
	Symbol    string
	Name      string
	Market    string
	Side      domain.OrderSide
	Type      domain.OrderType
	Price     *float64
	Quantity  int64
}

// PlaceOrder validates the request, persists the order as pending
// (reserving cash for BUY orders), and immediately attempts a
// synchronous fill. The returned order reflects the post-attempt state.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, &domain.ValidationError{Message: "side must be 'BUY' or 'SELL'"}
	}
	if req.Type != domain.OrderTypeMarket && req.Type != domain.OrderTypeLimit {
		return nil, &domain.ValidationError{Message: "order_type must be 'MARKET' or 'LIMIT'"}
	}
	if req.Symbol == "" {
		return nil, &domain.ValidationError{Message: "symbol is required"}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	var limitPrice int64
	if req.Price != nil {
		cents, err := domain.DollarsToCents(*req.Price)
		if err != nil {
			return nil, &domain.ValidationError{Message: "price must have at most 2 decimal places"}
		}
		limitPrice = cents
	}

	var order *domain.Order
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.Account(req.AccountID)
		if err != nil {
			return err
		}

		refPrice, err := e.validator.Validate(ctx, tx, acct,
			req.Side, req.Type, req.Symbol, req.Market, limitPrice, req.Quantity)
		if err != nil {
			return err
		}

		order = &domain.Order{
			OrderNo:   id.New(),
			AccountID: req.AccountID,
			Symbol:    req.Symbol,
			Name:      req.Name,
			Market:    req.Market,
			Side:      req.Side,
			Type:      req.Type,
			Price:     limitPrice,
			Quantity:  req.Quantity,
			Status:    domain.OrderStatusPending,
			CreatedAt: time.Now().UTC(),
		}

		if req.Side == domain.OrderSideBuy {
			// Reserve an estimate of the cash needed. For market orders
			// that happen to carry a limit price, use the lesser of
			// quote and limit.
			mkt, _ := e.validator.Market(req.Market)
			estPrice := refPrice
			if req.Type == domain.OrderTypeMarket && limitPrice > 0 && limitPrice < estPrice {
				estPrice = limitPrice
			}
			estNotional := estPrice * req.Quantity
			acct.FrozenCash += estNotional + mkt.Commission(estNotional)
			if err := tx.UpdateAccount(acct); err != nil {
				return err
			}
		}

		return tx.CreateOrder(order)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("order created",
		slog.String("order_no", order.OrderNo),
		slog.String("account_id", order.AccountID),
		slog.String("side", string(order.Side)),
		slog.String("symbol", order.Symbol),
		slog.Int64("quantity", order.Quantity),
	)

	// Synchronous fill attempt; failures leave the order pending for the
	// background sweep.
	if _, err := e.CheckAndExecute(ctx, order.OrderNo); err != nil {
		return nil, err
	}
	return e.store.Order(ctx, order.OrderNo)
}

// CheckAndExecute attempts to fill a pending order against the current
// price. It returns true only when the order transitioned to filled.
// A missing quote or an ineligible price leaves the order pending and
// returns false with a nil error; the error return is reserved for an
// unknown order number.
func (e *Engine) CheckAndExecute(ctx context.Context, orderNo string) (bool, error) {
	o, err := e.store.Order(ctx, orderNo)
	if err != nil {
		return false, err
	}
	if o.Terminal() {
		return false, nil
	}

	price, err := e.quotes.LastPrice(ctx, o.Symbol, o.Market)
	if err != nil {
		e.logger.Debug("quote unavailable, order stays pending",
			slog.String("order_no", o.OrderNo),
			slog.String("symbol", o.Symbol),
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	if !eligible(o, price) {
		return false, nil
	}

	// Execution price is always the oracle's current price, never the
	// limit price: eligibility already bounds it, so any difference is
	// price improvement for the account.
	return e.execute(ctx, orderNo, price), nil
}

// eligible reports whether the order may fill at the current price.
func eligible(o *domain.Order, currentPrice int64) bool {
	if o.Type == domain.OrderTypeMarket {
		return true
	}
	if o.Side == domain.OrderSideBuy {
		return o.Price >= currentPrice
	}
	return o.Price <= currentPrice
}

// execute settles a fill in one transaction: re-check affordability or
// available quantity at the execution price, move cash, upsert the
// position, append the trade, release the BUY reservation, and flip the
// order to filled. Any failure rolls the whole transaction back and the
// order stays pending.
func (e *Engine) execute(ctx context.Context, orderNo string, execPrice int64) bool {
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		o, err := tx.Order(orderNo)
		if err != nil {
			return err
		}
		if o.Terminal() {
			return errNotPending
		}

		acct, err := tx.Account(o.AccountID)
		if err != nil {
			return err
		}
		mkt, ok := e.validator.Market(o.Market)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnsupportedMarket, o.Market)
		}

		notional := execPrice * o.Quantity
		commission := mkt.Commission(notional)

		if o.Side == domain.OrderSideBuy {
			needed := notional + commission
			if acct.Cash < needed {
				return fmt.Errorf("%w: need %s, have %s",
					domain.ErrInsufficientCash, domain.FormatCents(needed), domain.FormatCents(acct.Cash))
			}
			acct.Cash -= needed

			pos, err := tx.Position(o.AccountID, o.Symbol, o.Market)
			if errors.Is(err, domain.ErrPositionNotFound) {
				pos = &domain.Position{
					AccountID: o.AccountID,
					Symbol:    o.Symbol,
					Name:      o.Name,
					Market:    o.Market,
				}
			} else if err != nil {
				return err
			}

			// Weighted average entry cost across the old lot and this fill.
			newQty := pos.Quantity + o.Quantity
			if pos.Quantity == 0 {
				pos.AvgCost = execPrice
			} else {
				pos.AvgCost = (pos.AvgCost*pos.Quantity + notional) / newQty
			}
			pos.Quantity = newQty
			pos.AvailableQuantity += o.Quantity
			if err := tx.SavePosition(pos); err != nil {
				return err
			}

			// Release the admission-time reservation by the actual fill
			// amount, floored at zero. Estimate vs. actual may leave
			// residual drift.
			acct.FrozenCash -= needed
			if acct.FrozenCash < 0 {
				acct.FrozenCash = 0
			}
		} else {
			pos, err := tx.Position(o.AccountID, o.Symbol, o.Market)
			if errors.Is(err, domain.ErrPositionNotFound) {
				return fmt.Errorf("%w: need %d shares, have 0", domain.ErrInsufficientPosition, o.Quantity)
			}
			if err != nil {
				return err
			}
			if pos.AvailableQuantity < o.Quantity {
				return fmt.Errorf("%w: need %d shares, have %d available",
					domain.ErrInsufficientPosition, o.Quantity, pos.AvailableQuantity)
			}

			pos.Quantity -= o.Quantity
			pos.AvailableQuantity -= o.Quantity
			if err := tx.SavePosition(pos); err != nil {
				return err
			}
			acct.Cash += notional - commission
		}

		if err := tx.UpdateAccount(acct); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.AppendTrade(&domain.Trade{
			TradeID:    uuid.New().String(),
			OrderNo:    o.OrderNo,
			AccountID:  o.AccountID,
			Symbol:     o.Symbol,
			Name:       o.Name,
			Market:     o.Market,
			Side:       o.Side,
			Price:      execPrice,
			Quantity:   o.Quantity,
			Commission: commission,
			ExecutedAt: now,
		}); err != nil {
			return err
		}

		o.FilledQuantity = o.Quantity
		o.Status = domain.OrderStatusFilled
		o.FilledAt = &now
		return tx.UpdateOrder(o)
	})
	if err != nil {
		if !errors.Is(err, errNotPending) {
			e.logger.Warn("fill aborted, order stays pending",
				slog.String("order_no", orderNo),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	e.logger.Info("order filled",
		slog.String("order_no", orderNo),
		slog.Int64("price", execPrice),
	)
	return true
}

// Cancel transitions a pending order to cancelled and, for BUY orders,
// releases the estimated reservation back from frozen cash.
// Returns domain.ErrOrderNotCancellable when the order is terminal.
func (e *Engine) Cancel(ctx context.Context, orderNo, reason string) error {
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		o, err := tx.Order(orderNo)
		if err != nil {
			return err
		}
		if o.Terminal() {
			return domain.ErrOrderNotCancellable
		}

		if o.Side == domain.OrderSideBuy {
			acct, err := tx.Account(o.AccountID)
			if err != nil {
				return err
			}
			mkt, ok := e.validator.Market(o.Market)
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrUnsupportedMarket, o.Market)
			}

			refPrice := o.Price
			if refPrice <= 0 {
				// No limit price to estimate from; release conservatively
				// rather than querying the oracle during cancellation.
				e.logger.Warn("order has no limit price, releasing frozen cash from fallback estimate",
					slog.String("order_no", o.OrderNo))
				refPrice = fallbackCancelPrice
			}
			notional := refPrice * o.Quantity
			release := notional + mkt.Commission(notional)
			acct.FrozenCash -= release
			if acct.FrozenCash < 0 {
				acct.FrozenCash = 0
			}
			if err := tx.UpdateAccount(acct); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &now
		o.Reason = reason
		return tx.UpdateOrder(o)
	})
	if err != nil {
		return err
	}

	e.logger.Info("order cancelled",
		slog.String("order_no", orderNo),
		slog.String("reason", reason),
	)
	return nil
}

// ProcessAllPending sweeps every pending order across all accounts
// through one fill attempt each and returns how many filled out of how
// many were checked.
func (e *Engine) ProcessAllPending(ctx context.Context) (filled, checked int, err error) {
	pending, err := e.store.PendingOrders(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, o := range pending {
		ok, err := e.CheckAndExecute(ctx, o.OrderNo)
		if err != nil {
			// The order vanished between listing and checking; skip it.
			continue
		}
		if ok {
			filled++
		}
	}

	if len(pending) > 0 {
		e.logger.Info("pending sweep complete",
			slog.Int("checked", len(pending)),
			slog.Int("filled", filled),
		)
	}
	return filled, len(pending), nil
}
