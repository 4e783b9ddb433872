// Package service composes the ledger and the price oracle into the
// read models served over HTTP and websocket: account overviews,
// enriched positions, and full account snapshots.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/quote"
)

// defaultInitialCapital is granted to new accounts when no starting
// capital is specified: $100,000.
const defaultInitialCapital = 10000000

// snapshotTradeLimit caps the trade history embedded in a snapshot.
const snapshotTradeLimit = 200

// AccountService handles account creation and the valuation read
// models. Valuations are best-effort: a position with no quote is
// carried at cost and excluded from market value.
type AccountService struct {
	store  ledger.Store
	quotes quote.Source
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(store ledger.Store, quotes quote.Source, logger *slog.Logger) *AccountService {
	return &AccountService{store: store, quotes: quotes, logger: logger}
}

// Overview is the valuation summary of one account. Money fields are
// dollars.
type Overview struct {
	AccountID      string  `json:"account_id"`
	Name           string  `json:"name"`
	InitialCapital float64 `json:"initial_capital"`
	Cash           float64 `json:"cash"`
	FrozenCash     float64 `json:"frozen_cash"`
	AvailableCash  float64 `json:"available_cash"`
	MarketValue    float64 `json:"market_value"`
	TotalAssets    float64 `json:"total_assets"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalPnLPct    float64 `json:"total_pnl_pct"`
	PositionCount  int     `json:"position_count"`
	CreatedAt      string  `json:"created_at"`
}

// PositionView is a position enriched with the current quote. Pricing
// fields are nil when the oracle has no quote for the symbol.
type PositionView struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Market            string   `json:"market"`
	Quantity          int64    `json:"quantity"`
	AvailableQuantity int64    `json:"available_quantity"`
	AvgCost           float64  `json:"avg_cost"`
	LastPrice         *float64 `json:"last_price"`
	MarketValue       *float64 `json:"market_value"`
	UnrealizedPnL     *float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct  *float64 `json:"unrealized_pnl_pct"`
}

// OrderView is the JSON shape of an order.
type OrderView struct {
	OrderNo        string   `json:"order_no"`
	AccountID      string   `json:"account_id"`
	Symbol         string   `json:"symbol"`
	Name           string   `json:"name"`
	Market         string   `json:"market"`
	Side           string   `json:"side"`
	OrderType      string   `json:"order_type"`
	Price          *float64 `json:"price"`
	Quantity       int64    `json:"quantity"`
	FilledQuantity int64    `json:"filled_quantity"`
	Status         string   `json:"status"`
	Reason         string   `json:"reason,omitempty"`
	CreatedAt      string   `json:"created_at"`
	FilledAt       *string  `json:"filled_at"`
	CancelledAt    *string  `json:"cancelled_at"`
}

// TradeView is the JSON shape of an executed trade.
type TradeView struct {
	TradeID    string  `json:"trade_id"`
	OrderNo    string  `json:"order_no"`
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Market     string  `json:"market"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Quantity   int64   `json:"quantity"`
	Commission float64 `json:"commission"`
	ExecutedAt string  `json:"executed_at"`
}

// Snapshot bundles everything a client needs to render an account:
// overview, priced positions, order history, and recent trades.
type Snapshot struct {
	Overview    *Overview      `json:"overview"`
	Positions   []PositionView `json:"positions"`
	Orders      []OrderView    `json:"orders"`
	Trades      []TradeView    `json:"trades"`
	GeneratedAt string         `json:"generated_at"`
}

// CreateAccount creates an account funded with the given capital in
// dollars, or the default when nil.
func (s *AccountService) CreateAccount(ctx context.Context, name string, initialCapital *float64) (*domain.Account, error) {
	if name == "" {
		return nil, &domain.ValidationError{Message: "name is required"}
	}

	capital := int64(defaultInitialCapital)
	if initialCapital != nil {
		cents, err := domain.DollarsToCents(*initialCapital)
		if err != nil {
			return nil, &domain.ValidationError{Message: "initial_capital must have at most 2 decimal places"}
		}
		if cents <= 0 {
			return nil, &domain.ValidationError{Message: "initial_capital must be greater than 0"}
		}
		capital = cents
	}

	acct := &domain.Account{
		AccountID:      uuid.New().String(),
		Name:           name,
		InitialCapital: capital,
		Cash:           capital,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		slog.String("account_id", acct.AccountID),
		slog.String("name", name),
		slog.Int64("initial_capital", capital),
	)
	return acct, nil
}

// Account returns the raw account record.
func (s *AccountService) Account(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.store.Account(ctx, accountID)
}

// Overview computes the account's valuation against current quotes.
// Positions without a quote do not contribute to market value.
func (s *AccountService) Overview(ctx context.Context, accountID string) (*Overview, error) {
	acct, err := s.store.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	positions, err := s.store.Positions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var marketValue int64
	for _, p := range positions {
		price, err := s.quotes.LastPrice(ctx, p.Symbol, p.Market)
		if err != nil {
			s.logger.Debug("no quote for position, excluded from market value",
				slog.String("symbol", p.Symbol),
				slog.String("market", p.Market),
			)
			continue
		}
		marketValue += price * p.Quantity
	}

	totalAssets := acct.Cash + marketValue
	pnl := totalAssets - acct.InitialCapital
	pnlPct := 0.0
	if acct.InitialCapital > 0 {
		pnlPct = float64(pnl) / float64(acct.InitialCapital) * 100
	}

	return &Overview{
		AccountID:      acct.AccountID,
		Name:           acct.Name,
		InitialCapital: domain.CentsToDollars(acct.InitialCapital),
		Cash:           domain.CentsToDollars(acct.Cash),
		FrozenCash:     domain.CentsToDollars(acct.FrozenCash),
		AvailableCash:  domain.CentsToDollars(acct.AvailableCash()),
		MarketValue:    domain.CentsToDollars(marketValue),
		TotalAssets:    domain.CentsToDollars(totalAssets),
		TotalPnL:       domain.CentsToDollars(pnl),
		TotalPnLPct:    pnlPct,
		PositionCount:  len(positions),
		CreatedAt:      acct.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// Positions returns the account's positions enriched with quotes.
func (s *AccountService) Positions(ctx context.Context, accountID string) ([]PositionView, error) {
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	positions, err := s.store.Positions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	views := make([]PositionView, len(positions))
	for i, p := range positions {
		views[i] = s.buildPositionView(ctx, p)
	}
	return views, nil
}

// Orders returns the account's orders, newest first, optionally
// filtered by status.
func (s *AccountService) Orders(ctx context.Context, accountID string, status *domain.OrderStatus) ([]OrderView, error) {
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	orders, err := s.store.Orders(ctx, accountID, status)
	if err != nil {
		return nil, err
	}
	views := make([]OrderView, len(orders))
	for i, o := range orders {
		views[i] = BuildOrderView(o)
	}
	return views, nil
}

// Trades returns the account's most recent trades, newest first.
func (s *AccountService) Trades(ctx context.Context, accountID string, limit int) ([]TradeView, error) {
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	trades, err := s.store.Trades(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]TradeView, len(trades))
	for i, tr := range trades {
		views[i] = buildTradeView(tr)
	}
	return views, nil
}

// Snapshot assembles the full account snapshot pushed to websocket
// clients and served on demand.
func (s *AccountService) Snapshot(ctx context.Context, accountID string) (*Snapshot, error) {
	overview, err := s.Overview(ctx, accountID)
	if err != nil {
		return nil, err
	}
	positions, err := s.Positions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	orders, err := s.Orders(ctx, accountID, nil)
	if err != nil {
		return nil, err
	}
	trades, err := s.Trades(ctx, accountID, snapshotTradeLimit)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Overview:    overview,
		Positions:   positions,
		Orders:      orders,
		Trades:      trades,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *AccountService) buildPositionView(ctx context.Context, p *domain.Position) PositionView {
	v := PositionView{
		Symbol:            p.Symbol,
		Name:              p.Name,
		Market:            p.Market,
		Quantity:          p.Quantity,
		AvailableQuantity: p.AvailableQuantity,
		AvgCost:           domain.CentsToDollars(p.AvgCost),
	}

	price, err := s.quotes.LastPrice(ctx, p.Symbol, p.Market)
	if err != nil {
		return v
	}

	last := domain.CentsToDollars(price)
	mv := domain.CentsToDollars(price * p.Quantity)
	pnlCents := (price - p.AvgCost) * p.Quantity
	pnl := domain.CentsToDollars(pnlCents)
	v.LastPrice = &last
	v.MarketValue = &mv
	v.UnrealizedPnL = &pnl
	if p.AvgCost > 0 {
		pct := float64(price-p.AvgCost) / float64(p.AvgCost) * 100
		v.UnrealizedPnLPct = &pct
	}
	return v
}

// BuildOrderView converts a domain order to its JSON shape. Shared
// with the HTTP handlers so orders render identically everywhere.
func BuildOrderView(o *domain.Order) OrderView {
	v := OrderView{
		OrderNo:        o.OrderNo,
		AccountID:      o.AccountID,
		Symbol:         o.Symbol,
		Name:           o.Name,
		Market:         o.Market,
		Side:           string(o.Side),
		OrderType:      string(o.Type),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Status:         string(o.Status),
		Reason:         o.Reason,
		CreatedAt:      o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.Price > 0 {
		p := domain.CentsToDollars(o.Price)
		v.Price = &p
	}
	if o.FilledAt != nil {
		s := o.FilledAt.UTC().Format(time.RFC3339)
		v.FilledAt = &s
	}
	if o.CancelledAt != nil {
		s := o.CancelledAt.UTC().Format(time.RFC3339)
		v.CancelledAt = &s
	}
	return v
}

func buildTradeView(t *domain.Trade) TradeView {
	return TradeView{
		TradeID:    t.TradeID,
		OrderNo:    t.OrderNo,
		Symbol:     t.Symbol,
		Name:       t.Name,
		Market:     t.Market,
		Side:       string(t.Side),
		Price:      domain.CentsToDollars(t.Price),
		Quantity:   t.Quantity,
		Commission: domain.CentsToDollars(t.Commission),
		ExecutedAt: t.ExecutedAt.UTC().Format(time.RFC3339),
	}
}
