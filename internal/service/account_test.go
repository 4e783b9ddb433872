package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/quote"
)

func newService(t *testing.T) (*AccountService, ledger.Store, *quote.StaticSource) {
	t.Helper()
	store := ledger.NewMemoryStore()
	quotes := quote.NewStaticSource(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAccountService(store, quotes, logger), store, quotes
}

func TestCreateAccountDefaultCapital(t *testing.T) {
	svc, _, _ := newService(t)

	acct, err := svc.CreateAccount(context.Background(), "demo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.InitialCapital != 10000000 {
		t.Errorf("expected default capital 10000000, got %d", acct.InitialCapital)
	}
	if acct.Cash != acct.InitialCapital {
		t.Errorf("cash must start equal to capital, got %d", acct.Cash)
	}
	if acct.AccountID == "" {
		t.Error("expected generated account id")
	}
}

func TestCreateAccountCustomCapital(t *testing.T) {
	svc, _, _ := newService(t)

	capital := 5000.0
	acct, err := svc.CreateAccount(context.Background(), "small", &capital)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Cash != 500000 {
		t.Errorf("expected cash 500000, got %d", acct.Cash)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	var ve *domain.ValidationError
	if _, err := svc.CreateAccount(ctx, "", nil); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for empty name, got %v", err)
	}

	negative := -100.0
	if _, err := svc.CreateAccount(ctx, "x", &negative); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for negative capital, got %v", err)
	}

	fractional := 100.123
	if _, err := svc.CreateAccount(ctx, "x", &fractional); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for sub-cent capital, got %v", err)
	}
}

func TestOverviewValuation(t *testing.T) {
	svc, store, quotes := newService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "demo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10 AAPL @ $48 quote, 5 GHOST with no quote.
	err = store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(acct.AccountID)
		if err != nil {
			return err
		}
		a.Cash = 5000000 // $50,000
		a.FrozenCash = 100000
		if err := tx.UpdateAccount(a); err != nil {
			return err
		}
		if err := tx.SavePosition(&domain.Position{
			AccountID: acct.AccountID, Symbol: "AAPL", Market: "US",
			Quantity: 10, AvailableQuantity: 10, AvgCost: 4500,
		}); err != nil {
			return err
		}
		return tx.SavePosition(&domain.Position{
			AccountID: acct.AccountID, Symbol: "GHOST", Market: "US",
			Quantity: 5, AvailableQuantity: 5, AvgCost: 1000,
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	quotes.SetPrice("AAPL", "US", 4800)

	ov, err := svc.Overview(ctx, acct.AccountID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ov.Cash != 50000.0 {
		t.Errorf("expected cash 50000, got %v", ov.Cash)
	}
	if ov.FrozenCash != 1000.0 {
		t.Errorf("expected frozen 1000, got %v", ov.FrozenCash)
	}
	if ov.AvailableCash != 49000.0 {
		t.Errorf("expected available 49000, got %v", ov.AvailableCash)
	}
	// Market value counts only the quoted position: 10 * $48 = $480.
	if ov.MarketValue != 480.0 {
		t.Errorf("expected market value 480, got %v", ov.MarketValue)
	}
	if ov.TotalAssets != 50480.0 {
		t.Errorf("expected total assets 50480, got %v", ov.TotalAssets)
	}
	// P&L against the $100,000 initial capital.
	if ov.TotalPnL != -49520.0 {
		t.Errorf("expected pnl -49520, got %v", ov.TotalPnL)
	}
	if ov.PositionCount != 2 {
		t.Errorf("expected 2 positions, got %d", ov.PositionCount)
	}
}

func TestOverviewUnknownAccount(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Overview(context.Background(), "missing")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPositionsEnrichment(t *testing.T) {
	svc, store, quotes := newService(t)
	ctx := context.Background()
	acct, _ := svc.CreateAccount(ctx, "demo", nil)

	_ = store.InTx(ctx, func(tx ledger.Tx) error {
		if err := tx.SavePosition(&domain.Position{
			AccountID: acct.AccountID, Symbol: "AAPL", Market: "US",
			Quantity: 10, AvailableQuantity: 8, AvgCost: 4000,
		}); err != nil {
			return err
		}
		return tx.SavePosition(&domain.Position{
			AccountID: acct.AccountID, Symbol: "GHOST", Market: "US",
			Quantity: 5, AvailableQuantity: 5, AvgCost: 1000,
		})
	})
	quotes.SetPrice("AAPL", "US", 4800)

	views, err := svc.Positions(ctx, acct.AccountID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(views))
	}

	byName := map[string]PositionView{}
	for _, v := range views {
		byName[v.Symbol] = v
	}

	aapl := byName["AAPL"]
	if aapl.LastPrice == nil || *aapl.LastPrice != 48.0 {
		t.Errorf("expected last price 48, got %v", aapl.LastPrice)
	}
	if aapl.MarketValue == nil || *aapl.MarketValue != 480.0 {
		t.Errorf("expected market value 480, got %v", aapl.MarketValue)
	}
	// (4800 - 4000) * 10 = 8000 cents = $80.
	if aapl.UnrealizedPnL == nil || *aapl.UnrealizedPnL != 80.0 {
		t.Errorf("expected unrealized pnl 80, got %v", aapl.UnrealizedPnL)
	}
	if aapl.UnrealizedPnLPct == nil || *aapl.UnrealizedPnLPct != 20.0 {
		t.Errorf("expected unrealized pnl pct 20, got %v", aapl.UnrealizedPnLPct)
	}

	ghost := byName["GHOST"]
	if ghost.LastPrice != nil || ghost.MarketValue != nil {
		t.Error("unquoted position must have nil pricing fields")
	}
	if ghost.AvgCost != 10.0 {
		t.Errorf("expected avg cost 10, got %v", ghost.AvgCost)
	}
}

func TestSnapshotComposition(t *testing.T) {
	svc, store, quotes := newService(t)
	ctx := context.Background()
	acct, _ := svc.CreateAccount(ctx, "demo", nil)
	quotes.SetPrice("AAPL", "US", 4800)

	now := time.Now().UTC()
	filled := now.Add(time.Second)
	err := store.InTx(ctx, func(tx ledger.Tx) error {
		if err := tx.CreateOrder(&domain.Order{
			OrderNo: "o1", AccountID: acct.AccountID, Symbol: "AAPL", Market: "US",
			Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit,
			Price: 5000, Quantity: 10, FilledQuantity: 10,
			Status: domain.OrderStatusFilled, CreatedAt: now, FilledAt: &filled,
		}); err != nil {
			return err
		}
		if err := tx.SavePosition(&domain.Position{
			AccountID: acct.AccountID, Symbol: "AAPL", Market: "US",
			Quantity: 10, AvailableQuantity: 10, AvgCost: 4800,
		}); err != nil {
			return err
		}
		return tx.AppendTrade(&domain.Trade{
			TradeID: "t1", OrderNo: "o1", AccountID: acct.AccountID,
			Symbol: "AAPL", Market: "US", Side: domain.OrderSideBuy,
			Price: 4800, Quantity: 10, Commission: 100, ExecutedAt: filled,
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := svc.Snapshot(ctx, acct.AccountID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Overview == nil || snap.Overview.AccountID != acct.AccountID {
		t.Fatal("expected overview in snapshot")
	}
	if len(snap.Positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(snap.Positions))
	}
	if len(snap.Orders) != 1 {
		t.Errorf("expected 1 order, got %d", len(snap.Orders))
	}
	if len(snap.Trades) != 1 {
		t.Errorf("expected 1 trade, got %d", len(snap.Trades))
	}
	if snap.Orders[0].FilledAt == nil {
		t.Error("expected filled_at on order view")
	}
	if snap.Trades[0].Price != 48.0 {
		t.Errorf("expected trade price 48, got %v", snap.Trades[0].Price)
	}
	if snap.GeneratedAt == "" {
		t.Error("expected generated_at")
	}
}

func TestOrdersStatusFilter(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	acct, _ := svc.CreateAccount(ctx, "demo", nil)

	base := time.Now().UTC()
	for i, st := range []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusFilled, domain.OrderStatusPending,
	} {
		o := &domain.Order{
			OrderNo: []string{"o1", "o2", "o3"}[i], AccountID: acct.AccountID,
			Symbol: "AAPL", Market: "US", Side: domain.OrderSideBuy,
			Type: domain.OrderTypeLimit, Price: 5000, Quantity: 1,
			Status: st, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if st == domain.OrderStatusFilled {
			o.FilledQuantity = o.Quantity
			filledAt := base
			o.FilledAt = &filledAt
		}
		_ = store.InTx(ctx, func(tx ledger.Tx) error { return tx.CreateOrder(o) })
	}

	pending := domain.OrderStatusPending
	views, err := svc.Orders(ctx, acct.AccountID, &pending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 pending orders, got %d", len(views))
	}
	if views[0].OrderNo != "o3" {
		t.Errorf("expected newest first, got %s", views[0].OrderNo)
	}
}
