package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
)

func newAccount(id string, cash int64) *domain.Account {
	return &domain.Account{
		AccountID:      id,
		Name:           "test",
		InitialCapital: cash,
		Cash:           cash,
		CreatedAt:      time.Now(),
	}
}

func newPendingOrder(no, accountID string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderNo:   no,
		AccountID: accountID,
		Symbol:    "AAPL",
		Market:    "US",
		Side:      domain.OrderSideBuy,
		Type:      domain.OrderTypeLimit,
		Price:     5000,
		Quantity:  10,
		Status:    domain.OrderStatusPending,
		CreatedAt: createdAt,
	}
}

func TestMemoryStoreCreateAccount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateAccount(ctx, newAccount("a1", 100000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CreateAccount(ctx, newAccount("a1", 100000)); !errors.Is(err, domain.ErrAccountAlreadyExists) {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}

	a, err := s.Account(ctx, "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Cash != 100000 {
		t.Errorf("expected cash 100000, got %d", a.Cash)
	}

	if _, err := s.Account(ctx, "missing"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMemoryStoreInTxCommit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newAccount("a1", 100000))

	err := s.InTx(ctx, func(tx Tx) error {
		a, err := tx.Account("a1")
		if err != nil {
			return err
		}
		a.Cash -= 48100
		a.FrozenCash = 2000
		if err := tx.UpdateAccount(a); err != nil {
			return err
		}
		return tx.SavePosition(&domain.Position{
			AccountID: "a1", Symbol: "AAPL", Market: "US",
			Quantity: 10, AvailableQuantity: 10, AvgCost: 4800,
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := s.Account(ctx, "a1")
	if a.Cash != 51900 || a.FrozenCash != 2000 {
		t.Errorf("expected cash=51900 frozen=2000, got cash=%d frozen=%d", a.Cash, a.FrozenCash)
	}

	positions, _ := s.Positions(ctx, "a1")
	if len(positions) != 1 || positions[0].Quantity != 10 {
		t.Fatalf("expected 1 position with quantity 10, got %+v", positions)
	}
}

func TestMemoryStoreInTxRollback(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newAccount("a1", 100000))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		a, _ := tx.Account("a1")
		a.Cash = 0
		_ = tx.UpdateAccount(a)
		_ = tx.CreateOrder(newPendingOrder("o1", "a1", time.Now()))
		_ = tx.AppendTrade(&domain.Trade{TradeID: "t1", AccountID: "a1"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	a, _ := s.Account(ctx, "a1")
	if a.Cash != 100000 {
		t.Errorf("rollback must leave cash unchanged, got %d", a.Cash)
	}
	if _, err := s.Order(ctx, "o1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("rollback must discard created order, got %v", err)
	}
	trades, _ := s.Trades(ctx, "a1", 0)
	if len(trades) != 0 {
		t.Errorf("rollback must discard trades, got %d", len(trades))
	}
}

func TestMemoryStorePendingOrdersCreationOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newAccount("a1", 100000))

	base := time.Now()
	for i, no := range []string{"o2", "o1", "o3"} {
		offsets := []time.Duration{time.Second, 0, 2 * time.Second}
		o := newPendingOrder(no, "a1", base.Add(offsets[i]))
		if err := s.InTx(ctx, func(tx Tx) error { return tx.CreateOrder(o) }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	pending, err := s.PendingOrders(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending orders, got %d", len(pending))
	}
	want := []string{"o1", "o2", "o3"}
	for i, o := range pending {
		if o.OrderNo != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], o.OrderNo)
		}
	}
}

func TestMemoryStoreTerminalOrderLeavesPendingIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newAccount("a1", 100000))

	o := newPendingOrder("o1", "a1", time.Now())
	_ = s.InTx(ctx, func(tx Tx) error { return tx.CreateOrder(o) })

	err := s.InTx(ctx, func(tx Tx) error {
		stored, err := tx.Order("o1")
		if err != nil {
			return err
		}
		now := time.Now()
		stored.Status = domain.OrderStatusFilled
		stored.FilledQuantity = stored.Quantity
		stored.FilledAt = &now
		return tx.UpdateOrder(stored)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := s.PendingOrders(ctx)
	if len(pending) != 0 {
		t.Errorf("filled order must leave the pending index, got %d pending", len(pending))
	}

	stored, _ := s.Order(ctx, "o1")
	if stored.Status != domain.OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", stored.Status)
	}
}

func TestMemoryStoreOrdersNewestFirstWithStatusFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newAccount("a1", 100000))

	base := time.Now()
	for i := 0; i < 3; i++ {
		o := newPendingOrder([]string{"o1", "o2", "o3"}[i], "a1", base.Add(time.Duration(i)*time.Second))
		_ = s.InTx(ctx, func(tx Tx) error { return tx.CreateOrder(o) })
	}
	_ = s.InTx(ctx, func(tx Tx) error {
		o, _ := tx.Order("o2")
		now := time.Now()
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &now
		return tx.UpdateOrder(o)
	})

	all, _ := s.Orders(ctx, "a1", nil)
	if len(all) != 3 || all[0].OrderNo != "o3" || all[2].OrderNo != "o1" {
		t.Fatalf("expected newest-first o3,o2,o1, got %+v", orderNos(all))
	}

	pending := domain.OrderStatusPending
	got, _ := s.Orders(ctx, "a1", &pending)
	if len(got) != 2 {
		t.Errorf("expected 2 pending orders, got %d", len(got))
	}
}

func TestMemoryStoreTradesLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tr := &domain.Trade{TradeID: string(rune('a' + i)), AccountID: "a1", ExecutedAt: time.Now()}
		_ = s.InTx(ctx, func(tx Tx) error { return tx.AppendTrade(tr) })
	}

	trades, _ := s.Trades(ctx, "a1", 3)
	if len(trades) != 3 {
		t.Errorf("expected 3 trades with limit, got %d", len(trades))
	}
	// Newest first: the last appended trade comes back first.
	if trades[0].TradeID != "e" {
		t.Errorf("expected newest trade first, got %s", trades[0].TradeID)
	}
}

func orderNos(orders []*domain.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.OrderNo
	}
	return out
}
