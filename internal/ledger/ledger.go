// Package ledger provides durable storage for accounts, positions,
// orders, and trades with transactional read-modify-write semantics.
//
// All engine mutations run inside InTx: the pre-condition re-check and
// the writes either commit together or not at all. Two implementations
// exist: MemoryStore (tests, demo) and SQLiteStore (durable).
package ledger

import (
	"context"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Tx is the view of the ledger inside a transaction. Reads return
// private copies; mutations become visible only when the InTx callback
// returns nil.
type Tx interface {
	Account(id string) (*domain.Account, error)
	UpdateAccount(a *domain.Account) error

	Position(accountID, symbol, market string) (*domain.Position, error)
	SavePosition(p *domain.Position) error

	Order(orderNo string) (*domain.Order, error)
	CreateOrder(o *domain.Order) error
	UpdateOrder(o *domain.Order) error

	AppendTrade(t *domain.Trade) error
}

// Store is the ledger interface consumed by the engine and services.
type Store interface {
	// InTx runs fn inside a transaction. If fn returns an error the
	// transaction rolls back with no partial writes and the error is
	// returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateAccount(ctx context.Context, a *domain.Account) error
	Account(ctx context.Context, id string) (*domain.Account, error)

	Positions(ctx context.Context, accountID string) ([]*domain.Position, error)

	Order(ctx context.Context, orderNo string) (*domain.Order, error)
	// Orders lists an account's orders newest first, optionally filtered
	// by status.
	Orders(ctx context.Context, accountID string, status *domain.OrderStatus) ([]*domain.Order, error)
	// PendingOrders lists every pending order across all accounts in
	// creation order (oldest first), the order the sweep visits them in.
	PendingOrders(ctx context.Context) ([]*domain.Order, error)
	// OrderCounts returns the number of orders per status.
	OrderCounts(ctx context.Context) (map[domain.OrderStatus]int, error)

	// Trades lists an account's trades newest first, up to limit
	// (limit <= 0 means no cap).
	Trades(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error)

	Close() error
}
