package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/papertrade/internal/domain"
)

// pendingRef orders the pending index by creation time, with the order
// number as tiebreaker for orders created in the same instant.
type pendingRef struct {
	createdAt time.Time
	orderNo   string
}

func pendingLess(a, b pendingRef) bool {
	if a.createdAt.Equal(b.createdAt) {
		return a.orderNo < b.orderNo
	}
	return a.createdAt.Before(b.createdAt)
}

type posKey struct {
	accountID string
	symbol    string
	market    string
}

// MemoryStore is an in-memory Store. A single mutex serializes
// transactions, which gives InTx its atomicity: a transaction stages
// copies of everything it touches and applies them only on success.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]*domain.Account
	positions     map[posKey]*domain.Position
	orders        map[string]*domain.Order
	accountOrders map[string][]string // account → order numbers, creation order
	trades        map[string][]*domain.Trade
	pending       *btree.BTreeG[pendingRef]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]*domain.Account),
		positions:     make(map[posKey]*domain.Position),
		orders:        make(map[string]*domain.Order),
		accountOrders: make(map[string][]string),
		trades:        make(map[string][]*domain.Trade),
		pending:       btree.NewG(2, pendingLess),
	}
}

// memTx stages reads and writes for one transaction.
type memTx struct {
	s         *MemoryStore
	accounts  map[string]*domain.Account
	positions map[posKey]*domain.Position
	orders    map[string]*domain.Order
	dirtyAcct map[string]bool
	dirtyPos  map[posKey]bool
	dirtyOrd  map[string]bool
	newOrders []*domain.Order
	newTrades []*domain.Trade
}

// InTx runs fn under the store lock. Staged writes are applied only
// when fn returns nil.
func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:         s,
		accounts:  make(map[string]*domain.Account),
		positions: make(map[posKey]*domain.Position),
		orders:    make(map[string]*domain.Order),
		dirtyAcct: make(map[string]bool),
		dirtyPos:  make(map[posKey]bool),
		dirtyOrd:  make(map[string]bool),
	}

	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

func (tx *memTx) commit() {
	s := tx.s

	for id := range tx.dirtyAcct {
		cp := *tx.accounts[id]
		s.accounts[id] = &cp
	}
	for k := range tx.dirtyPos {
		cp := *tx.positions[k]
		s.positions[k] = &cp
	}
	for no := range tx.dirtyOrd {
		cp := cloneOrder(tx.orders[no])
		prev, existed := s.orders[no]
		s.orders[no] = cp
		if existed && prev.Status == domain.OrderStatusPending && cp.Status != domain.OrderStatusPending {
			s.pending.Delete(pendingRef{createdAt: cp.CreatedAt, orderNo: no})
		}
	}
	for _, o := range tx.newOrders {
		cp := cloneOrder(o)
		s.orders[o.OrderNo] = cp
		s.accountOrders[o.AccountID] = append(s.accountOrders[o.AccountID], o.OrderNo)
		if cp.Status == domain.OrderStatusPending {
			s.pending.ReplaceOrInsert(pendingRef{createdAt: cp.CreatedAt, orderNo: cp.OrderNo})
		}
	}
	for _, t := range tx.newTrades {
		cp := *t
		s.trades[t.AccountID] = append(s.trades[t.AccountID], &cp)
	}
}

func (tx *memTx) Account(id string) (*domain.Account, error) {
	if a, ok := tx.accounts[id]; ok {
		return a, nil
	}
	a, ok := tx.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	tx.accounts[id] = &cp
	return &cp, nil
}

func (tx *memTx) UpdateAccount(a *domain.Account) error {
	if _, ok := tx.s.accounts[a.AccountID]; !ok {
		return domain.ErrAccountNotFound
	}
	tx.accounts[a.AccountID] = a
	tx.dirtyAcct[a.AccountID] = true
	return nil
}

func (tx *memTx) Position(accountID, symbol, market string) (*domain.Position, error) {
	k := posKey{accountID, symbol, market}
	if p, ok := tx.positions[k]; ok {
		return p, nil
	}
	p, ok := tx.s.positions[k]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	cp := *p
	tx.positions[k] = &cp
	return &cp, nil
}

func (tx *memTx) SavePosition(p *domain.Position) error {
	k := posKey{p.AccountID, p.Symbol, p.Market}
	tx.positions[k] = p
	tx.dirtyPos[k] = true
	return nil
}

func (tx *memTx) Order(orderNo string) (*domain.Order, error) {
	if o, ok := tx.orders[orderNo]; ok {
		return o, nil
	}
	o, ok := tx.s.orders[orderNo]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := cloneOrder(o)
	tx.orders[orderNo] = cp
	return cp, nil
}

func (tx *memTx) CreateOrder(o *domain.Order) error {
	tx.newOrders = append(tx.newOrders, o)
	return nil
}

func (tx *memTx) UpdateOrder(o *domain.Order) error {
	if _, ok := tx.s.orders[o.OrderNo]; !ok {
		return domain.ErrOrderNotFound
	}
	tx.orders[o.OrderNo] = o
	tx.dirtyOrd[o.OrderNo] = true
	return nil
}

func (tx *memTx) AppendTrade(t *domain.Trade) error {
	tx.newTrades = append(tx.newTrades, t)
	return nil
}

// CreateAccount adds an account. Returns domain.ErrAccountAlreadyExists
// if the ID is taken.
func (s *MemoryStore) CreateAccount(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.AccountID]; exists {
		return domain.ErrAccountAlreadyExists
	}
	cp := *a
	s.accounts[a.AccountID] = &cp
	return nil
}

// Account retrieves an account by ID.
func (s *MemoryStore) Account(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// Positions lists an account's positions sorted by symbol.
func (s *MemoryStore) Positions(_ context.Context, accountID string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Position, 0)
	for k, p := range s.positions {
		if k.accountID != accountID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Order retrieves an order by number.
func (s *MemoryStore) Order(_ context.Context, orderNo string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderNo]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// Orders lists an account's orders newest first, optionally filtered by
// status.
func (s *MemoryStore) Orders(_ context.Context, accountID string, status *domain.OrderStatus) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nos := s.accountOrders[accountID]
	out := make([]*domain.Order, 0)
	for i := len(nos) - 1; i >= 0; i-- {
		o := s.orders[nos[i]]
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

// PendingOrders lists all pending orders across accounts, oldest first.
func (s *MemoryStore) PendingOrders(_ context.Context) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Order, 0, s.pending.Len())
	s.pending.Ascend(func(ref pendingRef) bool {
		if o, ok := s.orders[ref.orderNo]; ok {
			out = append(out, cloneOrder(o))
		}
		return true
	})
	return out, nil
}

// OrderCounts returns order counts grouped by status.
func (s *MemoryStore) OrderCounts(_ context.Context) (map[domain.OrderStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.OrderStatus]int)
	for _, o := range s.orders {
		counts[o.Status]++
	}
	return counts, nil
}

// Trades lists an account's trades newest first, up to limit.
func (s *MemoryStore) Trades(_ context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.trades[accountID]
	out := make([]*domain.Trade, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	if o.FilledAt != nil {
		t := *o.FilledAt
		cp.FilledAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
