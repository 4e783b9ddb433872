package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id      TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	initial_capital INTEGER NOT NULL,
	cash            INTEGER NOT NULL,
	frozen_cash     INTEGER NOT NULL,
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	account_id         TEXT NOT NULL,
	symbol             TEXT NOT NULL,
	name               TEXT NOT NULL DEFAULT '',
	market             TEXT NOT NULL,
	quantity           INTEGER NOT NULL,
	available_quantity INTEGER NOT NULL,
	avg_cost           INTEGER NOT NULL,
	PRIMARY KEY (account_id, symbol, market)
);

CREATE TABLE IF NOT EXISTS orders (
	order_no        TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	market          TEXT NOT NULL,
	side            TEXT NOT NULL,
	order_type      TEXT NOT NULL,
	price           INTEGER NOT NULL,
	quantity        INTEGER NOT NULL,
	filled_quantity INTEGER NOT NULL,
	status          TEXT NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	filled_at       INTEGER,
	cancelled_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_account ON orders (account_id, created_at);

CREATE TABLE IF NOT EXISTS trades (
	trade_id    TEXT PRIMARY KEY,
	order_no    TEXT NOT NULL,
	account_id  TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	market      TEXT NOT NULL,
	side        TEXT NOT NULL,
	price       INTEGER NOT NULL,
	quantity    INTEGER NOT NULL,
	commission  INTEGER NOT NULL,
	executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_account ON trades (account_id, executed_at);
`

// SQLiteStore is a Store backed by a SQLite database. Timestamps are
// stored as Unix milliseconds. The connection pool is capped at one
// connection so transactions serialize instead of returning SQLITE_BUSY.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite ledger at path and applies the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

// InTx runs fn inside a database transaction, rolling back on error.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *sqlTx) Account(id string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRowContext(t.ctx,
		`SELECT account_id, name, initial_capital, cash, frozen_cash, created_at
		 FROM accounts WHERE account_id = ?`, id))
}

func (t *sqlTx) UpdateAccount(a *domain.Account) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE accounts SET cash = ?, frozen_cash = ? WHERE account_id = ?`,
		a.Cash, a.FrozenCash, a.AccountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (t *sqlTx) Position(accountID, symbol, market string) (*domain.Position, error) {
	return scanPosition(t.tx.QueryRowContext(t.ctx,
		`SELECT account_id, symbol, name, market, quantity, available_quantity, avg_cost
		 FROM positions WHERE account_id = ? AND symbol = ? AND market = ?`,
		accountID, symbol, market))
}

func (t *sqlTx) SavePosition(p *domain.Position) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO positions (account_id, symbol, name, market, quantity, available_quantity, avg_cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, symbol, market) DO UPDATE SET
			quantity = excluded.quantity,
			available_quantity = excluded.available_quantity,
			avg_cost = excluded.avg_cost`,
		p.AccountID, p.Symbol, p.Name, p.Market, p.Quantity, p.AvailableQuantity, p.AvgCost)
	return err
}

func (t *sqlTx) Order(orderNo string) (*domain.Order, error) {
	return scanOrder(t.tx.QueryRowContext(t.ctx, selectOrder+` WHERE order_no = ?`, orderNo))
}

func (t *sqlTx) CreateOrder(o *domain.Order) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO orders (order_no, account_id, symbol, name, market, side, order_type,
			price, quantity, filled_quantity, status, reason, created_at, filled_at, cancelled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderNo, o.AccountID, o.Symbol, o.Name, o.Market, o.Side, o.Type,
		o.Price, o.Quantity, o.FilledQuantity, o.Status, o.Reason,
		o.CreatedAt.UnixMilli(), nullMilli(o.FilledAt), nullMilli(o.CancelledAt))
	return err
}

func (t *sqlTx) UpdateOrder(o *domain.Order) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE orders SET filled_quantity = ?, status = ?, reason = ?, filled_at = ?, cancelled_at = ?
		 WHERE order_no = ?`,
		o.FilledQuantity, o.Status, o.Reason, nullMilli(o.FilledAt), nullMilli(o.CancelledAt), o.OrderNo)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *sqlTx) AppendTrade(tr *domain.Trade) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO trades (trade_id, order_no, account_id, symbol, name, market, side,
			price, quantity, commission, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.TradeID, tr.OrderNo, tr.AccountID, tr.Symbol, tr.Name, tr.Market, tr.Side,
		tr.Price, tr.Quantity, tr.Commission, tr.ExecutedAt.UnixMilli())
	return err
}

// CreateAccount inserts a new account row.
func (s *SQLiteStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (account_id, name, initial_capital, cash, frozen_cash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.AccountID, a.Name, a.InitialCapital, a.Cash, a.FrozenCash, a.CreatedAt.UnixMilli())
	if err != nil && isUniqueViolation(err) {
		return domain.ErrAccountAlreadyExists
	}
	return err
}

// Account retrieves an account by ID.
func (s *SQLiteStore) Account(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT account_id, name, initial_capital, cash, frozen_cash, created_at
		 FROM accounts WHERE account_id = ?`, id))
}

// Positions lists an account's positions sorted by symbol.
func (s *SQLiteStore) Positions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, symbol, name, market, quantity, available_quantity, avg_cost
		 FROM positions WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const selectOrder = `SELECT order_no, account_id, symbol, name, market, side, order_type,
	price, quantity, filled_quantity, status, reason, created_at, filled_at, cancelled_at
	FROM orders`

// Order retrieves an order by number.
func (s *SQLiteStore) Order(ctx context.Context, orderNo string) (*domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE order_no = ?`, orderNo))
}

// Orders lists an account's orders newest first, optionally filtered by
// status.
func (s *SQLiteStore) Orders(ctx context.Context, accountID string, status *domain.OrderStatus) ([]*domain.Order, error) {
	query := selectOrder + ` WHERE account_id = ?`
	args := []any{accountID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, order_no DESC`

	return s.queryOrders(ctx, query, args...)
}

// PendingOrders lists all pending orders across accounts, oldest first.
func (s *SQLiteStore) PendingOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.queryOrders(ctx,
		selectOrder+` WHERE status = ? ORDER BY created_at, order_no`,
		domain.OrderStatusPending)
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OrderCounts returns order counts grouped by status.
func (s *SQLiteStore) OrderCounts(ctx context.Context) (map[domain.OrderStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int)
	for rows.Next() {
		var status domain.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Trades lists an account's trades newest first, up to limit.
func (s *SQLiteStore) Trades(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	query := `SELECT trade_id, order_no, account_id, symbol, name, market, side,
		price, quantity, commission, executed_at
		FROM trades WHERE account_id = ? ORDER BY executed_at DESC, trade_id DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Trade, 0)
	for rows.Next() {
		var tr domain.Trade
		var executedAt int64
		if err := rows.Scan(&tr.TradeID, &tr.OrderNo, &tr.AccountID, &tr.Symbol, &tr.Name,
			&tr.Market, &tr.Side, &tr.Price, &tr.Quantity, &tr.Commission, &executedAt); err != nil {
			return nil, err
		}
		tr.ExecutedAt = time.UnixMilli(executedAt).UTC()
		out = append(out, &tr)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var createdAt int64
	err := row.Scan(&a.AccountID, &a.Name, &a.InitialCapital, &a.Cash, &a.FrozenCash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &a, nil
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	err := row.Scan(&p.AccountID, &p.Symbol, &p.Name, &p.Market,
		&p.Quantity, &p.AvailableQuantity, &p.AvgCost)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var createdAt int64
	var filledAt, cancelledAt sql.NullInt64
	err := row.Scan(&o.OrderNo, &o.AccountID, &o.Symbol, &o.Name, &o.Market, &o.Side, &o.Type,
		&o.Price, &o.Quantity, &o.FilledQuantity, &o.Status, &o.Reason,
		&createdAt, &filledAt, &cancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.CreatedAt = time.UnixMilli(createdAt).UTC()
	if filledAt.Valid {
		t := time.UnixMilli(filledAt.Int64).UTC()
		o.FilledAt = &t
	}
	if cancelledAt.Valid {
		t := time.UnixMilli(cancelledAt.Int64).UTC()
		o.CancelledAt = &t
	}
	return &o, nil
}

func nullMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
