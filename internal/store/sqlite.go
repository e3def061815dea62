package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// sqliteSchema mirrors the PostgreSQL schema for a single local file.
// Decimals are stored as TEXT and round-tripped through shopspring/decimal;
// timestamps are stored in the fixed "YYYY-MM-DD HH:MM:SS" layout, so
// string comparison in ORDER BY and range filters is chronological.
// rowid breaks same-second ties in insertion order.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS clients (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	email             TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	capital_available TEXT NOT NULL DEFAULT '0',
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS investments (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL REFERENCES clients(id),
	company    TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	avg_price  TEXT NOT NULL,
	shares     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (client_id, company)
);

CREATE TABLE IF NOT EXISTS cash_movements (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL REFERENCES clients(id),
	type       TEXT NOT NULL,
	amount     TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS investment_trades (
	id            TEXT PRIMARY KEY,
	investment_id TEXT NOT NULL REFERENCES investments(id),
	type          TEXT NOT NULL,
	shares        TEXT NOT NULL,
	price         TEXT NOT NULL,
	amount        TEXT NOT NULL,
	note          TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	investment_id TEXT NOT NULL REFERENCES investments(id),
	price         TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on a single local SQLite file — the store
// the desktop deployment uses. Not designed for concurrent writers.
type SQLiteStore struct {
	q  sqlQuerier
	db *sql.DB // nil when this store is bound to a transaction
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// enables foreign-key enforcement.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The file is a single-writer store.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteStore{q: db, db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema creates the ledger tables if they do not exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteSchema)
	return err
}

// WithTx runs fn against a store bound to a single transaction. Any error
// from fn rolls the transaction back and is returned unchanged.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.db == nil {
		// Already inside a transaction.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&SQLiteStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(model.TimestampLayout)
}

func parseSqliteTime(s string) time.Time {
	t, _ := time.Parse(model.TimestampLayout, s)
	return t
}

// --- Clients ---

func (s *SQLiteStore) ListClients(ctx context.Context, query string) ([]model.Client, error) {
	q := `SELECT id, name, email, phone, capital_available, created_at FROM clients`
	args := []any{}
	if query != "" {
		q += ` WHERE name LIKE ?`
		args = append(args, "%"+query+"%")
	}
	q += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		var capital, createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &capital, &createdAt); err != nil {
			return nil, err
		}
		c.CapitalAvailable, _ = decimal.NewFromString(capital)
		c.CreatedAt = parseSqliteTime(createdAt)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *SQLiteStore) CreateClient(ctx context.Context, c *model.Client) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO clients (id, name, email, phone, capital_available, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.CapitalAvailable.String(), sqliteTime(c.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*model.Client, error) {
	var c model.Client
	var capital, createdAt string

	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, email, phone, capital_available, created_at
		 FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &capital, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s: %w", id, err)
	}

	c.CapitalAvailable, _ = decimal.NewFromString(capital)
	c.CreatedAt = parseSqliteTime(createdAt)
	return &c, nil
}

func (s *SQLiteStore) AdjustClientCapital(ctx context.Context, id string, delta decimal.Decimal) error {
	// TEXT-stored decimals cannot be adjusted in SQL; read-modify-write.
	// Safe under the single-connection, single-writer configuration.
	c, err := s.GetClient(ctx, id)
	if err != nil {
		return err
	}
	capital := c.CapitalAvailable.Add(delta)
	_, err = s.q.ExecContext(ctx,
		`UPDATE clients SET capital_available = ? WHERE id = ?`,
		capital.String(), id,
	)
	return err
}

// --- Investments ---

const sqliteInvestmentCols = `id, client_id, company, category, avg_price, shares, created_at`

func scanSqliteInvestment(scan func(dest ...any) error) (*model.Investment, error) {
	var inv model.Investment
	var avgPrice, shares, createdAt string
	if err := scan(&inv.ID, &inv.ClientID, &inv.Company, &inv.Category,
		&avgPrice, &shares, &createdAt); err != nil {
		return nil, err
	}
	inv.AvgPrice, _ = decimal.NewFromString(avgPrice)
	inv.Shares, _ = decimal.NewFromString(shares)
	inv.CreatedAt = parseSqliteTime(createdAt)
	return &inv, nil
}

func (s *SQLiteStore) queryInvestments(ctx context.Context, query string, args ...any) ([]model.Investment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []model.Investment
	for rows.Next() {
		inv, err := scanSqliteInvestment(rows.Scan)
		if err != nil {
			return nil, err
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

func (s *SQLiteStore) GetInvestmentsByClient(ctx context.Context, clientID string) ([]model.Investment, error) {
	return s.queryInvestments(ctx,
		`SELECT `+sqliteInvestmentCols+` FROM investments
		 WHERE client_id = ? ORDER BY created_at DESC, rowid DESC`, clientID)
}

func (s *SQLiteStore) GetAllInvestments(ctx context.Context) ([]model.Investment, error) {
	return s.queryInvestments(ctx,
		`SELECT `+sqliteInvestmentCols+` FROM investments`)
}

func (s *SQLiteStore) GetInvestmentByCompany(ctx context.Context, clientID, company string) (*model.Investment, error) {
	inv, err := scanSqliteInvestment(s.q.QueryRowContext(ctx,
		`SELECT `+sqliteInvestmentCols+` FROM investments
		 WHERE client_id = ? AND company = ?`, clientID, company).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get investment %s/%s: %w", clientID, company, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get investment %s/%s: %w", clientID, company, err)
	}
	return inv, nil
}

func (s *SQLiteStore) GetInvestment(ctx context.Context, id string) (*model.Investment, error) {
	inv, err := scanSqliteInvestment(s.q.QueryRowContext(ctx,
		`SELECT `+sqliteInvestmentCols+` FROM investments WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get investment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get investment %s: %w", id, err)
	}
	return inv, nil
}

func (s *SQLiteStore) CreateInvestment(ctx context.Context, inv *model.Investment) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO investments (id, client_id, company, category, avg_price, shares, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ClientID, inv.Company, inv.Category,
		inv.AvgPrice.String(), inv.Shares.String(), sqliteTime(inv.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) UpdateInvestment(ctx context.Context, id string, avgPrice, shares decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE investments SET avg_price = ?, shares = ? WHERE id = ?`,
		avgPrice.String(), shares.String(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update investment %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Immutable ledger records ---

func (s *SQLiteStore) InsertCashMovement(ctx context.Context, m *model.CashMovement) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO cash_movements (id, client_id, type, amount, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ClientID, m.Type, m.Amount.String(), m.Note, sqliteTime(m.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO investment_trades (id, investment_id, type, shares, price, amount, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.InvestmentID, t.Type, t.Shares.String(), t.Price.String(),
		t.Amount.String(), t.Note, sqliteTime(t.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) InsertPricePoint(ctx context.Context, p *model.PricePoint) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO price_history (investment_id, price, created_at)
		 VALUES (?, ?, ?)`,
		p.InvestmentID, p.Price.String(), sqliteTime(p.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) LastPrice(ctx context.Context, investmentID string) (decimal.Decimal, error) {
	var price string
	err := s.q.QueryRowContext(ctx,
		`SELECT price FROM price_history
		 WHERE investment_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, investmentID).
		Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("last price for %s: %w", investmentID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, err
	}
	p, _ := decimal.NewFromString(price)
	return p, nil
}

func (s *SQLiteStore) PriceHistory(ctx context.Context, investmentID string) ([]model.PricePoint, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT investment_id, price, created_at FROM price_history
		 WHERE investment_id = ?
		 ORDER BY created_at DESC, rowid DESC`, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var price, createdAt string
		if err := rows.Scan(&p.InvestmentID, &price, &createdAt); err != nil {
			return nil, err
		}
		p.Price, _ = decimal.NewFromString(price)
		p.CreatedAt = parseSqliteTime(createdAt)
		points = append(points, p)
	}
	return points, rows.Err()
}

// --- History queries ---

func (s *SQLiteStore) CashMovements(ctx context.Context, clientID string, from, to *time.Time) ([]model.CashMovement, error) {
	q := `SELECT id, client_id, type, amount, note, created_at
	      FROM cash_movements WHERE client_id = ?`
	args := []any{clientID}
	if from != nil && to != nil {
		q += ` AND created_at BETWEEN ? AND ?`
		args = append(args, sqliteTime(*from), sqliteTime(*to))
	}
	q += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []model.CashMovement
	for rows.Next() {
		var m model.CashMovement
		var amount, createdAt string
		if err := rows.Scan(&m.ID, &m.ClientID, &m.Type, &amount, &m.Note, &createdAt); err != nil {
			return nil, err
		}
		m.Amount, _ = decimal.NewFromString(amount)
		m.CreatedAt = parseSqliteTime(createdAt)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *SQLiteStore) TradesWithCompany(ctx context.Context, clientID string, from, to *time.Time) ([]model.TradeWithCompany, error) {
	q := `SELECT it.id, it.investment_id, it.type, it.shares, it.price, it.amount,
	             it.note, it.created_at, inv.company
	      FROM investment_trades it
	      JOIN investments inv ON inv.id = it.investment_id
	      WHERE inv.client_id = ?`
	args := []any{clientID}
	if from != nil && to != nil {
		q += ` AND it.created_at BETWEEN ? AND ?`
		args = append(args, sqliteTime(*from), sqliteTime(*to))
	}
	q += ` ORDER BY it.created_at DESC, it.rowid DESC`

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.TradeWithCompany
	for rows.Next() {
		var t model.TradeWithCompany
		var shares, price, amount, createdAt string
		if err := rows.Scan(&t.ID, &t.InvestmentID, &t.Type,
			&shares, &price, &amount, &t.Note, &createdAt, &t.Company); err != nil {
			return nil, err
		}
		t.Shares, _ = decimal.NewFromString(shares)
		t.Price, _ = decimal.NewFromString(price)
		t.Amount, _ = decimal.NewFromString(amount)
		t.CreatedAt = parseSqliteTime(createdAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
