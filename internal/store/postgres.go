package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// pgSchema creates the four ledger tables. Foreign keys are declared with
// no cascade: a client with recorded movements or investments cannot be
// deleted out from under its ledger.
const pgSchema = `
CREATE TABLE IF NOT EXISTS clients (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	email             TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	capital_available NUMERIC NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS investments (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL REFERENCES clients(id),
	company    TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	avg_price  NUMERIC NOT NULL,
	shares     NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (client_id, company)
);

CREATE TABLE IF NOT EXISTS cash_movements (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL REFERENCES clients(id),
	type       TEXT NOT NULL,
	amount     NUMERIC NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	seq        BIGSERIAL
);

CREATE TABLE IF NOT EXISTS investment_trades (
	id            TEXT PRIMARY KEY,
	investment_id TEXT NOT NULL REFERENCES investments(id),
	type          TEXT NOT NULL,
	shares        NUMERIC NOT NULL,
	price         NUMERIC NOT NULL,
	amount        NUMERIC NOT NULL,
	note          TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	seq           BIGSERIAL
);

CREATE TABLE IF NOT EXISTS price_history (
	investment_id TEXT NOT NULL REFERENCES investments(id),
	price         NUMERIC NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	seq           BIGSERIAL
);
`

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// query methods serve pooled and transactional execution.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	db   pgQuerier
	pool *pgxpool.Pool // nil when this store is bound to a transaction
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// InitSchema creates the ledger tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, pgSchema)
	return err
}

// WithTx runs fn against a store bound to a single transaction. Any error
// from fn rolls the transaction back and is returned unchanged.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		// Already inside a transaction.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&PostgresStore{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// --- Clients ---

func (s *PostgresStore) ListClients(ctx context.Context, query string) ([]model.Client, error) {
	sql := `SELECT id, name, email, phone, capital_available::TEXT, created_at
	        FROM clients`
	args := []any{}
	if query != "" {
		sql += ` WHERE name ILIKE $1`
		args = append(args, "%"+query+"%")
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		var capital string
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &capital, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CapitalAvailable, _ = decimal.NewFromString(capital)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *PostgresStore) CreateClient(ctx context.Context, c *model.Client) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO clients (id, name, email, phone, capital_available, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		c.ID, c.Name, c.Email, c.Phone, c.CapitalAvailable.String(), c.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetClient(ctx context.Context, id string) (*model.Client, error) {
	var c model.Client
	var capital string

	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, phone, capital_available::TEXT, created_at
		 FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &capital, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s: %w", id, err)
	}

	c.CapitalAvailable, _ = decimal.NewFromString(capital)
	return &c, nil
}

func (s *PostgresStore) AdjustClientCapital(ctx context.Context, id string, delta decimal.Decimal) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE clients
		 SET capital_available = capital_available + $2::NUMERIC
		 WHERE id = $1`,
		id, delta.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("adjust capital for client %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Investments ---

const pgInvestmentCols = `id, client_id, company, category, avg_price::TEXT, shares::TEXT, created_at`

func scanPgInvestment(row pgx.Row) (*model.Investment, error) {
	var inv model.Investment
	var avgPrice, shares string
	if err := row.Scan(&inv.ID, &inv.ClientID, &inv.Company, &inv.Category,
		&avgPrice, &shares, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.AvgPrice, _ = decimal.NewFromString(avgPrice)
	inv.Shares, _ = decimal.NewFromString(shares)
	return &inv, nil
}

func (s *PostgresStore) queryInvestments(ctx context.Context, sql string, args ...any) ([]model.Investment, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []model.Investment
	for rows.Next() {
		inv, err := scanPgInvestment(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

func (s *PostgresStore) GetInvestmentsByClient(ctx context.Context, clientID string) ([]model.Investment, error) {
	return s.queryInvestments(ctx,
		`SELECT `+pgInvestmentCols+` FROM investments
		 WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

func (s *PostgresStore) GetAllInvestments(ctx context.Context) ([]model.Investment, error) {
	return s.queryInvestments(ctx,
		`SELECT `+pgInvestmentCols+` FROM investments`)
}

func (s *PostgresStore) GetInvestmentByCompany(ctx context.Context, clientID, company string) (*model.Investment, error) {
	inv, err := scanPgInvestment(s.db.QueryRow(ctx,
		`SELECT `+pgInvestmentCols+` FROM investments
		 WHERE client_id = $1 AND company = $2`, clientID, company))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get investment %s/%s: %w", clientID, company, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get investment %s/%s: %w", clientID, company, err)
	}
	return inv, nil
}

func (s *PostgresStore) GetInvestment(ctx context.Context, id string) (*model.Investment, error) {
	inv, err := scanPgInvestment(s.db.QueryRow(ctx,
		`SELECT `+pgInvestmentCols+` FROM investments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get investment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get investment %s: %w", id, err)
	}
	return inv, nil
}

func (s *PostgresStore) CreateInvestment(ctx context.Context, inv *model.Investment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO investments (id, client_id, company, category, avg_price, shares, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		inv.ID, inv.ClientID, inv.Company, inv.Category,
		inv.AvgPrice.String(), inv.Shares.String(), inv.CreatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateInvestment(ctx context.Context, id string, avgPrice, shares decimal.Decimal) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE investments SET avg_price = $2::NUMERIC, shares = $3::NUMERIC WHERE id = $1`,
		id, avgPrice.String(), shares.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update investment %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Immutable ledger records ---

func (s *PostgresStore) InsertCashMovement(ctx context.Context, m *model.CashMovement) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO cash_movements (id, client_id, type, amount, note, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
		m.ID, m.ClientID, m.Type, m.Amount.String(), m.Note, m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO investment_trades (id, investment_id, type, shares, price, amount, note, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		t.ID, t.InvestmentID, t.Type, t.Shares.String(), t.Price.String(),
		t.Amount.String(), t.Note, t.CreatedAt,
	)
	return err
}

func (s *PostgresStore) InsertPricePoint(ctx context.Context, p *model.PricePoint) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO price_history (investment_id, price, created_at)
		 VALUES ($1, $2::NUMERIC, $3)`,
		p.InvestmentID, p.Price.String(), p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) LastPrice(ctx context.Context, investmentID string) (decimal.Decimal, error) {
	var price string
	err := s.db.QueryRow(ctx,
		`SELECT price::TEXT FROM price_history
		 WHERE investment_id = $1
		 ORDER BY created_at DESC, seq DESC LIMIT 1`, investmentID).
		Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("last price for %s: %w", investmentID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, err
	}
	p, _ := decimal.NewFromString(price)
	return p, nil
}

func (s *PostgresStore) PriceHistory(ctx context.Context, investmentID string) ([]model.PricePoint, error) {
	rows, err := s.db.Query(ctx,
		`SELECT investment_id, price::TEXT, created_at FROM price_history
		 WHERE investment_id = $1
		 ORDER BY created_at DESC, seq DESC`, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var price string
		if err := rows.Scan(&p.InvestmentID, &price, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Price, _ = decimal.NewFromString(price)
		points = append(points, p)
	}
	return points, rows.Err()
}

// --- History queries ---

func (s *PostgresStore) CashMovements(ctx context.Context, clientID string, from, to *time.Time) ([]model.CashMovement, error) {
	sql := `SELECT id, client_id, type, amount::TEXT, note, created_at
	        FROM cash_movements WHERE client_id = $1`
	args := []any{clientID}
	if from != nil && to != nil {
		sql += ` AND created_at >= $2 AND created_at <= $3`
		args = append(args, *from, *to)
	}
	sql += ` ORDER BY created_at DESC, seq DESC`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []model.CashMovement
	for rows.Next() {
		var m model.CashMovement
		var amount string
		if err := rows.Scan(&m.ID, &m.ClientID, &m.Type, &amount, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Amount, _ = decimal.NewFromString(amount)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *PostgresStore) TradesWithCompany(ctx context.Context, clientID string, from, to *time.Time) ([]model.TradeWithCompany, error) {
	sql := `SELECT it.id, it.investment_id, it.type,
	               it.shares::TEXT, it.price::TEXT, it.amount::TEXT,
	               it.note, it.created_at, inv.company
	        FROM investment_trades it
	        JOIN investments inv ON inv.id = it.investment_id
	        WHERE inv.client_id = $1`
	args := []any{clientID}
	if from != nil && to != nil {
		sql += ` AND it.created_at >= $2 AND it.created_at <= $3`
		args = append(args, *from, *to)
	}
	sql += ` ORDER BY it.created_at DESC, it.seq DESC`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.TradeWithCompany
	for rows.Next() {
		var t model.TradeWithCompany
		var shares, price, amount string
		if err := rows.Scan(&t.ID, &t.InvestmentID, &t.Type,
			&shares, &price, &amount, &t.Note, &t.CreatedAt, &t.Company); err != nil {
			return nil, err
		}
		t.Shares, _ = decimal.NewFromString(shares)
		t.Price, _ = decimal.NewFromString(price)
		t.Amount, _ = decimal.NewFromString(amount)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
