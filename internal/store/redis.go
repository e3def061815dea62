package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for the
// two hottest lookups: client records and last prices. Writes go to the
// primary store and invalidate the affected keys; inside a transaction,
// invalidation is deferred until after a successful commit so a rolled-back
// write never evicts valid cache entries.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func clientKey(id string) string    { return fmt.Sprintf("client:%s", id) }
func lastPriceKey(id string) string { return fmt.Sprintf("lastprice:%s", id) }

// WithTx runs fn against the primary store's transaction, collecting the
// cache keys touched by writes; they are evicted only after commit.
func (s *CachedStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	var touched []string
	err := s.primary.WithTx(ctx, func(tx Store) error {
		return fn(&txInvalidator{Store: tx, touched: &touched})
	})
	if err != nil {
		return err
	}
	if len(touched) > 0 {
		s.rdb.Del(ctx, touched...)
	}
	return nil
}

// txInvalidator records cache keys invalidated by writes inside a
// transaction. Reads pass straight through to the transaction store and
// never consult the cache, so a transaction always sees its own writes.
type txInvalidator struct {
	Store
	touched *[]string
}

func (t *txInvalidator) AdjustClientCapital(ctx context.Context, id string, delta decimal.Decimal) error {
	*t.touched = append(*t.touched, clientKey(id))
	return t.Store.AdjustClientCapital(ctx, id, delta)
}

func (t *txInvalidator) InsertPricePoint(ctx context.Context, p *model.PricePoint) error {
	*t.touched = append(*t.touched, lastPriceKey(p.InvestmentID))
	return t.Store.InsertPricePoint(ctx, p)
}

// --- Read-through ---

func (s *CachedStore) GetClient(ctx context.Context, id string) (*model.Client, error) {
	data, err := s.rdb.Get(ctx, clientKey(id)).Bytes()
	if err == nil {
		var c model.Client
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, clientKey(id), data, s.ttl)
	}
	return c, nil
}

func (s *CachedStore) LastPrice(ctx context.Context, investmentID string) (decimal.Decimal, error) {
	if v, err := s.rdb.Get(ctx, lastPriceKey(investmentID)).Result(); err == nil {
		if p, perr := decimal.NewFromString(v); perr == nil {
			return p, nil
		}
	}

	p, err := s.primary.LastPrice(ctx, investmentID)
	if err != nil {
		return decimal.Zero, err
	}
	s.rdb.Set(ctx, lastPriceKey(investmentID), p.String(), s.ttl)
	return p, nil
}

// --- Write-through with invalidation ---

func (s *CachedStore) AdjustClientCapital(ctx context.Context, id string, delta decimal.Decimal) error {
	if err := s.primary.AdjustClientCapital(ctx, id, delta); err != nil {
		return err
	}
	s.rdb.Del(ctx, clientKey(id))
	return nil
}

func (s *CachedStore) InsertPricePoint(ctx context.Context, p *model.PricePoint) error {
	if err := s.primary.InsertPricePoint(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, lastPriceKey(p.InvestmentID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListClients(ctx context.Context, query string) ([]model.Client, error) {
	return s.primary.ListClients(ctx, query)
}

func (s *CachedStore) CreateClient(ctx context.Context, c *model.Client) error {
	return s.primary.CreateClient(ctx, c)
}

func (s *CachedStore) GetInvestmentsByClient(ctx context.Context, clientID string) ([]model.Investment, error) {
	return s.primary.GetInvestmentsByClient(ctx, clientID)
}

func (s *CachedStore) GetAllInvestments(ctx context.Context) ([]model.Investment, error) {
	return s.primary.GetAllInvestments(ctx)
}

func (s *CachedStore) GetInvestmentByCompany(ctx context.Context, clientID, company string) (*model.Investment, error) {
	return s.primary.GetInvestmentByCompany(ctx, clientID, company)
}

func (s *CachedStore) GetInvestment(ctx context.Context, id string) (*model.Investment, error) {
	return s.primary.GetInvestment(ctx, id)
}

func (s *CachedStore) CreateInvestment(ctx context.Context, inv *model.Investment) error {
	return s.primary.CreateInvestment(ctx, inv)
}

func (s *CachedStore) UpdateInvestment(ctx context.Context, id string, avgPrice, shares decimal.Decimal) error {
	return s.primary.UpdateInvestment(ctx, id, avgPrice, shares)
}

func (s *CachedStore) InsertCashMovement(ctx context.Context, m *model.CashMovement) error {
	return s.primary.InsertCashMovement(ctx, m)
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.InsertTrade(ctx, t)
}

func (s *CachedStore) PriceHistory(ctx context.Context, investmentID string) ([]model.PricePoint, error) {
	return s.primary.PriceHistory(ctx, investmentID)
}

func (s *CachedStore) CashMovements(ctx context.Context, clientID string, from, to *time.Time) ([]model.CashMovement, error) {
	return s.primary.CashMovements(ctx, clientID, from, to)
}

func (s *CachedStore) TradesWithCompany(ctx context.Context, clientID string, from, to *time.Time) ([]model.TradeWithCompany, error) {
	return s.primary.TradesWithCompany(ctx, clientID, from, to)
}
