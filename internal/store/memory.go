package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// memState is the complete store state. Slices keep insertion order, which
// is the documented tie-break for same-timestamp history events.
type memState struct {
	clients     map[string]model.Client
	clientIDs   []string // insertion order
	investments map[string]model.Investment
	invIDs      []string // insertion order
	movements   []model.CashMovement
	trades      []model.Trade
	prices      []model.PricePoint
}

func newMemState() *memState {
	return &memState{
		clients:     make(map[string]model.Client),
		investments: make(map[string]model.Investment),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		clients:     make(map[string]model.Client, len(st.clients)),
		clientIDs:   append([]string(nil), st.clientIDs...),
		investments: make(map[string]model.Investment, len(st.investments)),
		invIDs:      append([]string(nil), st.invIDs...),
		movements:   append([]model.CashMovement(nil), st.movements...),
		trades:      append([]model.Trade(nil), st.trades...),
		prices:      append([]model.PricePoint(nil), st.prices...),
	}
	for id, cl := range st.clients {
		c.clients[id] = cl
	}
	for id, inv := range st.investments {
		c.investments[id] = inv
	}
	return c
}

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. WithTx snapshots the whole state and swaps it back in only
// on success, so a failed transaction leaves no trace.
type MemoryStore struct {
	mu   sync.RWMutex
	st   *memState
	inTx bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newMemState()}
}

// WithTx runs fn against a cloned state; the clone replaces the live state
// only when fn succeeds.
func (s *MemoryStore) WithTx(_ context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txStore := &MemoryStore{st: s.st.clone(), inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	s.st = txStore.st
	return nil
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from == nil || to == nil {
		return true
	}
	// Inclusive on both ends; comparisons are truncated to whole seconds
	// to match the fixed-width timestamp format the SQL stores use.
	tt := t.Truncate(time.Second)
	return !tt.Before(from.Truncate(time.Second)) && !tt.After(to.Truncate(time.Second))
}

// --- Clients ---

func (s *MemoryStore) ListClients(_ context.Context, query string) ([]model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]model.Client, 0, len(s.st.clientIDs))
	// Reverse insertion order = newest first.
	for i := len(s.st.clientIDs) - 1; i >= 0; i-- {
		c := s.st.clients[s.st.clientIDs[i]]
		if query != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			continue
		}
		clients = append(clients, c)
	}
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].CreatedAt.After(clients[j].CreatedAt)
	})
	return clients, nil
}

func (s *MemoryStore) CreateClient(_ context.Context, c *model.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.clients[c.ID]; ok {
		return fmt.Errorf("client %s already exists", c.ID)
	}
	s.st.clients[c.ID] = *c
	s.st.clientIDs = append(s.st.clientIDs, c.ID)
	return nil
}

func (s *MemoryStore) GetClient(_ context.Context, id string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.clients[id]
	if !ok {
		return nil, fmt.Errorf("get client %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) AdjustClientCapital(_ context.Context, id string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.st.clients[id]
	if !ok {
		return fmt.Errorf("adjust capital for client %s: %w", id, ErrNotFound)
	}
	c.CapitalAvailable = c.CapitalAvailable.Add(delta)
	s.st.clients[id] = c
	return nil
}

// --- Investments ---

func (s *MemoryStore) GetInvestmentsByClient(_ context.Context, clientID string) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var invs []model.Investment
	for i := len(s.st.invIDs) - 1; i >= 0; i-- {
		inv := s.st.investments[s.st.invIDs[i]]
		if inv.ClientID == clientID {
			invs = append(invs, inv)
		}
	}
	return invs, nil
}

func (s *MemoryStore) GetAllInvestments(_ context.Context) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invs := make([]model.Investment, 0, len(s.st.invIDs))
	for _, id := range s.st.invIDs {
		invs = append(invs, s.st.investments[id])
	}
	return invs, nil
}

func (s *MemoryStore) GetInvestmentByCompany(_ context.Context, clientID, company string) (*model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.st.invIDs {
		inv := s.st.investments[id]
		if inv.ClientID == clientID && inv.Company == company {
			return &inv, nil
		}
	}
	return nil, fmt.Errorf("get investment %s/%s: %w", clientID, company, ErrNotFound)
}

func (s *MemoryStore) GetInvestment(_ context.Context, id string) (*model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.st.investments[id]
	if !ok {
		return nil, fmt.Errorf("get investment %s: %w", id, ErrNotFound)
	}
	return &inv, nil
}

func (s *MemoryStore) CreateInvestment(_ context.Context, inv *model.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.st.invIDs {
		existing := s.st.investments[id]
		if existing.ClientID == inv.ClientID && existing.Company == inv.Company {
			return fmt.Errorf("investment for %s/%s already exists", inv.ClientID, inv.Company)
		}
	}
	s.st.investments[inv.ID] = *inv
	s.st.invIDs = append(s.st.invIDs, inv.ID)
	return nil
}

func (s *MemoryStore) UpdateInvestment(_ context.Context, id string, avgPrice, shares decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.st.investments[id]
	if !ok {
		return fmt.Errorf("update investment %s: %w", id, ErrNotFound)
	}
	inv.AvgPrice = avgPrice
	inv.Shares = shares
	s.st.investments[id] = inv
	return nil
}

// --- Immutable ledger records ---

func (s *MemoryStore) InsertCashMovement(_ context.Context, m *model.CashMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.movements = append(s.st.movements, *m)
	return nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.trades = append(s.st.trades, *t)
	return nil
}

func (s *MemoryStore) InsertPricePoint(_ context.Context, p *model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.prices = append(s.st.prices, *p)
	return nil
}

func (s *MemoryStore) LastPrice(_ context.Context, investmentID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.st.prices) - 1; i >= 0; i-- {
		if s.st.prices[i].InvestmentID == investmentID {
			return s.st.prices[i].Price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("last price for %s: %w", investmentID, ErrNotFound)
}

func (s *MemoryStore) PriceHistory(_ context.Context, investmentID string) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []model.PricePoint
	for i := len(s.st.prices) - 1; i >= 0; i-- {
		if s.st.prices[i].InvestmentID == investmentID {
			points = append(points, s.st.prices[i])
		}
	}
	return points, nil
}

// --- History queries ---

func (s *MemoryStore) CashMovements(_ context.Context, clientID string, from, to *time.Time) ([]model.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var movements []model.CashMovement
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		m := s.st.movements[i]
		if m.ClientID == clientID && inRange(m.CreatedAt, from, to) {
			movements = append(movements, m)
		}
	}
	return movements, nil
}

func (s *MemoryStore) TradesWithCompany(_ context.Context, clientID string, from, to *time.Time) ([]model.TradeWithCompany, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trades []model.TradeWithCompany
	for i := len(s.st.trades) - 1; i >= 0; i-- {
		t := s.st.trades[i]
		inv, ok := s.st.investments[t.InvestmentID]
		if !ok || inv.ClientID != clientID || !inRange(t.CreatedAt, from, to) {
			continue
		}
		trades = append(trades, model.TradeWithCompany{Trade: t, Company: inv.Company})
	}
	return trades, nil
}
