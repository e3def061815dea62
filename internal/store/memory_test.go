package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
	"github.com/Jorgeluia82/inversiones/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newClient(id string, capital float64) *model.Client {
	return &model.Client{
		ID:               id,
		Name:             "Client " + id,
		CapitalAvailable: d(capital),
		CreatedAt:        time.Now().UTC(),
	}
}

func TestMemoryStore_ClientCRUD(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateClient(ctx, newClient("c1", 1000)); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	if err := ms.CreateClient(ctx, newClient("c1", 1000)); err == nil {
		t.Error("duplicate client id should fail")
	}

	c, err := ms.GetClient(ctx, "c1")
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if !c.CapitalAvailable.Equal(d(1000)) {
		t.Errorf("capital: %s", c.CapitalAvailable)
	}

	if _, err := ms.GetClient(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := ms.AdjustClientCapital(ctx, "c1", d(-250)); err != nil {
		t.Fatalf("AdjustClientCapital failed: %v", err)
	}
	c, _ = ms.GetClient(ctx, "c1")
	if !c.CapitalAvailable.Equal(d(750)) {
		t.Errorf("capital after adjust: %s", c.CapitalAvailable)
	}
}

func TestMemoryStore_ListClients_Filter(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.CreateClient(ctx, &model.Client{ID: "1", Name: "Ana García", CreatedAt: time.Now().UTC()})
	ms.CreateClient(ctx, &model.Client{ID: "2", Name: "Bruno Díaz", CreatedAt: time.Now().UTC()})

	all, _ := ms.ListClients(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(all))
	}

	// Case-insensitive substring match.
	hits, _ := ms.ListClients(ctx, "gar")
	if len(hits) != 1 || hits[0].ID != "1" {
		t.Errorf("name filter failed: %+v", hits)
	}
}

func TestMemoryStore_InvestmentUniquePerCompany(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateClient(ctx, newClient("c1", 0))

	inv := &model.Investment{ID: "i1", ClientID: "c1", Company: "ACME", AvgPrice: d(100), Shares: d(10)}
	if err := ms.CreateInvestment(ctx, inv); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}
	dup := &model.Investment{ID: "i2", ClientID: "c1", Company: "ACME"}
	if err := ms.CreateInvestment(ctx, dup); err == nil {
		t.Error("second position for the same client/company should fail")
	}

	got, err := ms.GetInvestmentByCompany(ctx, "c1", "ACME")
	if err != nil {
		t.Fatalf("GetInvestmentByCompany failed: %v", err)
	}
	if got.ID != "i1" {
		t.Errorf("wrong investment: %s", got.ID)
	}
	if _, err := ms.GetInvestmentByCompany(ctx, "c1", "GLOBEX"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_LastPrice(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.LastPrice(ctx, "i1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound without samples, got %v", err)
	}

	ms.InsertPricePoint(ctx, &model.PricePoint{InvestmentID: "i1", Price: d(100), CreatedAt: time.Now().UTC()})
	ms.InsertPricePoint(ctx, &model.PricePoint{InvestmentID: "i1", Price: d(105), CreatedAt: time.Now().UTC()})
	ms.InsertPricePoint(ctx, &model.PricePoint{InvestmentID: "other", Price: d(1), CreatedAt: time.Now().UTC()})

	price, err := ms.LastPrice(ctx, "i1")
	if err != nil {
		t.Fatalf("LastPrice failed: %v", err)
	}
	if !price.Equal(d(105)) {
		t.Errorf("expected most recent sample 105, got %s", price)
	}
}

func TestMemoryStore_WithTx_RollsBackOnError(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateClient(ctx, newClient("c1", 1000))

	boom := errors.New("boom")
	err := ms.WithTx(ctx, func(tx store.Store) error {
		if err := tx.AdjustClientCapital(ctx, "c1", d(-400)); err != nil {
			return err
		}
		if err := tx.InsertCashMovement(ctx, &model.CashMovement{
			ID: "m1", ClientID: "c1", Type: model.MovementWithdraw,
			Amount: d(400), CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}

	// Nothing from the failed transaction is visible.
	c, _ := ms.GetClient(ctx, "c1")
	if !c.CapitalAvailable.Equal(d(1000)) {
		t.Errorf("capital leaked from rolled-back tx: %s", c.CapitalAvailable)
	}
	moves, _ := ms.CashMovements(ctx, "c1", nil, nil)
	if len(moves) != 0 {
		t.Errorf("movement leaked from rolled-back tx: %d", len(moves))
	}
}

func TestMemoryStore_WithTx_CommitsOnSuccess(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateClient(ctx, newClient("c1", 1000))

	err := ms.WithTx(ctx, func(tx store.Store) error {
		return tx.AdjustClientCapital(ctx, "c1", d(500))
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	c, _ := ms.GetClient(ctx, "c1")
	if !c.CapitalAvailable.Equal(d(1500)) {
		t.Errorf("committed change missing: %s", c.CapitalAvailable)
	}
}

func TestMemoryStore_WithTx_Nested(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateClient(ctx, newClient("c1", 100))

	// A nested WithTx joins the outer transaction instead of deadlocking.
	err := ms.WithTx(ctx, func(tx store.Store) error {
		return tx.WithTx(ctx, func(inner store.Store) error {
			return inner.AdjustClientCapital(ctx, "c1", d(1))
		})
	})
	if err != nil {
		t.Fatalf("nested WithTx failed: %v", err)
	}

	c, _ := ms.GetClient(ctx, "c1")
	if !c.CapitalAvailable.Equal(d(101)) {
		t.Errorf("capital: %s", c.CapitalAvailable)
	}
}

func TestMemoryStore_TradesWithCompany_Join(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.CreateClient(ctx, newClient("c1", 0))
	ms.CreateInvestment(ctx, &model.Investment{ID: "i1", ClientID: "c1", Company: "ACME"})
	ms.CreateInvestment(ctx, &model.Investment{ID: "i2", ClientID: "c2", Company: "GLOBEX"})

	ms.InsertTrade(ctx, &model.Trade{ID: "t1", InvestmentID: "i1", Type: model.TradeBuy, CreatedAt: time.Now().UTC()})
	ms.InsertTrade(ctx, &model.Trade{ID: "t2", InvestmentID: "i2", Type: model.TradeBuy, CreatedAt: time.Now().UTC()})

	trades, err := ms.TradesWithCompany(ctx, "c1", nil, nil)
	if err != nil {
		t.Fatalf("TradesWithCompany failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade for c1, got %d", len(trades))
	}
	if trades[0].Company != "ACME" {
		t.Errorf("company join failed: %s", trades[0].Company)
	}
}

func TestSeedDemo(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := store.SeedDemo(ctx, ms); err != nil {
		t.Fatalf("SeedDemo failed: %v", err)
	}

	clients, _ := ms.ListClients(ctx, "")
	if len(clients) != 1 {
		t.Fatalf("expected 1 demo client, got %d", len(clients))
	}
	c := clients[0]
	if !c.CapitalAvailable.Equal(d(10000)) {
		t.Errorf("demo capital should be 12000 - 2000 = 10000, got %s", c.CapitalAvailable)
	}

	invs, _ := ms.GetInvestmentsByClient(ctx, c.ID)
	if len(invs) != 1 {
		t.Fatalf("expected 1 demo investment, got %d", len(invs))
	}
	if invs[0].Company != "ACME" || !invs[0].Shares.Equal(d(20)) || !invs[0].AvgPrice.Equal(d(100)) {
		t.Errorf("unexpected demo position: %+v", invs[0])
	}

	price, err := ms.LastPrice(ctx, invs[0].ID)
	if err != nil {
		t.Fatalf("demo price missing: %v", err)
	}
	if !price.Equal(d(105)) {
		t.Errorf("demo price: %s", price)
	}

	// Idempotent: a second run leaves the store untouched.
	if err := store.SeedDemo(ctx, ms); err != nil {
		t.Fatalf("second SeedDemo failed: %v", err)
	}
	clients, _ = ms.ListClients(ctx, "")
	if len(clients) != 1 {
		t.Errorf("seed is not idempotent: %d clients", len(clients))
	}
}
