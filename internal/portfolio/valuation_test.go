package portfolio_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Jorgeluia82/inversiones/internal/model"
	"github.com/Jorgeluia82/inversiones/internal/portfolio"
	"github.com/Jorgeluia82/inversiones/internal/store"
)

func getPortfolio(t *testing.T, svc *portfolio.Service, clientID string) *model.PortfolioReport {
	t.Helper()
	report, err := svc.GetClientPortfolio(context.Background(), clientID)
	if err != nil {
		t.Fatalf("GetClientPortfolio failed: %v", err)
	}
	return report
}

func seedPosition(t *testing.T, ms *store.MemoryStore, id, clientID, company string, shares, avg float64) {
	t.Helper()
	err := ms.CreateInvestment(context.Background(), &model.Investment{
		ID: id, ClientID: clientID, Company: company,
		AvgPrice: d(avg), Shares: d(shares), CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed investment: %v", err)
	}
}

func TestGetClientPortfolio_ValuesAndPnL(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedClient(t, ms, "c1", 9000)
	seedPosition(t, ms, "i1", "c1", "ACME", 20, 100)
	ms.InsertPricePoint(context.Background(), &model.PricePoint{
		InvestmentID: "i1", Price: d(105), CreatedAt: time.Now().UTC(),
	})

	report := getPortfolio(t, svc, "c1")

	if !report.CapitalAvailable.Equal(d(9000)) {
		t.Errorf("capital: %s", report.CapitalAvailable)
	}
	if len(report.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(report.Positions))
	}

	p := report.Positions[0]
	if !p.CurrentPrice.Equal(d(105)) {
		t.Errorf("current price: %s", p.CurrentPrice)
	}
	if !p.InvestedAmount.Equal(d(2000)) {
		t.Errorf("invested: %s", p.InvestedAmount)
	}
	if !p.CurrentValue.Equal(d(2100)) {
		t.Errorf("current value: %s", p.CurrentValue)
	}
	if !p.PnL.Equal(d(100)) {
		t.Errorf("pnl: %s", p.PnL)
	}
	// 100 gained on 2000 invested.
	approxEqual(t, p.ReturnRate, d(0.05), 0.00000001, "return rate")
	if !report.TotalValue.Equal(d(2100)) {
		t.Errorf("total value: %s", report.TotalValue)
	}
	if !report.TotalPnL.Equal(d(100)) {
		t.Errorf("total pnl: %s", report.TotalPnL)
	}
}

func TestGetClientPortfolio_FallsBackToAvgPrice(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedClient(t, ms, "c1", 0)
	seedPosition(t, ms, "i1", "c1", "ACME", 10, 50)

	report := getPortfolio(t, svc, "c1")

	p := report.Positions[0]
	if !p.CurrentPrice.Equal(d(50)) {
		t.Errorf("expected fallback to avg price 50, got %s", p.CurrentPrice)
	}
	if !p.PnL.IsZero() {
		t.Errorf("pnl should be zero without a price sample, got %s", p.PnL)
	}
}

func TestGetClientPortfolio_HidesClosedPositions(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedClient(t, ms, "c1", 0)
	seedPosition(t, ms, "open", "c1", "ACME", 10, 50)
	seedPosition(t, ms, "closed", "c1", "GLOBEX", 0, 0)

	report := getPortfolio(t, svc, "c1")

	if len(report.Positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(report.Positions))
	}
	if report.Positions[0].Company != "ACME" {
		t.Errorf("closed position leaked: %s", report.Positions[0].Company)
	}
}

func TestGetClientPortfolio_ShareFractions(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedClient(t, ms, "c1", 0)
	seedClient(t, ms, "c2", 0)
	// c1 holds 300 of value, c2 holds 100: global total 400.
	seedPosition(t, ms, "i1", "c1", "ACME", 10, 10)   // value 100
	seedPosition(t, ms, "i2", "c1", "GLOBEX", 20, 10) // value 200
	seedPosition(t, ms, "i3", "c2", "INITECH", 10, 10)

	report := getPortfolio(t, svc, "c1")

	if !report.TotalValue.Equal(d(300)) {
		t.Fatalf("owner total: %s", report.TotalValue)
	}
	if !report.GlobalTotalValue.Equal(d(400)) {
		t.Fatalf("global total: %s", report.GlobalTotalValue)
	}

	byCompany := map[string]model.PortfolioPosition{}
	for _, p := range report.Positions {
		byCompany[p.Company] = p
	}

	approxEqual(t, byCompany["ACME"].PercentOfOwner, d(1.0/3.0), 0.00000001, "ACME owner share")
	approxEqual(t, byCompany["GLOBEX"].PercentOfOwner, d(2.0/3.0), 0.00000001, "GLOBEX owner share")
	approxEqual(t, byCompany["ACME"].PercentOfGlobal, d(0.25), 0.00000001, "ACME global share")
	approxEqual(t, byCompany["GLOBEX"].PercentOfGlobal, d(0.5), 0.00000001, "GLOBEX global share")
}

func TestGetClientPortfolio_EmptyBook(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedClient(t, ms, "c1", 1234)

	report := getPortfolio(t, svc, "c1")

	if report.Positions == nil {
		t.Error("positions should be an empty slice, not nil")
	}
	if len(report.Positions) != 0 {
		t.Errorf("expected no positions, got %d", len(report.Positions))
	}
	if !report.TotalValue.IsZero() || !report.TotalPnL.IsZero() {
		t.Errorf("totals should be zero: value=%s pnl=%s", report.TotalValue, report.TotalPnL)
	}
}

func TestGetClientPortfolio_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/clients/ghost/portfolio", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestPortfolioEndpoint_JSONShape(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedClient(t, ms, "c1", 9000)
	seedPosition(t, ms, "i1", "c1", "ACME", 20, 100)

	w := doJSON(t, router, "GET", "/api/v1/clients/c1/portfolio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var report model.PortfolioReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.ClientID != "c1" {
		t.Errorf("client_id: %s", report.ClientID)
	}
	if len(report.Positions) != 1 {
		t.Errorf("positions: %d", len(report.Positions))
	}
}
