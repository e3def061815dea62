package portfolio_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Jorgeluia82/inversiones/internal/model"
	"github.com/Jorgeluia82/inversiones/internal/store"
)

// seedHistory stamps a full day of activity directly into the store so the
// timestamps are deterministic.
func seedHistory(t *testing.T, ms *store.MemoryStore, clientID string, day time.Time) string {
	t.Helper()
	ctx := context.Background()

	inv := &model.Investment{
		ID:       clientID + "-acme",
		ClientID: clientID,
		Company:  "ACME",
		AvgPrice: d(100),
		Shares:   d(20),
	}
	if err := ms.CreateInvestment(ctx, inv); err != nil {
		t.Fatalf("failed to seed investment: %v", err)
	}

	ms.InsertCashMovement(ctx, &model.CashMovement{
		ID: "m1", ClientID: clientID, Type: model.MovementDeposit,
		Amount: d(5000), Note: "aporte inicial", CreatedAt: day.Add(9 * time.Hour),
	})
	ms.InsertTrade(ctx, &model.Trade{
		ID: "t1", InvestmentID: inv.ID, Type: model.TradeBuy,
		Shares: d(20), Price: d(100), Amount: d(2000), CreatedAt: day.Add(10 * time.Hour),
	})
	ms.InsertTrade(ctx, &model.Trade{
		ID: "t2", InvestmentID: inv.ID, Type: model.TradePriceUpdate,
		Shares: d(0), Price: d(105), Amount: d(0), CreatedAt: day.Add(11 * time.Hour),
	})
	ms.InsertTrade(ctx, &model.Trade{
		ID: "t3", InvestmentID: inv.ID, Type: model.TradeSell,
		Shares: d(5), Price: d(110), Amount: d(550), CreatedAt: day.Add(12 * time.Hour),
	})
	ms.InsertCashMovement(ctx, &model.CashMovement{
		ID: "m2", ClientID: clientID, Type: model.MovementWithdraw,
		Amount: d(300), CreatedAt: day.Add(13 * time.Hour),
	})
	return inv.ID
}

func getHistory(t *testing.T, router chi.Router, path string) ([]model.HistoryEvent, int) {
	t.Helper()
	w := doJSON(t, router, "GET", path, nil)
	var events []model.HistoryEvent
	json.Unmarshal(w.Body.Bytes(), &events)
	return events, w.Code
}

func TestGetClientHistory_MergedAndOrdered(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedClient(t, ms, "c1", 10000)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	seedHistory(t, ms, "c1", day)

	events, code := getHistory(t, router, "/api/v1/clients/c1/history")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}

	// Newest first.
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.After(events[i-1].Timestamp) {
			t.Errorf("events out of order at %d: %s after %s", i, events[i].Timestamp, events[i-1].Timestamp)
		}
	}

	// Sign conventions: withdraw and buy negative, deposit and sell positive,
	// price update zero.
	byType := map[string]model.HistoryEvent{}
	for _, e := range events {
		byType[e.Type] = e
	}
	if !byType[model.MovementDeposit].CapitalDelta.Equal(d(5000)) {
		t.Errorf("deposit delta: %s", byType[model.MovementDeposit].CapitalDelta)
	}
	if !byType[model.MovementWithdraw].CapitalDelta.Equal(d(-300)) {
		t.Errorf("withdraw delta: %s", byType[model.MovementWithdraw].CapitalDelta)
	}
	if !byType[model.TradeBuy].CapitalDelta.Equal(d(-2000)) {
		t.Errorf("buy delta: %s", byType[model.TradeBuy].CapitalDelta)
	}
	if !byType[model.TradeSell].CapitalDelta.Equal(d(550)) {
		t.Errorf("sell delta: %s", byType[model.TradeSell].CapitalDelta)
	}
	if !byType[model.TradePriceUpdate].CapitalDelta.IsZero() {
		t.Errorf("price update delta: %s", byType[model.TradePriceUpdate].CapitalDelta)
	}

	// Kinds.
	if byType[model.MovementDeposit].Kind != model.KindCash {
		t.Errorf("deposit kind: %s", byType[model.MovementDeposit].Kind)
	}
	if byType[model.TradeBuy].Kind != model.KindInvestment {
		t.Errorf("buy kind: %s", byType[model.TradeBuy].Kind)
	}
	if byType[model.TradePriceUpdate].Kind != model.KindPrice {
		t.Errorf("price update kind: %s", byType[model.TradePriceUpdate].Kind)
	}
}

func TestGetClientHistory_DetailStrings(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedClient(t, ms, "c1", 10000)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	seedHistory(t, ms, "c1", day)

	events, _ := getHistory(t, router, "/api/v1/clients/c1/history")

	want := map[string]string{
		model.MovementDeposit:  "DEPOSIT $5000.00 (aporte inicial)",
		model.MovementWithdraw: "WITHDRAW $300.00",
		model.TradeBuy:         "BUY 20.0000 @ $100.00 de ACME",
		model.TradeSell:        "SELL 5.0000 @ $110.00 de ACME",
		model.TradePriceUpdate: "PRICE_UPDATE @ $105.00 de ACME",
	}
	for _, e := range events {
		if w, ok := want[e.Type]; ok && e.Detail != w {
			t.Errorf("%s detail: got %q, want %q", e.Type, e.Detail, w)
		}
	}
}

func TestGetClientHistory_DayFilter(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedClient(t, ms, "c1", 10000)
	seedHistory(t, ms, "c1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))

	// An extra movement on another day must not appear.
	ms.InsertCashMovement(context.Background(), &model.CashMovement{
		ID: "m3", ClientID: "c1", Type: model.MovementDeposit,
		Amount: d(1), CreatedAt: time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
	})

	events, code := getHistory(t, router, "/api/v1/clients/c1/history?day=2025-03-10")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events on 2025-03-10, got %d", len(events))
	}

	events, _ = getHistory(t, router, "/api/v1/clients/c1/history?day=2025-03-11")
	if len(events) != 1 {
		t.Fatalf("expected 1 event on 2025-03-11, got %d", len(events))
	}

	events, _ = getHistory(t, router, "/api/v1/clients/c1/history?day=2025-03-12")
	if len(events) != 0 {
		t.Fatalf("expected no events on 2025-03-12, got %d", len(events))
	}
}

func TestGetClientHistory_RangeFilterInclusive(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedClient(t, ms, "c1", 10000)
	ctx := context.Background()

	stamp := func(id string, ts time.Time) {
		ms.InsertCashMovement(ctx, &model.CashMovement{
			ID: id, ClientID: "c1", Type: model.MovementDeposit,
			Amount: d(1), CreatedAt: ts,
		})
	}
	stamp("early", time.Date(2025, 3, 9, 23, 59, 59, 0, time.UTC))
	stamp("start", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	stamp("end", time.Date(2025, 3, 12, 23, 59, 59, 0, time.UTC))
	stamp("late", time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC))

	events, code := getHistory(t, router, "/api/v1/clients/c1/history?from=2025-03-10&to=2025-03-12")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(events) != 2 {
		t.Fatalf("expected the 2 in-range events, got %d", len(events))
	}
}

func TestGetClientHistory_InvalidDate(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedClient(t, ms, "c1", 10000)

	for _, path := range []string{
		"/api/v1/clients/c1/history?day=10-03-2025",
		"/api/v1/clients/c1/history?from=2025-3-10&to=2025-03-12",
		"/api/v1/clients/c1/history?day=notadate",
	} {
		_, code := getHistory(t, router, path)
		if code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, code)
		}
	}
}

func TestGetClientHistory_ClientNotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	_, code := getHistory(t, router, "/api/v1/clients/ghost/history")
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestGetClientHistory_SameSecondTieOrder(t *testing.T) {
	// Within one tied second, cash movements come before trades no matter
	// which record was inserted first.
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	run := func(t *testing.T, cashFirst bool) []model.HistoryEvent {
		t.Helper()
		_, ms, router := newTestEnv(t)
		seedClient(t, ms, "c1", 10000)
		ctx := context.Background()
		ms.CreateInvestment(ctx, &model.Investment{
			ID: "i1", ClientID: "c1", Company: "ACME", AvgPrice: d(100), Shares: d(20),
		})

		insertCash := func() {
			ms.InsertCashMovement(ctx, &model.CashMovement{
				ID: "m1", ClientID: "c1", Type: model.MovementDeposit,
				Amount: d(100), CreatedAt: ts,
			})
		}
		insertTrade := func() {
			ms.InsertTrade(ctx, &model.Trade{
				ID: "t1", InvestmentID: "i1", Type: model.TradeBuy,
				Shares: d(1), Price: d(100), Amount: d(100), CreatedAt: ts,
			})
		}
		if cashFirst {
			insertCash()
			insertTrade()
		} else {
			insertTrade()
			insertCash()
		}

		events, code := getHistory(t, router, "/api/v1/clients/c1/history")
		if code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		return events
	}

	for _, cashFirst := range []bool{true, false} {
		events := run(t, cashFirst)
		if events[0].Kind != model.KindCash || events[1].Kind != model.KindInvestment {
			t.Errorf("cashFirst=%v: expected cash before trade in a tied second, got %s then %s",
				cashFirst, events[0].Kind, events[1].Kind)
		}
	}
}

func TestGetClientHistory_OnlyOwnEvents(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedClient(t, ms, "c1", 10000)
	seedClient(t, ms, "c2", 10000)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	seedHistory(t, ms, "c1", day)
	seedHistory(t, ms, "c2", day)

	events, _ := getHistory(t, router, "/api/v1/clients/c1/history")
	if len(events) != 5 {
		t.Fatalf("expected 5 events for c1 only, got %d", len(events))
	}
}
