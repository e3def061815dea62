package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// CreateClientRequest is the JSON body for POST /api/v1/clients.
type CreateClientRequest struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
}

// CashRequest is the JSON body for deposits and withdrawals.
type CashRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// BuyRequest is the JSON body for POST /api/v1/clients/{clientID}/buy.
type BuyRequest struct {
	Company  string          `json:"company"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"` // cash spent
	Price    decimal.Decimal `json:"price"`  // price per share
	Note     string          `json:"note"`
}

// SellRequest is the JSON body for POST /api/v1/investments/{investmentID}/sell.
type SellRequest struct {
	Shares decimal.Decimal `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Note   string          `json:"note"`
}

// PriceRequest is the JSON body for POST /api/v1/investments/{investmentID}/price.
type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
	Note  string          `json:"note"`
}

// --- HTTP Handlers ---

// HandleCreateClient handles POST /api/v1/clients
func (s *Service) HandleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	client, err := s.CreateClient(r.Context(), req.Name, req.Email, req.Phone, req.InitialCapital)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(client)
}

// HandleListClients handles GET /api/v1/clients
// Optionally filtered by ?q=<name substring>.
func (s *Service) HandleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ListClients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "failed to list clients", http.StatusInternalServerError)
		return
	}
	if clients == nil {
		clients = []model.Client{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(clients)
}

// HandleGetClient handles GET /api/v1/clients/{clientID}
func (s *Service) HandleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.GetClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client)
}

// HandleDeposit handles POST /api/v1/clients/{clientID}/deposit
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	client, err := s.Deposit(r.Context(), chi.URLParam(r, "clientID"), req.Amount, req.Note)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client)
}

// HandleWithdraw handles POST /api/v1/clients/{clientID}/withdraw
func (s *Service) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	client, err := s.Withdraw(r.Context(), chi.URLParam(r, "clientID"), req.Amount, req.Note)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client)
}

// HandleBuy handles POST /api/v1/clients/{clientID}/buy
func (s *Service) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Company == "" {
		writeError(w, "company is required", http.StatusBadRequest)
		return
	}

	inv, err := s.Buy(r.Context(), chi.URLParam(r, "clientID"), req.Company, req.Category, req.Amount, req.Price, req.Note)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(inv)
}

// HandleSell handles POST /api/v1/investments/{investmentID}/sell
func (s *Service) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	inv, err := s.Sell(r.Context(), chi.URLParam(r, "investmentID"), req.Shares, req.Price, req.Note)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inv)
}

// HandleUpdatePrice handles POST /api/v1/investments/{investmentID}/price
func (s *Service) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.UpdatePrice(r.Context(), chi.URLParam(r, "investmentID"), req.Price, req.Note); err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandlePriceHistory handles GET /api/v1/investments/{investmentID}/prices
func (s *Service) HandlePriceHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.PriceHistory(r.Context(), chi.URLParam(r, "investmentID"))
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}

// HandlePortfolio handles GET /api/v1/clients/{clientID}/portfolio
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	report, err := s.GetClientPortfolio(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// HandleHistory handles GET /api/v1/clients/{clientID}/history
// Optional filters: ?day=YYYY-MM-DD or ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.GetClientHistory(r.Context(), chi.URLParam(r, "clientID"), filterFromQuery(r))
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}
	if events == nil {
		events = []model.HistoryEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// HandleHistoryExport handles GET /api/v1/clients/{clientID}/history/export
// Streams the filtered history as a CSV download.
func (s *Service) HandleHistoryExport(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	events, err := s.GetClientHistory(r.Context(), clientID, filterFromQuery(r))
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	filename := fmt.Sprintf("historial_%s_%s.csv", clientID, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := WriteHistoryCSV(w, events); err != nil {
		// Headers already sent; nothing more to do than log upstream.
		return
	}
}

func filterFromQuery(r *http.Request) HistoryFilter {
	q := r.URL.Query()
	return HistoryFilter{
		Day:  q.Get("day"),
		From: q.Get("from"),
		To:   q.Get("to"),
	}
}

// statusForError maps engine errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientShares):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
