// Package server exposes the ledger engine over JSON HTTP. It is thin
// presentation glue: request decoding, error-to-status mapping, and
// event publishing after committed operations.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/events"
	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
)

const dateFormat = "2006-01-02"

// Server handles HTTP requests against a ledger engine.
type Server struct {
	engine    *ledger.Engine
	publisher events.Publisher
	logger    *log.Logger
}

// New creates a Server. Events are published after operations commit;
// a publish failure is logged, never surfaced, since the ledger write
// already happened.
func New(engine *ledger.Engine, publisher events.Publisher, logger *log.Logger) *Server {
	return &Server{engine: engine, publisher: publisher, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /accounts", s.handleAccounts)
	mux.HandleFunc("POST /expenses", s.handleSubmit)
	mux.HandleFunc("GET /expenses/recent", s.handleRecent)
	mux.HandleFunc("GET /expenses/search", s.handleSearch)
	mux.HandleFunc("GET /expenses/{id}", s.handleGet)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleUndo)
	return mux
}

type submitRequest struct {
	BillingDate string          `json:"billing_date"`
	PaymentDate string          `json:"payment_date"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Description string          `json:"description"`
	AccountID   string          `json:"account_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
}

type expenseResponse struct {
	TransactionID string          `json:"transaction_id"`
	BillingDate   string          `json:"billing_date"`
	PaymentDate   string          `json:"payment_date"`
	Category      string          `json:"category"`
	Subcategory   string          `json:"subcategory"`
	Description   string          `json:"description"`
	AccountID     string          `json:"account_id"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int64           `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
}

func toExpenseResponse(rec model.ExpenseRecord) expenseResponse {
	return expenseResponse{
		TransactionID: rec.TransactionID,
		BillingDate:   rec.BillingDate.Format(dateFormat),
		PaymentDate:   rec.PaymentDate.Format(dateFormat),
		Category:      rec.Category,
		Subcategory:   rec.Subcategory,
		Description:   rec.Description,
		AccountID:     rec.AccountID,
		UnitPrice:     rec.UnitPrice,
		Quantity:      rec.Quantity,
		Amount:        rec.Amount,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	intent, err := req.toIntent()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	txID, err := s.engine.Submit(r.Context(), intent)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(r.Context(), events.New(events.TypeExpenseRecorded, txID, intent.AccountID,
		ledger.Amount(intent.UnitPrice, intent.Quantity)))

	writeJSON(w, http.StatusCreated, map[string]string{"transaction_id": txID})
}

func (req submitRequest) toIntent() (ledger.ExpenseIntent, error) {
	billing := time.Now().UTC().Truncate(24 * time.Hour)
	if req.BillingDate != "" {
		parsed, err := time.Parse(dateFormat, req.BillingDate)
		if err != nil {
			return ledger.ExpenseIntent{}, fmt.Errorf("invalid billing_date %q", req.BillingDate)
		}
		billing = parsed
	}
	payment := billing
	if req.PaymentDate != "" {
		parsed, err := time.Parse(dateFormat, req.PaymentDate)
		if err != nil {
			return ledger.ExpenseIntent{}, fmt.Errorf("invalid payment_date %q", req.PaymentDate)
		}
		payment = parsed
	}

	return ledger.ExpenseIntent{
		BillingDate: billing,
		PaymentDate: payment,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Description: req.Description,
		AccountID:   req.AccountID,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
	}, nil
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Capture the record before it is deleted so the reversal event can
	// carry the account and amount.
	rec, recErr := s.engine.Expense(r.Context(), id)

	res, err := s.engine.Undo(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := map[string]string{"status": "reversed"}
	if res.AlreadyUndone {
		resp["status"] = "already_undone"
	}
	if res.ReconciliationPending {
		resp["warning"] = "balance reconciliation pending"
	}

	if !res.AlreadyUndone && recErr == nil {
		s.publish(r.Context(), events.New(events.TypeExpenseReversed, id, rec.AccountID, rec.Amount))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Expense(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(rec))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.ListRecent(r.Context(), queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeExpenses(w, recs)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.Search(r.Context(), r.URL.Query().Get("q"), queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeExpenses(w, recs)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.engine.Accounts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	type accountResponse struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Balance decimal.Decimal `json:"balance"`
	}
	resp := make([]accountResponse, 0, len(accts))
	for _, acct := range accts {
		resp = append(resp, accountResponse{ID: acct.ID, Name: acct.Name, Balance: acct.Balance})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("publishing %s for %s: %v", event.Type, event.TransactionID, err)
	}
}

// writeError maps engine errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrTransactionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrAllocationExhausted):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Printf("internal error: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeExpenses(w http.ResponseWriter, recs []model.ExpenseRecord) {
	resp := make([]expenseResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, toExpenseResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
