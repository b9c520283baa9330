package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook-dev/tallybook/internal/category"
	"github.com/tallybook-dev/tallybook/internal/events"
	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
	"github.com/tallybook-dev/tallybook/internal/store/memory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type discardQueue struct{}

func (discardQueue) Append(context.Context, ledger.Incident) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store, *capturingPublisher) {
	t.Helper()
	store := memory.NewStore()
	store.PutAccount(model.Account{ID: "a1", Name: "Savings", Balance: decimal.RequireFromString("100.00")})

	eng := ledger.NewEngine(store.Accounts(), store.Expenses(), store.CashFlows(), category.Default(), discardQueue{})
	pub := &capturingPublisher{}
	srv := New(eng, pub, log.New(io.Discard, "", 0))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, pub
}

func submitBody() []byte {
	return []byte(`{
		"billing_date": "2025-01-15",
		"payment_date": "2025-01-16",
		"category": "Food",
		"subcategory": "Lunch",
		"description": "team lunch",
		"account_id": "a1",
		"unit_price": 30,
		"quantity": 1
	}`)
}

func doJSON(t *testing.T, method, url string, body []byte) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestSubmitEndpoint(t *testing.T) {
	ts, store, pub := newTestServer(t)

	status, body := doJSON(t, http.MethodPost, ts.URL+"/expenses", submitBody())
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "EXP-20250115-001", body["transaction_id"])

	acct, err := store.Accounts().Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("70.00")))

	evts := pub.all()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TypeExpenseRecorded, evts[0].Type)
	assert.Equal(t, "EXP-20250115-001", evts[0].TransactionID)
	assert.True(t, evts[0].Amount.Equal(decimal.RequireFromString("30.00")))
}

func TestSubmitEndpoint_Validation(t *testing.T) {
	ts, _, pub := newTestServer(t)

	body := []byte(`{"billing_date":"2025-01-15","category":"Food","subcategory":"Lunch",
		"description":"","account_id":"a1","unit_price":5,"quantity":1}`)
	status, resp := doJSON(t, http.MethodPost, ts.URL+"/expenses", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp["error"], "description")
	assert.Empty(t, pub.all(), "no event for a rejected submit")
}

func TestSubmitEndpoint_InsufficientBalance(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body := []byte(`{"billing_date":"2025-01-15","category":"Food","subcategory":"Lunch",
		"description":"splurge","account_id":"a1","unit_price":500,"quantity":1}`)
	status, _ := doJSON(t, http.MethodPost, ts.URL+"/expenses", body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestSubmitEndpoint_UnknownAccount(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body := []byte(`{"billing_date":"2025-01-15","category":"Food","subcategory":"Lunch",
		"description":"x","account_id":"nope","unit_price":5,"quantity":1}`)
	status, _ := doJSON(t, http.MethodPost, ts.URL+"/expenses", body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubmitEndpoint_BadDate(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body := []byte(`{"billing_date":"15/01/2025","category":"Food","subcategory":"Lunch",
		"description":"x","account_id":"a1","unit_price":5,"quantity":1}`)
	status, resp := doJSON(t, http.MethodPost, ts.URL+"/expenses", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp["error"], "billing_date")
}

func TestUndoEndpoint(t *testing.T) {
	ts, store, pub := newTestServer(t)

	status, body := doJSON(t, http.MethodPost, ts.URL+"/expenses", submitBody())
	require.Equal(t, http.StatusCreated, status)
	txID := body["transaction_id"].(string)

	status, body = doJSON(t, http.MethodDelete, ts.URL+"/expenses/"+txID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "reversed", body["status"])

	acct, err := store.Accounts().Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("100.00")))

	// Second undo is an idempotent no-op.
	status, body = doJSON(t, http.MethodDelete, ts.URL+"/expenses/"+txID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "already_undone", body["status"])

	evts := pub.all()
	require.Len(t, evts, 2, "one recorded, one reversed")
	assert.Equal(t, events.TypeExpenseReversed, evts[1].Type)
}

func TestUndoEndpoint_MalformedID(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, _ := doJSON(t, http.MethodDelete, ts.URL+"/expenses/garbage", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRecentEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		status, _ := doJSON(t, http.MethodPost, ts.URL+"/expenses", submitBody())
		require.Equal(t, http.StatusCreated, status)
	}

	resp, err := http.Get(ts.URL + "/expenses/recent?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "EXP-20250115-003", recs[0]["transaction_id"])
	assert.Equal(t, "EXP-20250115-002", recs[1]["transaction_id"])
}

func TestSearchEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/expenses", submitBody())
	require.Equal(t, http.StatusCreated, status)

	resp, err := http.Get(ts.URL + "/expenses/search?q=savings")
	require.NoError(t, err)
	defer resp.Body.Close()

	var recs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	assert.Len(t, recs, 1)
}

func TestAccountsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/accounts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var accts []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accts))
	require.Len(t, accts, 1)
	assert.Equal(t, "Savings", accts[0]["name"])
}

func TestGetExpenseEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := doJSON(t, http.MethodPost, ts.URL+"/expenses", submitBody())
	require.Equal(t, http.StatusCreated, status)
	txID := body["transaction_id"].(string)

	status, rec := doJSON(t, http.MethodGet, ts.URL+"/expenses/"+txID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "team lunch", rec["description"])
	assert.Equal(t, "2025-01-15", rec["billing_date"])
	assert.Equal(t, "2025-01-16", rec["payment_date"])
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
