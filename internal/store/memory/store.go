// Package memory implements the ledger store contracts in process
// memory. It is the reference implementation of the conditional-write
// semantics the engine depends on, and doubles as the test backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
)

const dayFormat = "2006-01-02"

// Store holds all three tables behind one mutex, so every store call
// is atomic with respect to concurrent callers. Compare-and-set on
// balances is real: a stale expected value fails with
// ledger.ErrBalanceConflict.
type Store struct {
	mu        sync.Mutex
	accounts  map[string]model.Account
	expenses  map[string]model.ExpenseRecord
	cashflows []model.CashFlowEntry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]model.Account),
		expenses: make(map[string]model.ExpenseRecord),
	}
}

// Accounts returns the account-table view of the store.
func (s *Store) Accounts() ledger.AccountStore { return accountView{s} }

// Expenses returns the expense-table view of the store.
func (s *Store) Expenses() ledger.ExpenseStore { return expenseView{s} }

// CashFlows returns the audit-trail view of the store.
func (s *Store) CashFlows() ledger.CashFlowStore { return cashFlowView{s} }

// PutAccount creates or replaces an account. Account management is
// out-of-band for the engine; this is the seeding path.
func (s *Store) PutAccount(acct model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = acct
}

// CashFlowEntries returns a copy of all audit entries, oldest first.
func (s *Store) CashFlowEntries() []model.CashFlowEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.CashFlowEntry, len(s.cashflows))
	copy(copied, s.cashflows)
	return copied
}

type accountView struct{ s *Store }

var _ ledger.AccountStore = accountView{}

func (v accountView) Get(ctx context.Context, id string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	acct, ok := v.s.accounts[id]
	if !ok {
		return model.Account{}, ledger.ErrNotFound
	}
	return acct, nil
}

func (v accountView) List(ctx context.Context) ([]model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	accts := make([]model.Account, 0, len(v.s.accounts))
	for _, acct := range v.s.accounts {
		accts = append(accts, acct)
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].Name < accts[j].Name })
	return accts, nil
}

func (v accountView) CompareAndSetBalance(ctx context.Context, id string, expected, updated decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	acct, ok := v.s.accounts[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if !acct.Balance.Equal(expected) {
		return ledger.ErrBalanceConflict
	}
	acct.Balance = updated
	v.s.accounts[id] = acct
	return nil
}

type expenseView struct{ s *Store }

var _ ledger.ExpenseStore = expenseView{}

func (v expenseView) CountByBillingDate(ctx context.Context, billingDate time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	day := billingDate.Format(dayFormat)
	count := 0
	for _, rec := range v.s.expenses {
		if rec.BillingDate.Format(dayFormat) == day {
			count++
		}
	}
	return count, nil
}

func (v expenseView) Insert(ctx context.Context, rec model.ExpenseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, exists := v.s.expenses[rec.TransactionID]; exists {
		return ledger.ErrDuplicateID
	}
	v.s.expenses[rec.TransactionID] = rec
	return nil
}

func (v expenseView) Get(ctx context.Context, transactionID string) (model.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ExpenseRecord{}, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	rec, ok := v.s.expenses[transactionID]
	if !ok {
		return model.ExpenseRecord{}, ledger.ErrNotFound
	}
	return rec, nil
}

func (v expenseView) Delete(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, ok := v.s.expenses[transactionID]; !ok {
		return ledger.ErrNotFound
	}
	delete(v.s.expenses, transactionID)
	return nil
}

// ListRecent returns up to limit records, newest first. Transaction IDs
// sort chronologically, so descending ID order is descending recency.
func (v expenseView) ListRecent(ctx context.Context, limit int) ([]model.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	return v.s.recentLocked(limit, func(model.ExpenseRecord) bool { return true }), nil
}

func (v expenseView) Search(ctx context.Context, term string, limit int) ([]model.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	needle := strings.ToLower(term)
	return v.s.recentLocked(limit, func(rec model.ExpenseRecord) bool {
		if strings.Contains(strings.ToLower(rec.Description), needle) {
			return true
		}
		acct, ok := v.s.accounts[rec.AccountID]
		return ok && strings.Contains(strings.ToLower(acct.Name), needle)
	}), nil
}

func (s *Store) recentLocked(limit int, match func(model.ExpenseRecord) bool) []model.ExpenseRecord {
	recs := make([]model.ExpenseRecord, 0, len(s.expenses))
	for _, rec := range s.expenses {
		if match(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].TransactionID > recs[j].TransactionID })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

type cashFlowView struct{ s *Store }

var _ ledger.CashFlowStore = cashFlowView{}

func (v cashFlowView) Insert(ctx context.Context, entry model.CashFlowEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	v.s.cashflows = append(v.s.cashflows, entry)
	return nil
}

func (v cashFlowView) DeleteByTransactionID(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	for i, entry := range v.s.cashflows {
		if entry.TransactionID == transactionID {
			v.s.cashflows = append(v.s.cashflows[:i], v.s.cashflows[i+1:]...)
			return nil
		}
	}
	return ledger.ErrNotFound
}
