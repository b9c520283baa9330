// Package postgres implements the ledger store contracts on top of
// PostgreSQL via database/sql and lib/pq. Compare-and-set on balances
// is a conditional UPDATE guarded by the expected value, so no
// in-process locking is needed for cross-process safety.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/model"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Store wraps a database handle. Obtain table views with Accounts,
// Expenses, and CashFlows.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given DSN and pings it.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return NewStore(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the three tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	balance NUMERIC(14,2) NOT NULL CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS expenses (
	transaction_id TEXT PRIMARY KEY,
	billing_date   DATE NOT NULL,
	payment_date   DATE NOT NULL,
	category       TEXT NOT NULL,
	subcategory    TEXT NOT NULL,
	description    TEXT NOT NULL,
	account_id     TEXT NOT NULL REFERENCES accounts(id),
	unit_price     NUMERIC(14,4) NOT NULL,
	quantity       BIGINT NOT NULL,
	amount         NUMERIC(14,2) NOT NULL
);

CREATE INDEX IF NOT EXISTS expenses_billing_date_idx ON expenses (billing_date);

CREATE TABLE IF NOT EXISTS cash_flow (
	transaction_id TEXT NOT NULL,
	direction      TEXT NOT NULL,
	account_name   TEXT NOT NULL,
	amount         NUMERIC(14,2) NOT NULL,
	balance_after  NUMERIC(14,2) NOT NULL,
	billing_date   DATE NOT NULL,
	payment_date   DATE NOT NULL,
	PRIMARY KEY (transaction_id, direction)
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

// PutAccount creates or replaces an account. This is the out-of-band
// seeding path; the engine never creates accounts.
func (s *Store) PutAccount(ctx context.Context, acct model.Account) error {
	const query = `
INSERT INTO accounts (id, name, balance) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, balance = EXCLUDED.balance`
	if _, err := s.db.ExecContext(ctx, query, acct.ID, acct.Name, acct.Balance); err != nil {
		return fmt.Errorf("upserting account %s: %w", acct.ID, err)
	}
	return nil
}

// Accounts returns the account-table view of the store.
func (s *Store) Accounts() ledger.AccountStore { return accountView{s.db} }

// Expenses returns the expense-table view of the store.
func (s *Store) Expenses() ledger.ExpenseStore { return expenseView{s.db} }

// CashFlows returns the audit-trail view of the store.
func (s *Store) CashFlows() ledger.CashFlowStore { return cashFlowView{s.db} }

type accountView struct{ db *sql.DB }

var _ ledger.AccountStore = accountView{}

func (v accountView) Get(ctx context.Context, id string) (model.Account, error) {
	const query = `SELECT id, name, balance FROM accounts WHERE id = $1`

	var acct model.Account
	err := v.db.QueryRowContext(ctx, query, id).Scan(&acct.ID, &acct.Name, &acct.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("loading account %s: %w", id, err)
	}
	return acct, nil
}

func (v accountView) List(ctx context.Context) ([]model.Account, error) {
	const query = `SELECT id, name, balance FROM accounts ORDER BY name`

	rows, err := v.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accts []model.Account
	for rows.Next() {
		var acct model.Account
		if err := rows.Scan(&acct.ID, &acct.Name, &acct.Balance); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accts = append(accts, acct)
	}
	return accts, rows.Err()
}

func (v accountView) CompareAndSetBalance(ctx context.Context, id string, expected, updated decimal.Decimal) error {
	const query = `UPDATE accounts SET balance = $1 WHERE id = $2 AND balance = $3`

	res, err := v.db.ExecContext(ctx, query, updated, id, expected)
	if err != nil {
		return fmt.Errorf("updating balance of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating balance of %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	// Zero rows: either the account is gone or the guard lost.
	var exists bool
	err = v.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking account %s: %w", id, err)
	}
	if !exists {
		return ledger.ErrNotFound
	}
	return ledger.ErrBalanceConflict
}

type expenseView struct{ db *sql.DB }

var _ ledger.ExpenseStore = expenseView{}

const expenseColumns = `transaction_id, billing_date, payment_date, category, subcategory,
	description, account_id, unit_price, quantity, amount`

func (v expenseView) CountByBillingDate(ctx context.Context, billingDate time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM expenses WHERE billing_date = $1`

	var count int
	if err := v.db.QueryRowContext(ctx, query, billingDate.Format("2006-01-02")).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting expenses: %w", err)
	}
	return count, nil
}

func (v expenseView) Insert(ctx context.Context, rec model.ExpenseRecord) error {
	const query = `
INSERT INTO expenses (` + expenseColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := v.db.ExecContext(ctx, query,
		rec.TransactionID, rec.BillingDate, rec.PaymentDate, rec.Category, rec.Subcategory,
		rec.Description, rec.AccountID, rec.UnitPrice, rec.Quantity, rec.Amount)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ledger.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("inserting expense %s: %w", rec.TransactionID, err)
	}
	return nil
}

func (v expenseView) Get(ctx context.Context, transactionID string) (model.ExpenseRecord, error) {
	const query = `SELECT ` + expenseColumns + ` FROM expenses WHERE transaction_id = $1`

	rec, err := scanExpense(v.db.QueryRowContext(ctx, query, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExpenseRecord{}, ledger.ErrNotFound
	}
	if err != nil {
		return model.ExpenseRecord{}, fmt.Errorf("loading expense %s: %w", transactionID, err)
	}
	return rec, nil
}

func (v expenseView) Delete(ctx context.Context, transactionID string) error {
	const query = `DELETE FROM expenses WHERE transaction_id = $1`

	res, err := v.db.ExecContext(ctx, query, transactionID)
	if err != nil {
		return fmt.Errorf("deleting expense %s: %w", transactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting expense %s: %w", transactionID, err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (v expenseView) ListRecent(ctx context.Context, limit int) ([]model.ExpenseRecord, error) {
	const query = `SELECT ` + expenseColumns + `
FROM expenses ORDER BY transaction_id DESC LIMIT $1`

	rows, err := v.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func (v expenseView) Search(ctx context.Context, term string, limit int) ([]model.ExpenseRecord, error) {
	const query = `SELECT e.transaction_id, e.billing_date, e.payment_date, e.category, e.subcategory,
	e.description, e.account_id, e.unit_price, e.quantity, e.amount
FROM expenses e
JOIN accounts a ON a.id = e.account_id
WHERE e.description ILIKE '%' || $1 || '%' OR a.name ILIKE '%' || $1 || '%'
ORDER BY e.transaction_id DESC LIMIT $2`

	rows, err := v.db.QueryContext(ctx, query, term, limit)
	if err != nil {
		return nil, fmt.Errorf("searching expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (model.ExpenseRecord, error) {
	var rec model.ExpenseRecord
	err := row.Scan(&rec.TransactionID, &rec.BillingDate, &rec.PaymentDate, &rec.Category, &rec.Subcategory,
		&rec.Description, &rec.AccountID, &rec.UnitPrice, &rec.Quantity, &rec.Amount)
	return rec, err
}

func collectExpenses(rows *sql.Rows) ([]model.ExpenseRecord, error) {
	var recs []model.ExpenseRecord
	for rows.Next() {
		rec, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type cashFlowView struct{ db *sql.DB }

var _ ledger.CashFlowStore = cashFlowView{}

func (v cashFlowView) Insert(ctx context.Context, entry model.CashFlowEntry) error {
	const query = `
INSERT INTO cash_flow (transaction_id, direction, account_name, amount, balance_after, billing_date, payment_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := v.db.ExecContext(ctx, query,
		entry.TransactionID, string(entry.Direction), entry.AccountName,
		entry.Amount, entry.BalanceAfter, entry.BillingDate, entry.PaymentDate)
	if err != nil {
		return fmt.Errorf("inserting cash flow for %s: %w", entry.TransactionID, err)
	}
	return nil
}

func (v cashFlowView) DeleteByTransactionID(ctx context.Context, transactionID string) error {
	const query = `DELETE FROM cash_flow WHERE transaction_id = $1`

	res, err := v.db.ExecContext(ctx, query, transactionID)
	if err != nil {
		return fmt.Errorf("deleting cash flow for %s: %w", transactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting cash flow for %s: %w", transactionID, err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
