// Package ledger implements the consistency engine that turns expense
// intents into a durable triple of records (account balance debit,
// expense record, cash-flow audit entry) and reverses exactly that
// effect on Undo. Both operations are sagas: each step has a
// compensation action, and a caller either sees all three records or
// none of them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/category"
	"github.com/tallybook-dev/tallybook/internal/model"
	"github.com/tallybook-dev/tallybook/internal/txid"
)

const (
	// sagaAttempts bounds whole-saga restarts after losing a
	// compare-and-set race on the account balance.
	sagaAttempts = 3
	// allocAttempts bounds insert retries on duplicate transaction IDs.
	allocAttempts = 5
	// restoreAttempts bounds Undo's balance-restoration retries.
	restoreAttempts = 3

	defaultRecentLimit = 10
	defaultSearchLimit = 20
)

// Engine orchestrates Submit and Undo against the three stores. It is
// the sole writer of account balances.
type Engine struct {
	accounts  AccountStore
	expenses  ExpenseStore
	cashflows CashFlowStore
	catalog   *category.Catalog
	queue     IncidentQueue
}

// NewEngine creates an Engine over the given stores. Incidents the
// engine cannot repair are appended to queue.
func NewEngine(accounts AccountStore, expenses ExpenseStore, cashflows CashFlowStore, catalog *category.Catalog, queue IncidentQueue) *Engine {
	return &Engine{
		accounts:  accounts,
		expenses:  expenses,
		cashflows: cashflows,
		catalog:   catalog,
		queue:     queue,
	}
}

// Submit validates an intent, debits the account, and records the
// expense with its audit entry. On success all three records exist
// consistently and the allocated transaction ID is returned; on error
// the stores are as if Submit had never been called.
func (e *Engine) Submit(ctx context.Context, intent ExpenseIntent) (string, error) {
	if err := ValidateIntent(intent, e.catalog); err != nil {
		return "", err
	}
	amount := Amount(intent.UnitPrice, intent.Quantity)

	var lastConflict error
	for attempt := 0; attempt < sagaAttempts; attempt++ {
		id, err := e.submitOnce(ctx, intent, amount)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrBalanceConflict) {
			lastConflict = err
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("account %s: %w: %v", intent.AccountID, ErrConcurrentModification, lastConflict)
}

func (e *Engine) submitOnce(ctx context.Context, intent ExpenseIntent, amount decimal.Decimal) (string, error) {
	acct, err := e.accounts.Get(ctx, intent.AccountID)
	if errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("account %s: %w", intent.AccountID, ErrAccountNotFound)
	}
	if err != nil {
		return "", &SagaError{Op: "submit", Step: "load-account", AccountID: intent.AccountID, Err: err}
	}

	newBalance := acct.Balance.Sub(amount)
	if newBalance.IsNegative() {
		return "", fmt.Errorf("account %s: balance %s cannot cover %s: %w",
			acct.ID, acct.Balance.StringFixed(2), amount.StringFixed(2), ErrInsufficientBalance)
	}

	count, err := e.expenses.CountByBillingDate(ctx, intent.BillingDate)
	if err != nil {
		return "", &SagaError{Op: "submit", Step: "allocate-id", AccountID: acct.ID, Err: err}
	}
	seq := count + 1

	// The conditional write is the serialization point for concurrent
	// submissions against this account: a stale balance aborts here with
	// no partial effect, and Submit restarts the saga.
	if err := e.accounts.CompareAndSetBalance(ctx, acct.ID, acct.Balance, newBalance); err != nil {
		if errors.Is(err, ErrBalanceConflict) {
			return "", err
		}
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("account %s: %w", acct.ID, ErrAccountNotFound)
		}
		return "", &SagaError{Op: "submit", Step: "debit-balance", AccountID: acct.ID, Err: err}
	}

	rec := model.ExpenseRecord{
		TransactionID: txid.Format(intent.BillingDate, seq),
		BillingDate:   intent.BillingDate,
		PaymentDate:   intent.PaymentDate,
		Category:      intent.Category,
		Subcategory:   intent.Subcategory,
		Description:   intent.Description,
		AccountID:     acct.ID,
		UnitPrice:     intent.UnitPrice,
		Quantity:      intent.Quantity,
		Amount:        amount,
	}

	// The insert is the allocation's source of truth: the pre-read count
	// is only a hint, and a duplicate ID means a concurrent submission
	// won the sequence. Re-read and retry with a higher one.
	var insertErr error
	inserted := false
	for i := 0; i < allocAttempts; i++ {
		insertErr = e.expenses.Insert(ctx, rec)
		if insertErr == nil {
			inserted = true
			break
		}
		if !errors.Is(insertErr, ErrDuplicateID) {
			break
		}
		fresh, cerr := e.expenses.CountByBillingDate(ctx, intent.BillingDate)
		if cerr != nil {
			insertErr = cerr
			break
		}
		if fresh >= seq {
			seq = fresh + 1
		} else {
			seq++
		}
		rec.TransactionID = txid.Format(intent.BillingDate, seq)
	}
	if !inserted {
		var failure error = &SagaError{Op: "submit", Step: "insert-expense", TransactionID: rec.TransactionID, AccountID: acct.ID, Err: insertErr}
		if errors.Is(insertErr, ErrDuplicateID) {
			failure = fmt.Errorf("billing date %s: %w", intent.BillingDate.Format("2006-01-02"), ErrAllocationExhausted)
		}
		if cerr := e.compensateBalance(ctx, "submit", rec.TransactionID, acct.ID, newBalance, acct.Balance, amount); cerr != nil {
			return "", errors.Join(failure, cerr)
		}
		return "", failure
	}

	entry := model.CashFlowEntry{
		TransactionID: rec.TransactionID,
		Direction:     model.FlowDebit,
		AccountName:   acct.Name,
		Amount:        amount,
		BalanceAfter:  newBalance,
		BillingDate:   intent.BillingDate,
		PaymentDate:   intent.PaymentDate,
	}
	if err := e.cashflows.Insert(ctx, entry); err != nil {
		sagaErr := &SagaError{Op: "submit", Step: "insert-cashflow", TransactionID: rec.TransactionID, AccountID: acct.ID, Err: err}
		var cleanup []error
		if derr := e.expenses.Delete(ctx, rec.TransactionID); derr != nil && !errors.Is(derr, ErrNotFound) {
			if escErr := e.escalate(ctx, "submit", rec.TransactionID, acct.ID, amount,
				fmt.Sprintf("failed to delete expense during compensation: %v", derr)); escErr != nil {
				cleanup = append(cleanup, escErr)
			}
		}
		if cerr := e.compensateBalance(ctx, "submit", rec.TransactionID, acct.ID, newBalance, acct.Balance, amount); cerr != nil {
			cleanup = append(cleanup, cerr)
		}
		if len(cleanup) > 0 {
			return "", errors.Join(append([]error{error(sagaErr)}, cleanup...)...)
		}
		return "", sagaErr
	}

	return rec.TransactionID, nil
}

// UndoResult reports the outcome of a successful Undo.
type UndoResult struct {
	// AlreadyUndone is set when the transaction's audit entry was gone
	// before this call: a retried Undo, treated as an idempotent no-op.
	AlreadyUndone bool
	// ReconciliationPending is set when the record deletions succeeded
	// but the balance restoration did not. The incident has been queued
	// for out-of-band repair; the deletions stand.
	ReconciliationPending bool
}

// Undo reverses a previously recorded expense: it deletes the audit
// entry and expense record, then credits the amount back to the
// account. Running it twice on the same ID is safe and never
// double-restores the balance.
func (e *Engine) Undo(ctx context.Context, transactionID string) (UndoResult, error) {
	rec, err := e.expenses.Get(ctx, transactionID)
	if errors.Is(err, ErrNotFound) {
		// A completed Undo removes the expense record itself, so a
		// retried Undo lands here. A well-formed ID is treated as
		// already undone; anything else never named a transaction.
		if _, _, perr := txid.Parse(transactionID); perr != nil {
			return UndoResult{}, fmt.Errorf("transaction %q: %w", transactionID, ErrTransactionNotFound)
		}
		return UndoResult{AlreadyUndone: true}, nil
	}
	if err != nil {
		return UndoResult{}, &SagaError{Op: "undo", Step: "load-expense", TransactionID: transactionID, Err: err}
	}

	// Resolve by the stable account ID captured at submit time, never by
	// name: names can be renamed or reused while the record is live.
	acct, err := e.accounts.Get(ctx, rec.AccountID)
	if errors.Is(err, ErrNotFound) {
		return UndoResult{}, fmt.Errorf("transaction %s: account %s: %w", transactionID, rec.AccountID, ErrAccountNotFound)
	}
	if err != nil {
		return UndoResult{}, &SagaError{Op: "undo", Step: "load-account", TransactionID: transactionID, AccountID: rec.AccountID, Err: err}
	}

	// The audit entry goes first: once it is gone, a retried Undo stops
	// here instead of double-crediting the account.
	err = e.cashflows.DeleteByTransactionID(ctx, transactionID)
	if errors.Is(err, ErrNotFound) {
		return UndoResult{AlreadyUndone: true}, nil
	}
	if err != nil {
		return UndoResult{}, &SagaError{Op: "undo", Step: "delete-cashflow", TransactionID: transactionID, AccountID: acct.ID, Err: err}
	}

	if err := e.expenses.Delete(ctx, transactionID); err != nil && !errors.Is(err, ErrNotFound) {
		// The audit entry is already gone and cannot be faithfully
		// re-inserted (its balance-after value was not retained), so the
		// surviving expense row is handed to the operator.
		sagaErr := &SagaError{Op: "undo", Step: "delete-expense", TransactionID: transactionID, AccountID: acct.ID, Err: err}
		if escErr := e.escalate(ctx, "undo", transactionID, acct.ID, rec.Amount,
			fmt.Sprintf("expense row survived deletion of its audit entry: %v", err)); escErr != nil {
			return UndoResult{}, errors.Join(error(sagaErr), escErr)
		}
		return UndoResult{}, sagaErr
	}

	// Restore the balance, refreshing the expected value on conflicts:
	// the deletions stand regardless, so a losing writer must not abort
	// the undo.
	prior := acct.Balance
	for i := 0; i < restoreAttempts; i++ {
		err = e.accounts.CompareAndSetBalance(ctx, rec.AccountID, prior, prior.Add(rec.Amount))
		if err == nil {
			return UndoResult{}, nil
		}
		if !errors.Is(err, ErrBalanceConflict) {
			break
		}
		fresh, gerr := e.accounts.Get(ctx, rec.AccountID)
		if gerr != nil {
			err = gerr
			break
		}
		prior = fresh.Balance
	}

	escErr := e.escalate(ctx, "undo", transactionID, rec.AccountID, rec.Amount,
		fmt.Sprintf("balance restoration failed after deletions: %v", err))
	if escErr != nil {
		return UndoResult{ReconciliationPending: true},
			&SagaError{Op: "undo", Step: "escalate", TransactionID: transactionID, AccountID: rec.AccountID, Err: escErr}
	}
	return UndoResult{ReconciliationPending: true}, nil
}

// Expense returns a live expense record by transaction ID.
func (e *Engine) Expense(ctx context.Context, transactionID string) (model.ExpenseRecord, error) {
	rec, err := e.expenses.Get(ctx, transactionID)
	if errors.Is(err, ErrNotFound) {
		return model.ExpenseRecord{}, fmt.Errorf("transaction %q: %w", transactionID, ErrTransactionNotFound)
	}
	return rec, err
}

// ListRecent returns up to limit expense records, newest first.
// A non-positive limit selects the default of 10.
func (e *Engine) ListRecent(ctx context.Context, limit int) ([]model.ExpenseRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return e.expenses.ListRecent(ctx, limit)
}

// Search returns recent expense records whose description or account
// name contains term, newest first.
func (e *Engine) Search(ctx context.Context, term string, limit int) ([]model.ExpenseRecord, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return e.expenses.Search(ctx, term, limit)
}

// Accounts returns all accounts with their current balances.
func (e *Engine) Accounts(ctx context.Context) ([]model.Account, error) {
	return e.accounts.List(ctx)
}

// compensateBalance reverses a prior balance write. If the reversal
// itself fails the inconsistency is escalated and the returned error
// describes the state left behind.
func (e *Engine) compensateBalance(ctx context.Context, op, transactionID, accountID string, from, to, amount decimal.Decimal) error {
	err := e.accounts.CompareAndSetBalance(ctx, accountID, from, to)
	if err == nil {
		return nil
	}
	escErr := e.escalate(ctx, op, transactionID, accountID, amount,
		fmt.Sprintf("failed to restore balance from %s to %s: %v", from.StringFixed(2), to.StringFixed(2), err))
	if escErr != nil {
		return errors.Join(err, escErr)
	}
	return fmt.Errorf("balance restoration failed, escalated for reconciliation: %w", err)
}

func (e *Engine) escalate(ctx context.Context, op, transactionID, accountID string, amount decimal.Decimal, detail string) error {
	return e.queue.Append(ctx, Incident{
		ID:            uuid.NewString(),
		Op:            op,
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Detail:        detail,
		OccurredAt:    time.Now().UTC(),
	})
}
