package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/model"
)

// Sentinel errors returned by store implementations.
var (
	// ErrNotFound reports that no record exists for the given key.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateID reports an insert with an already-used transaction ID.
	// Consumed by the engine's allocation retry loop, never surfaced.
	ErrDuplicateID = errors.New("duplicate transaction ID")
	// ErrBalanceConflict reports that the stored balance no longer matches
	// the expected value passed to CompareAndSetBalance.
	ErrBalanceConflict = errors.New("stored balance does not match expected value")
)

// AccountStore is the durable table of accounts. The engine is the only
// writer of balances, and only through CompareAndSetBalance.
type AccountStore interface {
	Get(ctx context.Context, id string) (model.Account, error)
	List(ctx context.Context) ([]model.Account, error)

	// CompareAndSetBalance updates the balance only if the stored value
	// still equals expected. Returns ErrBalanceConflict otherwise.
	CompareAndSetBalance(ctx context.Context, id string, expected, updated decimal.Decimal) error
}

// ExpenseStore is the durable table of expense records, keyed by
// transaction ID.
type ExpenseStore interface {
	CountByBillingDate(ctx context.Context, billingDate time.Time) (int, error)
	Insert(ctx context.Context, rec model.ExpenseRecord) error
	Get(ctx context.Context, transactionID string) (model.ExpenseRecord, error)
	Delete(ctx context.Context, transactionID string) error

	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.ExpenseRecord, error)
	// Search returns up to limit records whose description or account
	// name contains term (case-insensitive), newest first.
	Search(ctx context.Context, term string, limit int) ([]model.ExpenseRecord, error)
}

// CashFlowStore is the append-only audit trail.
type CashFlowStore interface {
	Insert(ctx context.Context, entry model.CashFlowEntry) error
	DeleteByTransactionID(ctx context.Context, transactionID string) error
}
