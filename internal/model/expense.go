package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxDescriptionLen is the longest accepted expense description.
const MaxDescriptionLen = 100

// ExpenseRecord is one recorded expense, keyed by its transaction ID.
// Records are immutable while live: Submit creates them, Undo removes
// them, and nothing edits them in place.
type ExpenseRecord struct {
	TransactionID string    // "EXP-YYYYMMDD-NNN"
	BillingDate   time.Time //nolint:revive // plain field name is clearest
	PaymentDate   time.Time
	Category      string
	Subcategory   string
	Description   string
	AccountID     string
	UnitPrice     decimal.Decimal
	Quantity      int64
	Amount        decimal.Decimal // UnitPrice * Quantity, rounded to 2 places
}
