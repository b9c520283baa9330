package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/category"
	"github.com/tallybook-dev/tallybook/internal/model"
)

// ExpenseIntent is a caller-supplied request to record an expense.
// The charged amount is derived, never supplied.
type ExpenseIntent struct {
	BillingDate time.Time
	PaymentDate time.Time
	Category    string
	Subcategory string
	Description string
	AccountID   string
	UnitPrice   decimal.Decimal
	Quantity    int64
}

// Amount derives the charged amount: unit price times quantity, rounded
// to 2 decimal places (half away from zero, so 12.345 * 3 -> 37.04).
func Amount(unitPrice decimal.Decimal, quantity int64) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity)).Round(2)
}

// ValidateIntent checks an intent against the catalog and returns the
// first violation as a *ValidationError, or nil.
func ValidateIntent(intent ExpenseIntent, catalog *category.Catalog) error {
	if intent.Description == "" {
		return &ValidationError{Field: "description", Reason: "required"}
	}
	if len(intent.Description) > model.MaxDescriptionLen {
		return &ValidationError{
			Field:  "description",
			Reason: fmt.Sprintf("must be at most %d characters", model.MaxDescriptionLen),
		}
	}
	if !intent.UnitPrice.IsPositive() {
		return &ValidationError{Field: "unit_price", Reason: "must be greater than 0"}
	}
	if intent.Quantity < 1 {
		return &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if !catalog.Valid(intent.Category, intent.Subcategory) {
		return &ValidationError{
			Field:  "subcategory",
			Reason: fmt.Sprintf("%q is not a recognized subcategory of %q", intent.Subcategory, intent.Category),
		}
	}
	return nil
}
