package ledger_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook-dev/tallybook/internal/category"
	"github.com/tallybook-dev/tallybook/internal/ledger"
)

func validIntent() ledger.ExpenseIntent {
	return ledger.ExpenseIntent{
		BillingDate: date(2025, 1, 15),
		PaymentDate: date(2025, 1, 15),
		Category:    "Utilities",
		Subcategory: "Internet",
		Description: "fiber bill",
		AccountID:   "a1",
		UnitPrice:   dec("49.99"),
		Quantity:    1,
	}
}

func TestValidateIntent_OK(t *testing.T) {
	err := ledger.ValidateIntent(validIntent(), category.Default())
	assert.NoError(t, err)
}

func TestValidateIntent_FirstViolationWins(t *testing.T) {
	// Everything is wrong; the description check fires first.
	in := validIntent()
	in.Description = ""
	in.UnitPrice = decimal.Zero
	in.Quantity = 0
	in.Subcategory = "Cabs"

	err := ledger.ValidateIntent(in, category.Default())
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "description", verr.Field)
}

func TestValidateIntent_DescriptionTooLong(t *testing.T) {
	in := validIntent()
	in.Description = strings.Repeat("x", 101)

	err := ledger.ValidateIntent(in, category.Default())
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "description", verr.Field)

	in.Description = strings.Repeat("x", 100)
	assert.NoError(t, ledger.ValidateIntent(in, category.Default()))
}

func TestValidateIntent_Pairing(t *testing.T) {
	in := validIntent()
	in.Category = "Food"
	in.Subcategory = "Internet"

	err := ledger.ValidateIntent(in, category.Default())
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "subcategory", verr.Field)
	assert.Contains(t, verr.Error(), "Internet")
}

func TestAmount(t *testing.T) {
	tests := []struct {
		price string
		qty   int64
		want  string
	}{
		{"12.345", 3, "37.04"}, // half rounds up
		{"30", 1, "30"},
		{"0.01", 99, "0.99"},
		{"19.99", 2, "39.98"},
		{"3.333", 3, "10"}, // 9.999 -> 10.00
	}
	for _, tt := range tests {
		got := ledger.Amount(dec(tt.price), tt.qty)
		assert.True(t, got.Equal(dec(tt.want)), "%s x %d = %s, want %s", tt.price, tt.qty, got, tt.want)
	}
}
