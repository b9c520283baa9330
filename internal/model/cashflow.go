package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlowDirection classifies a cash-flow audit entry.
type FlowDirection string

const (
	FlowDebit  FlowDirection = "Debit"
	FlowCredit FlowDirection = "Credit"
)

// CashFlowEntry is one row in the append-only cash-flow audit trail.
// While an ExpenseRecord is live, exactly one Debit entry exists for
// its transaction ID.
type CashFlowEntry struct {
	TransactionID string
	Direction     FlowDirection
	AccountName   string
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	BillingDate   time.Time
	PaymentDate   time.Time
}
