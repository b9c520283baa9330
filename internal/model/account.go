package model

import "github.com/shopspring/decimal"

// Account is a spending account holding a running balance.
// Balances are mutated only through the ledger engine's guarded
// compare-and-set path; accounts themselves are created and removed
// out-of-band (see the seed command).
type Account struct {
	ID      string
	Name    string // unique display name
	Balance decimal.Decimal
}
