package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Incident records a balance inconsistency the engine could not repair:
// a compensation write that failed, or an Undo whose deletions succeeded
// but whose balance restoration did not. Incidents must reach an
// operator; they are never silently dropped.
type Incident struct {
	ID            string
	Op            string // "submit" or "undo"
	TransactionID string
	AccountID     string
	Amount        decimal.Decimal
	Detail        string
	OccurredAt    time.Time
}

// IncidentQueue is the operator escalation queue consumed by
// out-of-band reconciliation tooling.
type IncidentQueue interface {
	Append(ctx context.Context, inc Incident) error
}
