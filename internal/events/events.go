// Package events publishes ledger lifecycle events for downstream
// consumers. Publishing happens at the transport layer after an
// operation has fully succeeded; the engine itself never publishes.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types.
const (
	TypeExpenseRecorded = "expense.recorded"
	TypeExpenseReversed = "expense.reversed"
)

// Event describes one completed ledger operation.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// New builds an Event with a fresh ID and timestamp.
func New(eventType, transactionID, accountID string, amount decimal.Decimal) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
