// Package reconcile persists balance inconsistencies the engine could
// not repair, as an append-only CSV queue for out-of-band operator
// tooling. Entries are only ever appended here; resolving one is an
// operator action outside this process.
package reconcile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook-dev/tallybook/internal/ledger"
)

// Header is the CSV header for the incident queue file.
const Header = "id,occurred_at,op,transaction_id,account_id,amount,detail"

const (
	numFields = 7
	queueFile = "reconcile-queue.csv"

	colID         = 0
	colOccurredAt = 1
	colOp         = 2
	colTxID       = 3
	colAccountID  = 4
	colAmount     = 5
	colDetail     = 6
)

// Queue is a file-backed ledger.IncidentQueue rooted at a directory.
type Queue struct {
	mu  sync.Mutex
	dir string
}

var _ ledger.IncidentQueue = (*Queue)(nil)

// NewQueue creates a Queue writing to <dir>/reconcile-queue.csv.
func NewQueue(dir string) *Queue {
	return &Queue{dir: dir}
}

// Append writes an incident to the queue file, creating the file and
// header if needed.
func (q *Queue) Append(ctx context.Context, inc ledger.Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return fmt.Errorf("creating reconcile dir: %w", err)
	}

	path := filepath.Join(q.dir, queueFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening reconcile queue: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if err := cw.Write(MarshalIncident(inc)); err != nil {
		return fmt.Errorf("writing incident: %w", err)
	}
	return cw.Error()
}

// Read returns all queued incidents. Returns nil if no queue file
// exists yet.
func (q *Queue) Read() ([]ledger.Incident, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.Open(filepath.Join(q.dir, queueFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening reconcile queue: %w", err)
	}
	defer f.Close()

	return readIncidents(f)
}

// MarshalIncident converts an Incident to a CSV row.
func MarshalIncident(inc ledger.Incident) []string {
	row := make([]string, numFields)
	row[colID] = inc.ID
	row[colOccurredAt] = inc.OccurredAt.Format(time.RFC3339)
	row[colOp] = inc.Op
	row[colTxID] = inc.TransactionID
	row[colAccountID] = inc.AccountID
	row[colAmount] = inc.Amount.String()
	row[colDetail] = inc.Detail
	return row
}

// UnmarshalIncident converts a CSV row to an Incident.
func UnmarshalIncident(record []string) (ledger.Incident, error) {
	if len(record) != numFields {
		return ledger.Incident{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colOccurredAt])
	if err != nil {
		return ledger.Incident{}, fmt.Errorf("parsing occurred_at %q: %w", record[colOccurredAt], err)
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return ledger.Incident{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	return ledger.Incident{
		ID:            record[colID],
		OccurredAt:    ts,
		Op:            record[colOp],
		TransactionID: record[colTxID],
		AccountID:     record[colAccountID],
		Amount:        amount,
		Detail:        record[colDetail],
	}, nil
}

func readIncidents(r io.Reader) ([]ledger.Incident, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading reconcile queue CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var incidents []ledger.Incident
	for i, rec := range records[1:] {
		inc, err := UnmarshalIncident(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}
