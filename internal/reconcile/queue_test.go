package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook-dev/tallybook/internal/ledger"
)

func incident(id string) ledger.Incident {
	return ledger.Incident{
		ID:            id,
		Op:            "undo",
		TransactionID: "EXP-20250115-001",
		AccountID:     "a1",
		Amount:        decimal.RequireFromString("30.00"),
		Detail:        "balance restoration failed after deletions: write timeout",
		OccurredAt:    time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestAppendRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := NewQueue(dir)

	require.NoError(t, q.Append(ctx, incident("inc-1")))
	require.NoError(t, q.Append(ctx, incident("inc-2")))

	got, err := q.Read()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inc-1", got[0].ID)
	assert.Equal(t, "inc-2", got[1].ID)
	assert.Equal(t, "undo", got[0].Op)
	assert.Equal(t, "EXP-20250115-001", got[0].TransactionID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, got[0].OccurredAt.Equal(incident("inc-1").OccurredAt))
}

func TestRead_NoFile(t *testing.T) {
	q := NewQueue(t.TempDir())
	got, err := q.Read()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAppend_WritesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := NewQueue(dir)

	require.NoError(t, q.Append(ctx, incident("inc-1")))
	require.NoError(t, q.Append(ctx, incident("inc-2")))

	data, err := os.ReadFile(filepath.Join(dir, "reconcile-queue.csv"))
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 3, lines, "header plus two rows")
}

func TestUnmarshalIncident_Errors(t *testing.T) {
	_, err := UnmarshalIncident([]string{"too", "short"})
	assert.Error(t, err)

	bad := MarshalIncident(incident("inc-1"))
	bad[colAmount] = "not-a-number"
	_, err = UnmarshalIncident(bad)
	assert.Error(t, err)

	bad = MarshalIncident(incident("inc-1"))
	bad[colOccurredAt] = "yesterday"
	_, err = UnmarshalIncident(bad)
	assert.Error(t, err)
}
