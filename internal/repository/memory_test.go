package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerReclaimExclusivity(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	triggeredAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := ledger.Create(ctx, "INV-1", "u1", triggeredAt, "INV-1_2024-03-01T10:00:00.000Z")
	require.NoError(t, err)

	claimed, err := ledger.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	// The claim has gone stale: its worker is presumed crashed.
	ledger.BackdateClaim(id, time.Now().Add(-20*time.Minute))

	first, err := ledger.Reclaim(ctx, id, 15*time.Minute)
	require.NoError(t, err)
	second, err := ledger.Reclaim(ctx, id, 15*time.Minute)
	require.NoError(t, err)

	assert.True(t, first, "the first reclaimer takes over the stale claim")
	assert.False(t, second, "the winner's fresh claim stamp must lock out a second reclaimer")
}

func TestMemoryLedgerFreshClaimIsNotStale(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	triggeredAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := ledger.Create(ctx, "INV-1", "u1", triggeredAt, "INV-1_2024-03-01T10:00:00.000Z")
	require.NoError(t, err)

	// The row waited in pending well past the takeover threshold before a
	// worker picked it up. Age is measured from the claim, not creation.
	ledger.Backdate(id, time.Now().Add(-20*time.Minute))
	claimed, err := ledger.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	stale, err := ledger.FindStaleProcessing(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "a just-claimed row is in a live worker's hands")

	taken, err := ledger.Reclaim(ctx, id, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, taken)
}
