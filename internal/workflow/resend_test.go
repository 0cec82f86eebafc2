package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingflow/internal/repository"
	"bookingflow/pkg/models"
)

func TestResendSendsFreshDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.Resend(ctx, testInvoiceID))

	msgs := f.transport.messages()
	require.Len(t, msgs, 2)

	// Freshly minted key, never colliding with the automatic scheme.
	assert.True(t, strings.HasPrefix(msgs[0].IdempotencyToken, "INV-1_resend_"))
	assert.True(t, strings.HasSuffix(msgs[0].IdempotencyToken, "_approver"))
	assert.True(t, strings.HasSuffix(msgs[1].IdempotencyToken, "_operations"))

	// The fresh render was persisted.
	stored, err := f.artifacts.Get(ctx, f.storedPath())
	require.NoError(t, err)
	assert.Equal(t, stored, msgs[0].Attachments[0].Content)
}

func TestResendCompletesPendingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := seedPending(t, f, 40*time.Second)

	require.NoError(t, f.service.Resend(ctx, testInvoiceID))

	entry, err := f.ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, entry.Status, "pending row must be closed so the sweeper does not double-send")

	// A subsequent sweep finds nothing to do.
	before := len(f.transport.messages())
	res := f.service.Sweep(ctx)
	assert.Equal(t, 0, res.Processed)
	assert.Len(t, f.transport.messages(), before)
}

func TestResendUnknownInvoice(t *testing.T) {
	f := newFixture(t)

	err := f.service.Resend(context.Background(), "INV-MISSING")
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, f.transport.messages())
}

func TestResendWorksWithoutLedger(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetProvisioned(false)

	require.NoError(t, f.service.Resend(context.Background(), testInvoiceID))
	assert.Len(t, f.transport.messages(), 2)
}
