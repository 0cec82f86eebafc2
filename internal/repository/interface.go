package repository

import (
	"context"
	"errors"
	"time"

	"bookingflow/pkg/models"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey indicates a unique-constraint violation on the
	// idempotency key. Callers treat it as "another writer got here first"
	// and skip silently.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
	// ErrNotProvisioned indicates the ledger table does not exist yet
	// (schema not migrated) or the store itself is unreachable. Callers
	// degrade to running the workflow without idempotency bookkeeping.
	ErrNotProvisioned = errors.New("booking ledger not provisioned")
)

// LedgerUpdate is a partial-progress or terminal write to a ledger row.
// Nil pointer fields are left untouched, so a retry can fill in the second
// sent-at timestamp without clearing the first.
type LedgerUpdate struct {
	Status           models.WorkflowStatus
	ApproverSentAt   *time.Time
	OperationsSentAt *time.Time
	ErrorDetail      *string
}

// BookingLedger is the durable idempotency ledger for booking workflow
// attempts.
type BookingLedger interface {
	// CheckCompleted returns the entry for key only if its status is
	// completed; any other status returns (nil, nil).
	CheckCompleted(ctx context.Context, key string) (*models.LedgerEntry, error)
	// HasCompletedForInvoice reports whether any completed entry exists for
	// the invoice, regardless of key. Used as a coarse pre-check.
	HasCompletedForInvoice(ctx context.Context, invoiceID string) (bool, error)
	// Create inserts a pending row and returns its id. A key collision is
	// surfaced as ErrDuplicateKey, a missing table as ErrNotProvisioned.
	Create(ctx context.Context, invoiceID, actorID string, triggeredAt time.Time, key string) (int64, error)
	// Claim atomically transitions the row pending->processing, stamps the
	// claim time and reports whether this caller won the transition.
	Claim(ctx context.Context, id int64) (bool, error)
	// Reclaim takes over a processing row whose claim is older than
	// olderThan, re-stamping the claim time so concurrent reclaimers
	// exclude each other. Recovery path for claims whose worker crashed
	// mid-send.
	Reclaim(ctx context.Context, id int64, olderThan time.Duration) (bool, error)
	// Update applies a LedgerUpdate to the row.
	Update(ctx context.Context, id int64, upd LedgerUpdate) error
	// FindStalePending returns up to limit pending rows created more than
	// grace ago, oldest first.
	FindStalePending(ctx context.Context, grace time.Duration, limit int) ([]*models.LedgerEntry, error)
	// FindStaleProcessing returns up to limit processing rows claimed more
	// than olderThan ago, oldest claim first.
	FindStaleProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*models.LedgerEntry, error)
	// FindPendingByInvoice returns the most recent non-terminal entry for
	// the invoice, or ErrNotFound.
	FindPendingByInvoice(ctx context.Context, invoiceID string) (*models.LedgerEntry, error)
	// Available probes whether the ledger table exists.
	Available(ctx context.Context) bool
}

// DomainProvider loads the approved-invoice data the workflow record is
// projected from.
type DomainProvider interface {
	// GetInvoice retrieves an invoice by its ID, or ErrNotFound.
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
}

// UserDirectory resolves user ids to display names and contact addresses.
type UserDirectory interface {
	// GetUser retrieves a directory entry by user ID, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*models.User, error)
}
