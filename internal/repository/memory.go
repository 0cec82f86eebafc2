package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookingflow/pkg/models"
)

// MemoryLedger is an in-memory BookingLedger used by tests and local
// development. All mutual exclusion happens under one mutex; the same
// claim semantics as the PostgreSQL store apply.
type MemoryLedger struct {
	mu          sync.Mutex
	nextID      int64
	entries     map[int64]*models.LedgerEntry
	byKey       map[string]int64
	provisioned bool
}

var _ BookingLedger = (*MemoryLedger)(nil)

// NewMemoryLedger creates a provisioned, empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		nextID:      1,
		entries:     make(map[int64]*models.LedgerEntry),
		byKey:       make(map[string]int64),
		provisioned: true,
	}
}

// SetProvisioned toggles the not-provisioned failure mode: when false,
// every ledger operation returns ErrNotProvisioned.
func (m *MemoryLedger) SetProvisioned(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisioned = ok
}

// Get returns a copy of the entry with the given id, or ErrNotFound.
func (m *MemoryLedger) Get(id int64) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryLedger) CheckCompleted(_ context.Context, key string) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return nil, ErrNotProvisioned
	}
	id, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	e := m.entries[id]
	if e.Status != models.StatusCompleted {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryLedger) HasCompletedForInvoice(_ context.Context, invoiceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return false, ErrNotProvisioned
	}
	for _, e := range m.entries {
		if e.InvoiceID == invoiceID && e.Status == models.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryLedger) Create(_ context.Context, invoiceID, actorID string, triggeredAt time.Time, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return 0, ErrNotProvisioned
	}
	if _, exists := m.byKey[key]; exists {
		return 0, ErrDuplicateKey
	}
	id := m.nextID
	m.nextID++
	m.entries[id] = &models.LedgerEntry{
		ID:             id,
		InvoiceID:      invoiceID,
		ActorID:        actorID,
		TriggeredAt:    triggeredAt,
		IdempotencyKey: key,
		Status:         models.StatusPending,
		CreatedAt:      time.Now(),
	}
	m.byKey[key] = id
	return id, nil
}

func (m *MemoryLedger) Claim(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return false, ErrNotProvisioned
	}
	e, ok := m.entries[id]
	if !ok || e.Status != models.StatusPending {
		return false, nil
	}
	now := time.Now()
	e.Status = models.StatusProcessing
	e.ClaimedAt = &now
	return true, nil
}

// Reclaim mirrors the PostgreSQL CAS: the winner re-stamps the claim time,
// so a second caller for the same row sees a fresh claim and loses.
func (m *MemoryLedger) Reclaim(_ context.Context, id int64, olderThan time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return false, ErrNotProvisioned
	}
	e, ok := m.entries[id]
	if !ok || e.Status != models.StatusProcessing || e.ClaimedAt == nil {
		return false, nil
	}
	if time.Since(*e.ClaimedAt) < olderThan {
		return false, nil
	}
	now := time.Now()
	e.ClaimedAt = &now
	return true, nil
}

func (m *MemoryLedger) Update(_ context.Context, id int64, upd LedgerUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return ErrNotProvisioned
	}
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = upd.Status
	if upd.ApproverSentAt != nil {
		e.ApproverSentAt = upd.ApproverSentAt
	}
	if upd.OperationsSentAt != nil {
		e.OperationsSentAt = upd.OperationsSentAt
	}
	if upd.ErrorDetail != nil {
		e.ErrorDetail = upd.ErrorDetail
	}
	return nil
}

func (m *MemoryLedger) FindStalePending(_ context.Context, grace time.Duration, limit int) ([]*models.LedgerEntry, error) {
	return m.findStale(models.StatusPending, grace, limit)
}

func (m *MemoryLedger) FindStaleProcessing(_ context.Context, olderThan time.Duration, limit int) ([]*models.LedgerEntry, error) {
	return m.findStale(models.StatusProcessing, olderThan, limit)
}

func (m *MemoryLedger) findStale(status models.WorkflowStatus, age time.Duration, limit int) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return nil, ErrNotProvisioned
	}
	cutoff := time.Now().Add(-age)
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.Status != status {
			continue
		}
		// Processing rows age from their claim, pending rows from creation.
		ref := e.CreatedAt
		if status == models.StatusProcessing {
			if e.ClaimedAt == nil {
				continue
			}
			ref = *e.ClaimedAt
		}
		if ref.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) FindPendingByInvoice(_ context.Context, invoiceID string) (*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.provisioned {
		return nil, ErrNotProvisioned
	}
	var latest *models.LedgerEntry
	for _, e := range m.entries {
		if e.InvoiceID != invoiceID {
			continue
		}
		if e.Status != models.StatusPending && e.Status != models.StatusProcessing {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryLedger) Available(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provisioned
}

// Backdate rewrites an entry's created_at, for testing stale-row selection.
func (m *MemoryLedger) Backdate(id int64, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.CreatedAt = createdAt
	}
}

// BackdateClaim rewrites an entry's claimed_at, for testing stuck-claim
// takeover.
func (m *MemoryLedger) BackdateClaim(id int64, claimedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.ClaimedAt = &claimedAt
	}
}
