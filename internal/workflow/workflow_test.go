package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bookingflow/internal/artifact"
	"bookingflow/internal/logging"
	"bookingflow/internal/notify"
	"bookingflow/internal/repository"
	"bookingflow/pkg/models"
)

type fakeDomain struct {
	invoices map[string]*models.Invoice
}

func (f *fakeDomain) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// stubTransport records every message and can fail sends per recipient.
type stubTransport struct {
	mu     sync.Mutex
	sent   []notify.Message
	failTo map[string]error
}

func (s *stubTransport) Send(_ context.Context, msg notify.Message) (notify.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failTo[msg.To]; ok {
		return notify.SendResult{}, err
	}
	s.sent = append(s.sent, msg)
	return notify.SendResult{MessageID: "msg-" + msg.IdempotencyToken}, nil
}

func (s *stubTransport) messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// failingArtifacts rejects writes but serves reads from an inner store.
type failingArtifacts struct {
	inner  artifact.Store
	putErr error
}

func (f *failingArtifacts) Put(ctx context.Context, path string, data []byte) error {
	return f.putErr
}

func (f *failingArtifacts) Get(ctx context.Context, path string) ([]byte, error) {
	return f.inner.Get(ctx, path)
}

const (
	testInvoiceID  = "INV-1"
	approverID     = "u1"
	approverEmail  = "dana.weber@example.com"
	operationsAddr = "ops@example.com"
)

var testTriggeredAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ledger    *repository.MemoryLedger
	domain    *fakeDomain
	users     *fakeUsers
	artifacts artifact.Store
	transport *stubTransport
	cfg       Config
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	approvedAt := testTriggeredAt
	f := &fixture{
		ledger: repository.NewMemoryLedger(),
		domain: &fakeDomain{invoices: map[string]*models.Invoice{
			testInvoiceID: {
				ID:             testInvoiceID,
				ContractorName: "Acme Ltd",
				Scope:          "Platform migration support",
				Amount:         500,
				DepartmentFrom: "Engineering",
				DepartmentTo:   "Finance",
				Days:           2,
				MonthLabel:     "March 2024",
				DaysLabel:      "2 full days",
				DayRate:        250,
				BookedBy:       "Ops Desk",
				ApprovedBy:     approverID,
				ApprovedAt:     &approvedAt,
			},
		}},
		users: &fakeUsers{users: map[string]*models.User{
			approverID: {ID: approverID, DisplayName: "Dana Weber", Email: approverEmail},
		}},
		artifacts: artifact.NewFSStore(t.TempDir()),
		transport: &stubTransport{failTo: map[string]error{}},
		cfg:       DefaultConfig(),
	}
	f.rebuild(t)
	return f
}

// rebuild recreates the service after a fixture field was swapped out.
func (f *fixture) rebuild(t *testing.T) {
	t.Helper()
	logger := logging.NewLogger()
	notifier := notify.NewNotifier(f.transport, operationsAddr, logger)
	f.service = NewService(f.ledger, f.domain, f.users, f.artifacts, notifier, f.cfg, logger)
}

func (f *fixture) triggerInput() TriggerInput {
	return TriggerInput{
		InvoiceID:   testInvoiceID,
		ActorID:     approverID,
		ActorName:   "Dana Weber",
		ActorEmail:  approverEmail,
		TriggeredAt: testTriggeredAt,
	}
}

func (f *fixture) storedPath() string {
	return "booking-forms/INV-1/Acme_Ltd_March_2024.pdf"
}

func TestIdempotencyKey(t *testing.T) {
	key := IdempotencyKey("INV-1", testTriggeredAt)
	assert.Equal(t, "INV-1_2024-03-01T10:00:00.000Z", key)

	// The key is timezone-normalized: the same instant in another zone
	// yields the same key.
	berlin := time.FixedZone("CET", 3600)
	assert.Equal(t, key, IdempotencyKey("INV-1", testTriggeredAt.In(berlin)),
		"key must be timezone-stable")
}
