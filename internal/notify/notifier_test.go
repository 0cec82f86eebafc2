package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingflow/internal/logging"
	"bookingflow/pkg/models"
)

type stubTransport struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *stubTransport) Send(_ context.Context, msg Message) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return SendResult{}, s.err
	}
	s.sent = append(s.sent, msg)
	return SendResult{MessageID: "msg-" + msg.IdempotencyToken}, nil
}

func testRecord() models.WorkflowRecord {
	return models.WorkflowRecord{
		ContractorName: "Acme Ltd",
		Scope:          "Platform migration support",
		Amount:         500,
		DepartmentFrom: "Engineering",
		DepartmentTo:   "Finance",
		Days:           2,
		MonthLabel:     "March 2024",
		DaysLabel:      "2 full days",
		DayRate:        250,
		ApproverName:   "Dana Weber",
		BookedBy:       "Ops Desk",
		ApprovedAt:     "01 Mar 2024 10:00 UTC",
	}
}

func testContext() Context {
	return Context{
		InvoiceID:     "INV-1",
		ApproverName:  "Dana Weber",
		ApproverEmail: "dana.weber@example.com",
	}
}

func TestSendApprover(t *testing.T) {
	transport := &stubTransport{}
	n := NewNotifier(transport, "ops@example.com", logging.NewLogger())
	doc := []byte("%PDF-fake")

	out := n.SendApprover(context.Background(), testRecord(), testContext(), doc, "INV-1_2024-03-01T10:00:00.000Z")
	require.True(t, out.Success)
	assert.NotEmpty(t, out.MessageID)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, "dana.weber@example.com", msg.To)
	assert.Equal(t, "INV-1_2024-03-01T10:00:00.000Z_approver", msg.IdempotencyToken)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "Acme_Ltd_March_2024.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, doc, msg.Attachments[0].Content, "attachment must be the exact bytes passed in")
}

func TestSendApproverEmptyAddressFailsFast(t *testing.T) {
	transport := &stubTransport{}
	n := NewNotifier(transport, "ops@example.com", logging.NewLogger())

	wctx := testContext()
	wctx.ApproverEmail = "   "
	out := n.SendApprover(context.Background(), testRecord(), wctx, []byte("x"), "key")

	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, ErrNoRecipientAddress)
	assert.Empty(t, transport.sent, "nothing must reach the transport")
}

func TestSendOperations(t *testing.T) {
	transport := &stubTransport{}
	n := NewNotifier(transport, "ops@example.com", logging.NewLogger())

	out := n.SendOperations(context.Background(), testRecord(), testContext(), []byte("x"), "k1")
	require.True(t, out.Success)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "ops@example.com", transport.sent[0].To)
	assert.Equal(t, "k1_operations", transport.sent[0].IdempotencyToken)
}

func TestSendOperationsTransportFailure(t *testing.T) {
	transport := &stubTransport{err: errors.New("connection refused")}
	n := NewNotifier(transport, "ops@example.com", logging.NewLogger())

	out := n.SendOperations(context.Background(), testRecord(), testContext(), []byte("x"), "k1")
	assert.False(t, out.Success)
	assert.Error(t, out.Err)
}

func TestOperationsBodyGolden(t *testing.T) {
	body := operationsBody(testRecord(), testContext())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "operations_body", []byte(body))
}

func TestDetailTableEscapesHTML(t *testing.T) {
	rec := testRecord()
	rec.ContractorName = `Acme <&> Ltd`
	table := detailTable(rec)
	assert.Contains(t, table, "Acme &lt;&amp;&gt; Ltd")
	assert.NotContains(t, table, "<&>")
}
