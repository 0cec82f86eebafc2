package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"bookingflow/internal/logging"
	"bookingflow/internal/render"
	"bookingflow/pkg/models"
)

// ErrNoRecipientAddress indicates the approver could not be resolved to a
// contact address. The send fails fast instead of handing an empty address
// to the transport.
var ErrNoRecipientAddress = errors.New("no recipient address resolved")

// Context carries the per-workflow delivery context the senders need
// beyond the record itself.
type Context struct {
	InvoiceID     string
	ApproverName  string
	ApproverEmail string
}

// Outcome is one sender's independent result.
type Outcome struct {
	Success   bool
	MessageID string
	Err       error
}

// Notifier builds and dispatches the two booking notifications. The two
// sends are fully independent; one failing never prevents the other.
type Notifier struct {
	transport         Transport
	operationsMailbox string
	logger            *logging.Logger
}

// NewNotifier creates a new Notifier.
func NewNotifier(transport Transport, operationsMailbox string, logger *logging.Logger) *Notifier {
	return &Notifier{
		transport:         transport,
		operationsMailbox: operationsMailbox,
		logger:            logger,
	}
}

// SendApprover notifies the approver resolved from the workflow context.
func (n *Notifier) SendApprover(ctx context.Context, rec models.WorkflowRecord, wctx Context, document []byte, key string) Outcome {
	if strings.TrimSpace(wctx.ApproverEmail) == "" {
		return Outcome{Err: fmt.Errorf("approver %q: %w", wctx.ApproverName, ErrNoRecipientAddress)}
	}
	msg := Message{
		To:       wctx.ApproverEmail,
		Subject:  fmt.Sprintf("Booking confirmed: %s (%s)", rec.ContractorName, rec.MonthLabel),
		HTMLBody: approverBody(rec, wctx),
		Attachments: []Attachment{
			{Filename: attachmentName(rec), Content: document},
		},
		IdempotencyToken: key + "_approver",
	}
	return n.dispatch(ctx, msg)
}

// SendOperations notifies the fixed operations mailbox.
func (n *Notifier) SendOperations(ctx context.Context, rec models.WorkflowRecord, wctx Context, document []byte, key string) Outcome {
	msg := Message{
		To:       n.operationsMailbox,
		Subject:  fmt.Sprintf("New contractor booking: %s (%s)", rec.ContractorName, rec.MonthLabel),
		HTMLBody: operationsBody(rec, wctx),
		Attachments: []Attachment{
			{Filename: attachmentName(rec), Content: document},
		},
		IdempotencyToken: key + "_operations",
	}
	return n.dispatch(ctx, msg)
}

func (n *Notifier) dispatch(ctx context.Context, msg Message) Outcome {
	res, err := n.transport.Send(ctx, msg)
	if err != nil {
		n.logger.Error("notification to %s failed: %v", msg.To, err)
		return Outcome{Err: err}
	}
	n.logger.Info("notification sent to %s (message id %s)", msg.To, res.MessageID)
	return Outcome{Success: true, MessageID: res.MessageID}
}

// attachmentName mirrors the stored artifact filename. The bytes attached
// are always the ones passed in, never a fresh render.
func attachmentName(rec models.WorkflowRecord) string {
	return render.Filename(rec.ContractorName, rec.MonthLabel)
}

func approverBody(rec models.WorkflowRecord, wctx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hello %s,</p>", html.EscapeString(wctx.ApproverName))
	fmt.Fprintf(&b, "<p>your approval of invoice %s has been processed. The booking form is attached for your records.</p>",
		html.EscapeString(wctx.InvoiceID))
	b.WriteString(detailTable(rec))
	b.WriteString("<p>This message was generated automatically.</p>")
	return b.String()
}

func operationsBody(rec models.WorkflowRecord, wctx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>A contractor booking for invoice %s was approved by %s.</p>",
		html.EscapeString(wctx.InvoiceID), html.EscapeString(wctx.ApproverName))
	b.WriteString(detailTable(rec))
	b.WriteString("<p>The signed-off booking form is attached. Please file it with the invoice.</p>")
	return b.String()
}

// detailTable renders the shared label/value summary both notifications embed.
func detailTable(rec models.WorkflowRecord) string {
	rows := []struct{ label, value string }{
		{"Contractor", rec.ContractorName},
		{"Scope", rec.Scope},
		{"Amount", formatCurrency(rec.Amount)},
		{"Departments", rec.DepartmentFrom + " / " + rec.DepartmentTo},
		{"Days", fmt.Sprintf("%d", rec.Days)},
		{"Month", rec.MonthLabel},
		{"Day rate", formatCurrency(rec.DayRate)},
	}
	if rec.AdditionalCost != 0 {
		rows = append(rows,
			struct{ label, value string }{"Additional cost", formatCurrency(rec.AdditionalCost)},
			struct{ label, value string }{"Reason", rec.AdditionalCostReason},
		)
	}

	var b strings.Builder
	b.WriteString(`<table cellpadding="4" cellspacing="0" border="0">`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr><td><strong>%s</strong></td><td>%s</td></tr>`,
			html.EscapeString(r.label), html.EscapeString(r.value))
	}
	b.WriteString("</table>")
	return b.String()
}

func formatCurrency(amount float64) string {
	return fmt.Sprintf("%.2f EUR", amount)
}
