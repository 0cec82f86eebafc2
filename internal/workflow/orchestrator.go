package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookingflow/internal/notify"
	"bookingflow/internal/render"
	"bookingflow/internal/repository"
	"bookingflow/pkg/models"
)

// TriggerInput is everything the approval event hands to the immediate
// trigger.
type TriggerInput struct {
	InvoiceID   string
	ActorID     string
	ActorName   string
	ActorEmail  string
	TriggeredAt time.Time
}

// TriggerResult is the outcome of one immediate-trigger run.
type TriggerResult struct {
	// Completed is true only if both notifications were delivered.
	Completed bool
	// Skipped is true when the workflow was already handled for this key.
	Skipped bool
	// Degraded is true when the run proceeded without a ledger row.
	Degraded bool
	// Errors collects the accumulated non-fatal failures.
	Errors []string
}

// Trigger runs the booking workflow inline with an invoice approval. The
// approval itself must never fail because of this pipeline: domain-load
// failures abort before anything is written, but storage and notification
// failures are accumulated and recorded rather than propagated as a
// rollback.
func (s *Service) Trigger(ctx context.Context, in TriggerInput) (TriggerResult, error) {
	var res TriggerResult

	// Coarse pre-check: any completed attempt for this invoice means the
	// booking was already handled, regardless of key.
	done, err := s.ledger.HasCompletedForInvoice(ctx, in.InvoiceID)
	if err != nil {
		s.logger.Warn("ledger unavailable for pre-check, continuing degraded: %v", err)
		res.Degraded = true
	} else if done {
		s.logger.Info("booking for invoice %s already completed, skipping", in.InvoiceID)
		res.Skipped = true
		return res, nil
	}

	key := IdempotencyKey(in.InvoiceID, in.TriggeredAt)
	if !res.Degraded {
		entry, err := s.ledger.CheckCompleted(ctx, key)
		if err != nil {
			s.logger.Warn("ledger unavailable for key check, continuing degraded: %v", err)
			res.Degraded = true
		} else if entry != nil {
			s.logger.Info("attempt %s already completed, skipping", key)
			res.Skipped = true
			return res, nil
		}
	}

	// Domain load is the one fatal step: without the invoice there is
	// nothing to render or record.
	inv, err := s.domain.GetInvoice(ctx, in.InvoiceID)
	if err != nil {
		return res, fmt.Errorf("load invoice %s: %w", in.InvoiceID, err)
	}
	if inv.ApprovedAt == nil {
		return res, fmt.Errorf("invoice %s has no approval record", in.InvoiceID)
	}

	var ledgerID int64
	if !res.Degraded {
		ledgerID, err = s.ledger.Create(ctx, in.InvoiceID, in.ActorID, in.TriggeredAt, key)
		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			s.logger.Info("attempt %s already in flight, skipping", key)
			res.Skipped = true
			return res, nil
		case err != nil:
			s.logger.Warn("ledger unavailable for create, continuing degraded: %v", err)
			res.Degraded = true
		}
	}

	rec := buildRecord(inv, in.ActorName, in.TriggeredAt)
	wctx := notify.Context{
		InvoiceID:     in.InvoiceID,
		ApproverName:  in.ActorName,
		ApproverEmail: in.ActorEmail,
	}

	document, err := render.BookingForm(rec, render.Options{LogoPath: s.cfg.LogoPath})
	if err != nil {
		// Past this point the failure belongs to the pipeline, not the
		// approval: record it on the ledger row (the manual resend path
		// recovers it) and report it in the result rather than as a
		// pre-attempt fatal.
		err = fmt.Errorf("render booking form for %s: %w", in.InvoiceID, err)
		res.Errors = append(res.Errors, err.Error())
		if ledgerID != 0 {
			s.finalize(ctx, ledgerID, nil, nil, res.Errors)
		}
		s.metrics.recordOutcome(ctx, false)
		return res, err
	}

	var errs []string
	if putErr := s.artifacts.Put(ctx, artifactPath(inv), document); putErr != nil {
		// The in-memory bytes still get sent; only later retries lose the
		// stored copy.
		s.logger.Error("persist booking form for %s: %v", in.InvoiceID, putErr)
		errs = append(errs, fmt.Sprintf("persist artifact: %v", putErr))
	}

	approverAt, operationsAt, sendErrs := s.sendBoth(ctx, rec, wctx, document, key)
	errs = append(errs, sendErrs...)
	res.Completed = len(sendErrs) == 0
	res.Errors = errs

	if ledgerID != 0 {
		s.finalize(ctx, ledgerID, approverAt, operationsAt, errs)
	}
	s.metrics.recordOutcome(ctx, res.Completed)

	if !res.Completed {
		return res, fmt.Errorf("booking workflow for %s incomplete: %s", in.InvoiceID, strings.Join(errs, "; "))
	}
	return res, nil
}

// sendBoth attempts both notifications independently and returns the
// per-recipient sent timestamps plus any accumulated failure messages.
func (s *Service) sendBoth(ctx context.Context, rec models.WorkflowRecord, wctx notify.Context, document []byte, key string) (approverAt, operationsAt *time.Time, errs []string) {
	var sent int64

	if out := s.notifier.SendApprover(ctx, rec, wctx, document, key); out.Success {
		now := time.Now().UTC()
		approverAt = &now
		sent++
	} else {
		errs = append(errs, fmt.Sprintf("approver notification: %v", out.Err))
	}

	if out := s.notifier.SendOperations(ctx, rec, wctx, document, key); out.Success {
		now := time.Now().UTC()
		operationsAt = &now
		sent++
	} else {
		errs = append(errs, fmt.Sprintf("operations notification: %v", out.Err))
	}

	s.metrics.recordSent(ctx, sent)
	return approverAt, operationsAt, errs
}

// finalize writes the terminal ledger state for an attempt. Failures here
// are logged only; the sends have already happened and must not be undone.
func (s *Service) finalize(ctx context.Context, ledgerID int64, approverAt, operationsAt *time.Time, errs []string) {
	upd := repository.LedgerUpdate{
		Status:           models.StatusCompleted,
		ApproverSentAt:   approverAt,
		OperationsSentAt: operationsAt,
	}
	if len(errs) > 0 {
		upd.Status = models.StatusFailed
		detail := strings.Join(errs, "; ")
		upd.ErrorDetail = &detail
	}
	if err := s.ledger.Update(ctx, ledgerID, upd); err != nil {
		s.logger.Error("finalize ledger entry %d: %v", ledgerID, err)
	}
}
