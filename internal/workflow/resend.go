package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookingflow/internal/notify"
	"bookingflow/internal/render"
	"bookingflow/internal/repository"
	"bookingflow/pkg/models"
)

// Resend is the operator-triggered path. Unlike the sweeper it renders a
// fresh document (an explicit human action, not an automatic retry) under a
// freshly minted key that can never collide with the automatic key scheme,
// and it completes any matching pending ledger row so the sweeper does not
// fire for it again later.
func (s *Service) Resend(ctx context.Context, invoiceID string) error {
	inv, err := s.domain.GetInvoice(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("load invoice %s: %w", invoiceID, err)
	}
	if inv.ApprovedAt == nil {
		return fmt.Errorf("invoice %s has no approval record", invoiceID)
	}

	wctx := notify.Context{InvoiceID: invoiceID}
	if user, err := s.users.GetUser(ctx, inv.ApprovedBy); err == nil {
		wctx.ApproverName = user.DisplayName
		wctx.ApproverEmail = user.Email
	} else {
		s.logger.Warn("resolve approver %s: %v", inv.ApprovedBy, err)
	}

	rec := buildRecord(inv, wctx.ApproverName, *inv.ApprovedAt)
	document, err := render.BookingForm(rec, render.Options{LogoPath: s.cfg.LogoPath})
	if err != nil {
		return fmt.Errorf("render booking form for %s: %w", invoiceID, err)
	}

	if putErr := s.artifacts.Put(ctx, artifactPath(inv), document); putErr != nil {
		s.logger.Error("persist resent booking form for %s: %v", invoiceID, putErr)
	}

	key := fmt.Sprintf("%s_resend_%s", invoiceID, uuid.NewString())
	approverAt, operationsAt, sendErrs := s.sendBoth(ctx, rec, wctx, document, key)

	// Close out any pending automatic attempt for the same invoice so the
	// sweeper does not double-send.
	if entry, err := s.ledger.FindPendingByInvoice(ctx, invoiceID); err == nil {
		detail := fmt.Sprintf("superseded by manual resend at %s", time.Now().UTC().Format(time.RFC3339))
		if updErr := s.ledger.Update(ctx, entry.ID, repository.LedgerUpdate{
			Status:           models.StatusCompleted,
			ApproverSentAt:   approverAt,
			OperationsSentAt: operationsAt,
			ErrorDetail:      &detail,
		}); updErr != nil {
			s.logger.Error("complete superseded entry %d: %v", entry.ID, updErr)
		}
	} else if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrNotProvisioned) {
		s.logger.Warn("find pending entry for %s: %v", invoiceID, err)
	}

	s.metrics.recordOutcome(ctx, len(sendErrs) == 0)
	if len(sendErrs) > 0 {
		return fmt.Errorf("resend for %s incomplete: %s", invoiceID, strings.Join(sendErrs, "; "))
	}
	return nil
}
