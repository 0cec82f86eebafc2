package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingflow/internal/artifact"
	"bookingflow/internal/notify"
	"bookingflow/internal/repository"
	"bookingflow/pkg/models"
)

// SweepResult aggregates one sweeper pass. Callers decide whether a
// non-empty error list warrants alerting.
type SweepResult struct {
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`
}

// Sweep finds stale pending attempts (and processing rows whose claimer
// looks crashed), claims each one, and finishes it. Safe to run from
// multiple processes at once: the conditional claim is the only mutual
// exclusion and losing it just means skipping the row.
func (s *Service) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	pending, err := s.ledger.FindStalePending(ctx, s.cfg.SweepGrace, s.cfg.SweepBatch)
	if err != nil {
		if errors.Is(err, repository.ErrNotProvisioned) {
			s.logger.Warn("ledger not provisioned, nothing to sweep")
			return res
		}
		res.Errors = append(res.Errors, fmt.Sprintf("find stale pending: %v", err))
		return res
	}

	for _, entry := range pending {
		claimed, err := s.ledger.Claim(ctx, entry.ID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("claim entry %d: %v", entry.ID, err))
			continue
		}
		if !claimed {
			// Someone else has it. Not an error.
			continue
		}
		s.processClaimed(ctx, entry, &res)
	}

	stuck, err := s.ledger.FindStaleProcessing(ctx, s.cfg.ReclaimAge, s.cfg.SweepBatch)
	if err != nil && !errors.Is(err, repository.ErrNotProvisioned) {
		res.Errors = append(res.Errors, fmt.Sprintf("find stale processing: %v", err))
	}
	for _, entry := range stuck {
		claimed, err := s.ledger.Reclaim(ctx, entry.ID, s.cfg.ReclaimAge)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("reclaim entry %d: %v", entry.ID, err))
			continue
		}
		if !claimed {
			continue
		}
		s.logger.Warn("reclaimed stuck processing entry %d (invoice %s)", entry.ID, entry.InvoiceID)
		s.processClaimed(ctx, entry, &res)
	}

	s.metrics.recordSwept(ctx, int64(res.Processed))
	return res
}

// RunSweepLoop invokes Sweep every interval until ctx is cancelled.
func (s *Service) RunSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if res := s.Sweep(ctx); res.Processed > 0 || len(res.Errors) > 0 {
				s.logger.Info("sweep pass: %d processed, %d errors", res.Processed, len(res.Errors))
			}
		}
	}
}

// processClaimed finishes one claimed attempt: it rebuilds the record from
// current domain data but fetches the document bytes from the artifact
// store. It never re-renders; a missing artifact fails the row rather than
// risking a document that diverges from what was already referenced.
func (s *Service) processClaimed(ctx context.Context, entry *models.LedgerEntry, res *SweepResult) {
	res.Processed++

	fail := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		res.Errors = append(res.Errors, fmt.Sprintf("entry %d: %s", entry.ID, msg))
		s.finalize(ctx, entry.ID, nil, nil, []string{msg})
		s.metrics.recordOutcome(ctx, false)
	}

	inv, err := s.domain.GetInvoice(ctx, entry.InvoiceID)
	if err != nil {
		fail("load invoice %s: %v", entry.InvoiceID, err)
		return
	}

	wctx := notify.Context{InvoiceID: entry.InvoiceID}
	if user, err := s.users.GetUser(ctx, entry.ActorID); err == nil {
		wctx.ApproverName = user.DisplayName
		wctx.ApproverEmail = user.Email
	} else {
		// The approver send will fail fast on the empty address; the
		// operations send still goes out.
		s.logger.Warn("resolve approver %s: %v", entry.ActorID, err)
	}

	document, err := s.artifacts.Get(ctx, artifactPath(inv))
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			fail("stored booking form missing at %s", artifactPath(inv))
		} else {
			fail("fetch booking form: %v", err)
		}
		return
	}

	rec := buildRecord(inv, wctx.ApproverName, entry.TriggeredAt)
	approverAt, operationsAt, sendErrs := s.sendBoth(ctx, rec, wctx, document, entry.IdempotencyKey)
	s.finalize(ctx, entry.ID, approverAt, operationsAt, sendErrs)
	s.metrics.recordOutcome(ctx, len(sendErrs) == 0)

	for _, e := range sendErrs {
		res.Errors = append(res.Errors, fmt.Sprintf("entry %d: %s", entry.ID, e))
	}
}
