// Package workflow implements the approval-triggered booking pipeline: the
// immediate trigger that runs inline with an invoice approval, the periodic
// sweeper that finishes stale attempts, and the operator resend path.
package workflow

import (
	"time"

	"bookingflow/internal/artifact"
	"bookingflow/internal/logging"
	"bookingflow/internal/notify"
	"bookingflow/internal/render"
	"bookingflow/internal/repository"
	"bookingflow/pkg/models"
)

// Config holds the tunables of the pipeline.
type Config struct {
	// SweepGrace is how old a pending ledger row must be before the sweeper
	// picks it up. Younger rows are assumed to still be in the hands of the
	// immediate trigger.
	SweepGrace time.Duration
	// SweepBatch caps how many rows one sweep pass processes.
	SweepBatch int
	// ReclaimAge is how long a row may sit in processing before the sweeper
	// treats its claimer as crashed and takes it over.
	ReclaimAge time.Duration
	// LogoPath is the optional branding image for rendered forms.
	LogoPath string
}

// DefaultConfig returns the standard pipeline tunables.
func DefaultConfig() Config {
	return Config{
		SweepGrace: 30 * time.Second,
		SweepBatch: 25,
		ReclaimAge: 15 * time.Minute,
	}
}

// Service wires the ledger, domain data, artifact storage and notification
// senders into the three pipeline entry points. It holds no state of its
// own; all coordination lives in the durable ledger.
type Service struct {
	ledger    repository.BookingLedger
	domain    repository.DomainProvider
	users     repository.UserDirectory
	artifacts artifact.Store
	notifier  *notify.Notifier
	cfg       Config
	logger    *logging.Logger
	metrics   *metrics
}

// NewService creates a new Service.
func NewService(
	ledger repository.BookingLedger,
	domain repository.DomainProvider,
	users repository.UserDirectory,
	artifacts artifact.Store,
	notifier *notify.Notifier,
	cfg Config,
	logger *logging.Logger,
) *Service {
	return &Service{
		ledger:    ledger,
		domain:    domain,
		users:     users,
		artifacts: artifacts,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		metrics:   newMetrics(),
	}
}

// IdempotencyKey derives the deterministic attempt key from the invoice id
// and the approval timestamp, e.g. "INV-1_2024-03-01T10:00:00.000Z".
func IdempotencyKey(invoiceID string, triggeredAt time.Time) string {
	return invoiceID + "_" + triggeredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// buildRecord projects the invoice into the flat workflow record. The
// record is assembled exactly once per attempt; retries reuse the stored
// rendered bytes, never a re-projection.
func buildRecord(inv *models.Invoice, approverName string, approvedAt time.Time) models.WorkflowRecord {
	return models.WorkflowRecord{
		ContractorName:       inv.ContractorName,
		Scope:                inv.Scope,
		Amount:               inv.Amount,
		DepartmentFrom:       inv.DepartmentFrom,
		DepartmentTo:         inv.DepartmentTo,
		Days:                 inv.Days,
		MonthLabel:           inv.MonthLabel,
		DaysLabel:            inv.DaysLabel,
		DayRate:              inv.DayRate,
		AdditionalCost:       inv.AdditionalCost,
		AdditionalCostReason: inv.AdditionalCostReason,
		ApproverName:         approverName,
		BookedBy:             inv.BookedBy,
		ApprovedAt:           approvedAt.UTC().Format("02 Jan 2006 15:04 MST"),
	}
}

// artifactPath is the deterministic storage location of an invoice's form.
func artifactPath(inv *models.Invoice) string {
	return artifact.BookingFormPath(inv.ID, render.Filename(inv.ContractorName, inv.MonthLabel))
}
