// Package models defines the domain models for the booking-form workflow service.
package models

import (
	"time"
)

// WorkflowStatus represents the lifecycle state of a booking workflow attempt.
type WorkflowStatus string

const (
	StatusPending    WorkflowStatus = "pending"
	StatusProcessing WorkflowStatus = "processing"
	StatusCompleted  WorkflowStatus = "completed"
	StatusFailed     WorkflowStatus = "failed"
)

// LedgerEntry is one recorded booking workflow attempt. At most one entry
// per idempotency key ever reaches completed; the unique constraint on the
// key plus the conditional pending->processing claim enforce this.
type LedgerEntry struct {
	ID               int64          `json:"id" db:"id"`
	InvoiceID        string         `json:"invoice_id" db:"invoice_id"`
	ActorID          string         `json:"actor_id" db:"actor_id"`
	TriggeredAt      time.Time      `json:"triggered_at" db:"triggered_at"`
	IdempotencyKey   string         `json:"idempotency_key" db:"idempotency_key"`
	Status           WorkflowStatus `json:"status" db:"status"`
	ClaimedAt        *time.Time     `json:"claimed_at,omitempty" db:"claimed_at"`
	ApproverSentAt   *time.Time     `json:"approver_sent_at,omitempty" db:"approver_sent_at"`
	OperationsSentAt *time.Time     `json:"operations_sent_at,omitempty" db:"operations_sent_at"`
	ErrorDetail      *string        `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// WorkflowRecord is the flat snapshot of everything the booking form and the
// notification mails show. It is assembled once at the orchestrator or
// sweeper boundary and never re-derived afterwards; retries reuse the stored
// rendered bytes, not a fresh projection.
type WorkflowRecord struct {
	ContractorName       string  `json:"contractor_name"`
	Scope                string  `json:"scope"`
	Amount               float64 `json:"amount"`
	DepartmentFrom       string  `json:"department_from"`
	DepartmentTo         string  `json:"department_to"`
	Days                 int     `json:"days"`
	MonthLabel           string  `json:"month_label"`
	DaysLabel            string  `json:"days_label"`
	DayRate              float64 `json:"day_rate"`
	AdditionalCost       float64 `json:"additional_cost"`
	AdditionalCostReason string  `json:"additional_cost_reason"`
	ApproverName         string  `json:"approver_name"`
	BookedBy             string  `json:"booked_by"`
	ApprovedAt           string  `json:"approved_at"`
}

// Invoice is the already-approved contractor invoice the workflow is
// triggered for. The approval state machine itself lives outside this
// service; by the time a booking workflow fires these fields are immutable.
type Invoice struct {
	ID                   string     `json:"id" db:"id"`
	ContractorName       string     `json:"contractor_name" db:"contractor_name"`
	Scope                string     `json:"scope" db:"scope"`
	Amount               float64    `json:"amount" db:"amount"`
	DepartmentFrom       string     `json:"department_from" db:"department_from"`
	DepartmentTo         string     `json:"department_to" db:"department_to"`
	Days                 int        `json:"days" db:"days"`
	MonthLabel           string     `json:"month_label" db:"month_label"`
	DaysLabel            string     `json:"days_label" db:"days_label"`
	DayRate              float64    `json:"day_rate" db:"day_rate"`
	AdditionalCost       float64    `json:"additional_cost" db:"additional_cost"`
	AdditionalCostReason string     `json:"additional_cost_reason" db:"additional_cost_reason"`
	BookedBy             string     `json:"booked_by" db:"booked_by"`
	ApprovedBy           string     `json:"approved_by" db:"approved_by"`
	ApprovedAt           *time.Time `json:"approved_at,omitempty" db:"approved_at"`
}

// User is a directory entry used to resolve an approver to a display name
// and contact address.
type User struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	Email       string `json:"email" db:"email"`
}
