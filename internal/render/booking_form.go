// Package render produces the booking-form PDF. Rendering is a pure
// function of the workflow record and options: no network access, no state,
// and the same inputs always produce the same bytes. The sweeper depends on
// that determinism to reuse the stored artifact instead of re-rendering.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"bookingflow/pkg/models"
)

// Options controls rendering extras.
type Options struct {
	// LogoPath is an optional local branding image placed at the top of the
	// form. Empty means no logo.
	LogoPath string
}

// fixedCreationDate pins the PDF metadata timestamp so two renders of the
// same record are byte-identical.
var fixedCreationDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	pageMargin = 18.0
	labelWidth = 62.0
)

// BookingForm renders the single-page booking form for rec.
func BookingForm(rec models.WorkflowRecord, opts Options) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(fixedCreationDate)
	pdf.SetCatalogSort(true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()

	if opts.LogoPath != "" {
		pdf.ImageOptions(opts.LogoPath, pageMargin, pageMargin, 42, 0, false,
			fpdf.ImageOptions{ReadDpi: true}, 0, "")
		pdf.Ln(24)
	}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Contractor Booking Form")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 10)
	row := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(labelWidth, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 7, value, "", "L", false)
	}

	row("Contractor", rec.ContractorName)
	row("Scope of work", rec.Scope)
	row("Amount", formatCurrency(rec.Amount))
	row("Department (from)", rec.DepartmentFrom)
	row("Department (to)", rec.DepartmentTo)
	row("Days", fmt.Sprintf("%d", rec.Days))
	row("Month", rec.MonthLabel)
	row("Billed days", rec.DaysLabel)
	row("Day rate", formatCurrency(rec.DayRate))
	if rec.AdditionalCost != 0 {
		row("Additional cost", formatCurrency(rec.AdditionalCost))
		row("Reason", rec.AdditionalCostReason)
	}
	pdf.Ln(6)

	// Internal-use block, visually separated from the public fields.
	pdf.SetFillColor(235, 235, 235)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 7, "Internal use only", "", 1, "L", true, 0, "")
	internal := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(labelWidth, 7, label, "", 0, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, value, "", 1, "L", true, 0, "")
	}
	internal("Booked by", rec.BookedBy)
	internal("Approved by", rec.ApproverName)
	internal("Approved at", rec.ApprovedAt)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 6, "Billing address")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5.5, billingAddress, "", "L", false)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(0, 4.5, legalNotice, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render booking form: %w", err)
	}
	return buf.Bytes(), nil
}

const billingAddress = "Accounts Payable\n" +
	"Meridian Operations GmbH\n" +
	"Lindenstrasse 14\n" +
	"60325 Frankfurt am Main"

const legalNotice = "This booking confirmation is generated automatically upon invoice " +
	"approval and is valid without signature. It documents the internal booking of " +
	"external contractor services for the stated period. Retain with the corresponding " +
	"invoice for audit purposes."

// formatCurrency renders a monetary amount as "1,234.50 EUR".
func formatCurrency(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%.2f", amount)
	intPart, fracPart, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + fracPart + " EUR"
	if neg {
		out = "-" + out
	}
	return out
}
