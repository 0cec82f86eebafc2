package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingflow/pkg/models"
)

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

func TestBookingFormDeterministic(t *testing.T) {
	rec := testRecord()

	first, err := BookingForm(rec, Options{})
	require.NoError(t, err)
	second, err := BookingForm(rec, Options{})
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "two renders of the same record must be byte-identical")
}

func TestBookingFormProducesPDF(t *testing.T) {
	doc, err := BookingForm(testRecord(), Options{})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")), "output must start with a PDF header")
	assert.Greater(t, len(doc), 1000)
}

func TestBookingFormAdditionalCostSection(t *testing.T) {
	rec := testRecord()

	plain, err := BookingForm(rec, Options{})
	require.NoError(t, err)

	rec.AdditionalCost = 120.5
	rec.AdditionalCostReason = "Travel expenses"
	withExtra, err := BookingForm(rec, Options{})
	require.NoError(t, err)

	assert.False(t, bytes.Equal(plain, withExtra), "additional cost must change the rendered document")
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		period   string
		expected string
	}{
		{"Acme Ltd", "March 2024", "Acme_Ltd_March_2024.pdf"},
		{"Müller & Söhne GmbH", "Mai 2024", "Mller__Shne_GmbH_Mai_2024.pdf"},
		{"", "", "Unknown.pdf"},
		{"///", "???", "Unknown.pdf"},
		{"trailing ", "", "trailing.pdf"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, Filename(tc.name, tc.period), "name=%q period=%q", tc.name, tc.period)
	}
}

func TestFilenameTruncated(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "abcde"
	}
	got := Filename(long, "March")
	assert.LessOrEqual(t, len(got), maxFilenameLen+len(".pdf"))
}

func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "500.00 EUR", formatCurrency(500))
	assert.Equal(t, "1,234.50 EUR", formatCurrency(1234.5))
	assert.Equal(t, "1,000,000.00 EUR", formatCurrency(1e6))
	assert.Equal(t, "-42.00 EUR", formatCurrency(-42))
	assert.Equal(t, "0.00 EUR", formatCurrency(0))
}
