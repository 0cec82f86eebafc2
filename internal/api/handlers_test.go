package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingflow/internal/artifact"
	"bookingflow/internal/logging"
	"bookingflow/internal/notify"
	"bookingflow/internal/repository"
	"bookingflow/internal/workflow"
	"bookingflow/pkg/models"
)

type staticDomain struct{ inv *models.Invoice }

func (d *staticDomain) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	if d.inv != nil && d.inv.ID == id {
		cp := *d.inv
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

type staticUsers struct{}

func (staticUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, DisplayName: "Dana Weber", Email: "dana.weber@example.com"}, nil
}

type okTransport struct{ count int }

func (t *okTransport) Send(_ context.Context, msg notify.Message) (notify.SendResult, error) {
	t.count++
	return notify.SendResult{MessageID: "ok"}, nil
}

func newTestServer(t *testing.T) (*Server, *repository.MemoryLedger, *okTransport) {
	t.Helper()
	return newTestServerWithConfig(t, workflow.DefaultConfig())
}

func newTestServerWithConfig(t *testing.T, cfg workflow.Config) (*Server, *repository.MemoryLedger, *okTransport) {
	t.Helper()
	logger := logging.NewLogger()
	ledger := repository.NewMemoryLedger()
	transport := &okTransport{}
	approvedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	domain := &staticDomain{inv: &models.Invoice{
		ID:             "INV-1",
		ContractorName: "Acme Ltd",
		Amount:         500,
		Days:           2,
		DayRate:        250,
		MonthLabel:     "March 2024",
		ApprovedBy:     "u1",
		ApprovedAt:     &approvedAt,
	}}
	notifier := notify.NewNotifier(transport, "ops@example.com", logger)
	service := workflow.NewService(ledger, domain, staticUsers{}, artifact.NewFSStore(t.TempDir()), notifier, cfg, logger)
	return NewServer(service, ledger), ledger, transport
}

func TestHandleHealth(t *testing.T) {
	server, ledger, _ := newTestServer(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, server.HandleHealth(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.True(t, status.LedgerAvailable)

	ledger.SetProvisioned(false)
	rec = httptest.NewRecorder()
	require.NoError(t, server.HandleHealth(e.NewContext(req, rec)))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status, "a missing ledger degrades, it does not fail health")
	assert.False(t, status.LedgerAvailable)
}

func TestTriggerBookingEndpoint(t *testing.T) {
	server, _, transport := newTestServer(t)
	e := echo.New()

	body := `{"actor_id":"u1","actor_name":"Dana Weber","actor_email":"dana.weber@example.com","triggered_at":"2024-03-01T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/INV-1/booking", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("INV-1")

	require.NoError(t, server.TriggerBooking(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, transport.count)

	var res workflow.TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Completed)
}

func TestTriggerBookingRenderFailureStaysOK(t *testing.T) {
	cfg := workflow.DefaultConfig()
	cfg.LogoPath = "/nonexistent/logo.png"
	server, ledger, transport := newTestServerWithConfig(t, cfg)
	e := echo.New()

	body := `{"actor_id":"u1","actor_name":"Dana Weber","actor_email":"dana.weber@example.com","triggered_at":"2024-03-01T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/INV-1/booking", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("INV-1")

	// A broken render is a downstream pipeline problem: the approval call
	// still gets 200 with the failure in the body, not an HTTP error.
	require.NoError(t, server.TriggerBooking(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, transport.count)

	var res workflow.TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Completed)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "render booking form")

	entry, err := ledger.Get(1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, entry.Status)
}

func TestSweepEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/sweep", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, server.SweepBookings(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res workflow.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 0, res.Processed)
}

func TestResendEndpointUnknownInvoice(t *testing.T) {
	server, _, _ := newTestServer(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/INV-NOPE/booking/resend", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("INV-NOPE")

	err := server.ResendBooking(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}
