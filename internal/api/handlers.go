// Package api contains the HTTP handlers for the booking workflow service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"bookingflow/internal/repository"
	"bookingflow/internal/workflow"
)

// Server holds the dependencies for the API server.
type Server struct {
	Service *workflow.Service
	Ledger  repository.BookingLedger
}

// NewServer creates a new Server.
func NewServer(service *workflow.Service, ledger repository.BookingLedger) *Server {
	return &Server{Service: service, Ledger: ledger}
}

// RegisterRoutes mounts all handlers on the given group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/invoices/:id/booking", s.TriggerBooking)
	g.POST("/invoices/:id/booking/resend", s.ResendBooking)
	g.POST("/bookings/sweep", s.SweepBookings)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	Service         string    `json:"service"`
	LedgerAvailable bool      `json:"ledger_available"`
}

// HandleHealth returns basic health status. A missing ledger table is
// reported but does not fail the check; the pipeline degrades rather than
// stops.
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:          "ok",
		Timestamp:       time.Now(),
		Service:         "bookingflow",
		LedgerAvailable: s.Ledger.Available(c.Request().Context()),
	}
	return c.JSON(http.StatusOK, status)
}

// TriggerRequest is the body of a booking trigger call.
type TriggerRequest struct {
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	ActorEmail  string    `json:"actor_email"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// TriggerBooking runs the immediate trigger for an approved invoice.
// (POST /api/v1/invoices/:id/booking)
func (s *Server) TriggerBooking(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.TriggeredAt.IsZero() {
		req.TriggeredAt = time.Now()
	}

	res, err := s.Service.Trigger(c.Request().Context(), workflow.TriggerInput{
		InvoiceID:   c.Param("id"),
		ActorID:     req.ActorID,
		ActorName:   req.ActorName,
		ActorEmail:  req.ActorEmail,
		TriggeredAt: req.TriggeredAt,
	})
	if err != nil && !res.Completed && len(res.Errors) == 0 {
		// Fatal before anything was attempted (e.g. invoice not found).
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Partial or total send failures are reported in the body, not as an
	// HTTP error: the approval that triggered this must not roll back.
	return c.JSON(http.StatusOK, res)
}

// ResendBooking regenerates and resends the booking for an invoice.
// (POST /api/v1/invoices/:id/booking/resend)
func (s *Server) ResendBooking(c echo.Context) error {
	type resendResponse struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}

	err := s.Service.Resend(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return c.JSON(http.StatusOK, resendResponse{OK: false, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, resendResponse{OK: true})
}

// SweepBookings runs one sweeper pass. Intended to be hit by an external
// scheduler; also runs on the in-process ticker.
// (POST /api/v1/bookings/sweep)
func (s *Server) SweepBookings(c echo.Context) error {
	res := s.Service.Sweep(c.Request().Context())
	return c.JSON(http.StatusOK, res)
}
