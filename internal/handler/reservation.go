package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/scheduler"
)

// ReservationHandler exposes the scheduler over HTTP.  Every mutating call
// runs under a deadline of Timeout so a request stuck behind a busy table
// gives up with 503 instead of hanging.
type ReservationHandler struct {
	Sched   *scheduler.Scheduler
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewReservationHandler panics on a nil scheduler, like the other handler
// constructors.
func NewReservationHandler(s *scheduler.Scheduler, timeout time.Duration, log zerolog.Logger) *ReservationHandler {
	if s == nil {
		panic("nil scheduler passed to NewReservationHandler")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ReservationHandler{Sched: s, Timeout: timeout, Log: log}
}

// AddTable handles POST /v1/tables with body {"seats": 4}.
func (h *ReservationHandler) AddTable(c echo.Context) error {
	var body addTableRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := h.deadline(c)
	defer cancel()

	t, err := h.Sched.CreateTable(ctx, body.Seats)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toTableResponse(t))
}

// ListTables handles GET /v1/tables.
func (h *ReservationHandler) ListTables(c echo.Context) error {
	tables, err := h.Sched.Tables(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tables": toTableResponses(tables)})
}

// ListTableReservations handles GET /v1/tables/:id/reservations and
// returns the table's active reservations.
func (h *ReservationHandler) ListTableReservations(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid table id"})
	}
	list, err := h.Sched.Reservations(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"table_id": id, "reservations": toReservationResponses(list)})
}

// Availability handles GET /v1/availability?seats=2&start=...&duration=90
// and lists the tables that could take the party, first-fit order.
func (h *ReservationHandler) Availability(c echo.Context) error {
	req, err := bookingFromQuery(c)
	if err != nil {
		return h.fail(c, err)
	}
	tables, err := h.Sched.Availability(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tables": toTableResponses(tables)})
}

// Book handles POST /v1/reservations.  201 carries the new reservation;
// 409 means no table is free for that party and time.
func (h *ReservationHandler) Book(c echo.Context) error {
	var body bookRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	start, err := model.ParseTime(body.Start)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.deadline(c)
	defer cancel()

	r, err := h.Sched.BookTable(ctx, scheduler.BookingRequest{
		Seats:           body.Seats,
		Start:           start,
		DurationMinutes: body.DurationMinutes,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// GetReservation handles GET /v1/reservations/:id.
func (h *ReservationHandler) GetReservation(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	r, err := h.Sched.Reservation(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Cancel handles DELETE /v1/reservations/:id and answers 204.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := h.deadline(c)
	defer cancel()

	if err := h.Sched.CancelReservation(ctx, id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ReservationHandler) deadline(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

// fail maps scheduler errors to status codes.  Only ErrConflict and
// unexpected errors are logged here; the scheduler already logged the
// details of a conflict.
func (h *ReservationHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, scheduler.ErrNoAvailability):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no table available for the requested party and time"})
	case errors.Is(err, scheduler.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, scheduler.ErrTimeout):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "table is busy, try again"})
	case errors.Is(err, scheduler.ErrConflict):
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("reservation conflict reached the HTTP layer")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal conflict"})
	default:
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id > 0
}

// bookingFromQuery reads seats, start and the optional duration from the
// query string.  Non-numeric values are reported as invalid arguments.
func bookingFromQuery(c echo.Context) (scheduler.BookingRequest, error) {
	var req scheduler.BookingRequest
	seats, err := strconv.Atoi(c.QueryParam("seats"))
	if err != nil {
		return req, fmt.Errorf("%w: seats must be an integer", scheduler.ErrInvalidArgument)
	}
	start, err := model.ParseTime(c.QueryParam("start"))
	if err != nil {
		return req, err
	}
	req.Seats = seats
	req.Start = start
	if d := c.QueryParam("duration"); d != "" {
		if req.DurationMinutes, err = strconv.Atoi(d); err != nil {
			return req, fmt.Errorf("%w: duration must be an integer", scheduler.ErrInvalidArgument)
		}
	}
	return req, nil
}
