package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/router"
	"github.com/iliyamo/table-reservation/internal/scheduler"
)

func newServer(t *testing.T, opts ...scheduler.Option) *echo.Echo {
	t.Helper()
	s := scheduler.New(repository.NewMemoryStore(), opts...)
	h := handler.NewReservationHandler(s, 100*time.Millisecond, zerolog.Nop())
	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterReservations(e, h, router.Middleware{})
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	e := newServer(t)
	rec := call(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestBookingFlowOverHTTP(t *testing.T) {
	e := newServer(t)

	rec := call(t, e, http.MethodPost, "/v1/tables", `{"seats":4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tbl := decode[handler.TableResponse](t, rec)
	assert.Equal(t, uint64(1), tbl.ID)
	assert.Equal(t, 4, tbl.Seats)
	_, err := time.Parse(time.RFC3339, tbl.CreatedAt)
	assert.NoError(t, err, "created_at comes from the stored table")

	rec = call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17 18:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[handler.ReservationResponse](t, rec)
	assert.Equal(t, uint64(1), first.TableID)
	assert.Equal(t, "2025-04-17T18:00:00Z", first.Start)
	assert.Equal(t, "2025-04-17T19:00:00Z", first.EndsAt)
	assert.Equal(t, 60, first.DurationMinutes)
	assert.Equal(t, "ACTIVE", first.Status)

	rec = call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17T18:00:00Z"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17 19:00"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, e, http.MethodPost, "/v1/reservations", `{"seats":4,"start":"2025-04-17 19:00"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, e, http.MethodGet, "/v1/tables/1/reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		TableID      uint64                        `json:"table_id"`
		Reservations []handler.ReservationResponse `json:"reservations"`
	}](t, rec)
	assert.Len(t, list.Reservations, 2)

	rec = call(t, e, http.MethodDelete, "/v1/reservations/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, e, http.MethodGet, "/v1/reservations/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[handler.ReservationResponse](t, rec)
	assert.Equal(t, "CANCELLED", got.Status)
	assert.NotNil(t, got.CancelledAt)

	rec = call(t, e, http.MethodDelete, "/v1/reservations/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17 18:00"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, "cancelled slot is bookable again")
}

func TestBookingValidationOverHTTP(t *testing.T) {
	e := newServer(t)
	require.Equal(t, http.StatusCreated, call(t, e, http.MethodPost, "/v1/tables", `{"seats":4}`).Code)

	cases := []struct {
		name, body string
	}{
		{"malformed timestamp", `{"seats":2,"start":"17.04.2025 18:00"}`},
		{"missing timestamp", `{"seats":2}`},
		{"zero seats", `{"seats":0,"start":"2025-04-17 18:00"}`},
		{"negative duration", `{"seats":2,"start":"2025-04-17 18:00","duration_minutes":-5}`},
		{"duration over a day", `{"seats":2,"start":"2025-04-17 18:00","duration_minutes":1441}`},
		{"overflowing duration", `{"seats":2,"start":"2025-04-17 18:00","duration_minutes":200000000}`},
		{"not json", `{seats`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, e, http.MethodPost, "/v1/reservations", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodPost, "/v1/tables", `{"seats":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodGet, "/v1/reservations/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodDelete, "/v1/reservations/0", "").Code)
	assert.Equal(t, http.StatusNotFound, call(t, e, http.MethodGet, "/v1/reservations/99", "").Code)
	assert.Equal(t, http.StatusNotFound, call(t, e, http.MethodGet, "/v1/tables/9/reservations", "").Code)
}

func TestCustomDurationOverHTTP(t *testing.T) {
	e := newServer(t)
	require.Equal(t, http.StatusCreated, call(t, e, http.MethodPost, "/v1/tables", `{"seats":2}`).Code)

	rec := call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17 18:00","duration_minutes":120}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2025-04-17T20:00:00Z", decode[handler.ReservationResponse](t, rec).EndsAt)

	rec = call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17 19:30"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAvailabilityOverHTTP(t *testing.T) {
	e := newServer(t)
	for _, seats := range []string{`{"seats":2}`, `{"seats":4}`} {
		require.Equal(t, http.StatusCreated, call(t, e, http.MethodPost, "/v1/tables", seats).Code)
	}
	require.Equal(t, http.StatusCreated,
		call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17 18:00"}`).Code)

	rec := call(t, e, http.MethodGet, "/v1/availability?seats=2&start=2025-04-17T18:30:00Z&duration=30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Tables []handler.TableResponse `json:"tables"`
	}](t, rec)
	require.Len(t, body.Tables, 1)
	assert.Equal(t, uint64(2), body.Tables[0].ID)

	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodGet, "/v1/availability?seats=x&start=2025-04-17T18:30:00Z", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodGet, "/v1/availability?seats=2", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodGet, "/v1/availability?seats=2&start=2025-04-17T18:30:00Z&duration=long", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodGet, "/v1/availability?seats=2&start=2025-04-17T18:30:00Z&duration=200000000", "").Code)
}

func TestListTablesOverHTTP(t *testing.T) {
	e := newServer(t)
	call(t, e, http.MethodPost, "/v1/tables", `{"seats":6}`)
	call(t, e, http.MethodPost, "/v1/tables", `{"seats":2}`)

	rec := call(t, e, http.MethodGet, "/v1/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Tables []handler.TableResponse `json:"tables"`
	}](t, rec)
	require.Len(t, body.Tables, 2)
	assert.Equal(t, 6, body.Tables[0].Seats)
	assert.NotEmpty(t, body.Tables[0].CreatedAt)
}

// stuckLocker never grants the lock; Acquire returns once ctx is done.
type stuckLocker struct{}

func (stuckLocker) Acquire(ctx context.Context, _ uint64) (func(context.Context) error, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBusyTableTimesOut(t *testing.T) {
	e := newServer(t, scheduler.WithLocker(stuckLocker{}))
	require.Equal(t, http.StatusCreated, call(t, e, http.MethodPost, "/v1/tables", `{"seats":4}`).Code)

	rec := call(t, e, http.MethodPost, "/v1/reservations", `{"seats":2,"start":"2025-04-17 18:00"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestNewReservationHandlerPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { handler.NewReservationHandler(nil, time.Second, zerolog.Nop()) })
}
