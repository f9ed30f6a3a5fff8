package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/table-reservation/internal/handler" // handlers that adapt HTTP to the scheduler
)

// RegisterRoutes registers routes that sit outside the versioned API.
// Currently it exposes only a health check for load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// Middleware collects the optional per-group middleware.  A nil entry is
// skipped, so callers can pass only what is configured.
type Middleware struct {
	RateLimit echo.MiddlewareFunc // applied to every /v1 route
	Cache     echo.MiddlewareFunc // applied to the /v1/tables group only
}

// RegisterReservations mounts the table and reservation API under /v1.
//
// The tables group is the only cached one: its reads change only when a
// table is added through the same group, which purges the cache.
// Reservation reads and availability are never cached because bookings
// change them continuously.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, mw Middleware) {
	v1 := e.Group("/v1", nonNil(mw.RateLimit)...)

	tables := v1.Group("/tables", nonNil(mw.Cache)...)
	tables.POST("", h.AddTable)
	tables.GET("", h.ListTables)

	// Reservations of a table change with every booking, so this route
	// lives outside the cached group even though it shares the prefix.
	v1.GET("/tables/:id/reservations", h.ListTableReservations)

	v1.GET("/availability", h.Availability)

	v1.POST("/reservations", h.Book)
	v1.GET("/reservations/:id", h.GetReservation)
	v1.DELETE("/reservations/:id", h.Cancel)
}

func nonNil(ms ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := ms[:0]
	for _, m := range ms {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
