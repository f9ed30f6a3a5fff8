package handler

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// TableResponse is the JSON shape of a table.
type TableResponse struct {
	ID        uint64 `json:"id"`
	Seats     int    `json:"seats"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ReservationResponse is the JSON shape of a reservation.  Times are RFC
// 3339 in UTC; EndsAt is exclusive.
type ReservationResponse struct {
	ID              uint64  `json:"id"`
	TableID         uint64  `json:"table_id"`
	Start           string  `json:"start"`
	EndsAt          string  `json:"ends_at"`
	DurationMinutes int     `json:"duration_minutes"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
}

type addTableRequest struct {
	Seats int `json:"seats"`
}

type bookRequest struct {
	Seats           int    `json:"seats"`
	Start           string `json:"start"`            // RFC 3339 or "2006-01-02 15:04" (UTC)
	DurationMinutes int    `json:"duration_minutes"` // optional, defaults to 60
}

func rfc3339(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func toTableResponse(t model.Table) TableResponse {
	return TableResponse{ID: t.ID, Seats: t.Seats, CreatedAt: rfc3339(t.CreatedAt)}
}

func toTableResponses(ts []model.Table) []TableResponse {
	out := make([]TableResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTableResponse(t))
	}
	return out
}

func toReservationResponse(r model.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:              r.ID,
		TableID:         r.TableID,
		Start:           rfc3339(r.ReservedAt),
		EndsAt:          rfc3339(r.EndsAt()),
		DurationMinutes: r.DurationMinutes,
		Status:          string(r.Status),
		CreatedAt:       rfc3339(r.CreatedAt),
	}
	if r.CancelledAt != nil {
		s := rfc3339(*r.CancelledAt)
		resp.CancelledAt = &s
	}
	return resp
}

func toReservationResponses(rs []model.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReservationResponse(r))
	}
	return out
}
