// Package queue defines the reservation events exchanged over the message
// broker and the consumer that journals them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/table-reservation/internal/model"
)

// Event types carried in ReservationEvent.Type.
const (
	EventBooked    = "reservation.booked"
	EventCancelled = "reservation.cancelled"
)

// ReservationEvent is published after a booking is committed or a
// reservation is cancelled.  It carries enough for downstream consumers to
// log or notify without reading the primary database.
type ReservationEvent struct {
	EventID         string `json:"event_id"`
	Type            string `json:"type"`
	ReservationID   uint64 `json:"reservation_id"`
	TableID         uint64 `json:"table_id"`
	Seats           int    `json:"seats,omitempty"`
	ReservedAt      string `json:"reserved_at"`
	DurationMinutes int    `json:"duration_minutes"`
	OccurredAt      string `json:"occurred_at"`
}

// NewReservationEvent builds an event with a fresh id.  seats is the party
// size for bookings and zero for cancellations.
func NewReservationEvent(typ string, r model.Reservation, seats int, at time.Time) ReservationEvent {
	return ReservationEvent{
		EventID:         uuid.NewString(),
		Type:            typ,
		ReservationID:   r.ID,
		TableID:         r.TableID,
		Seats:           seats,
		ReservedAt:      r.ReservedAt.UTC().Format(time.RFC3339),
		DurationMinutes: r.DurationMinutes,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	}
}
