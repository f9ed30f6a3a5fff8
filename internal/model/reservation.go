package model

import (
	"fmt"
	"time"
)

// DefaultDurationMinutes is the length of a booking when the caller does not
// ask for anything else.
const DefaultDurationMinutes = 60

// MaxDurationMinutes caps a single booking at one day.
const MaxDurationMinutes = 24 * 60

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "ACTIVE"
	StatusCancelled ReservationStatus = "CANCELLED"
)

// Reservation is a time-bounded claim on one table.  A reservation does
// not own its table; TableID only records which table it holds.  The
// only mutation a reservation ever sees is the ACTIVE -> CANCELLED
// transition.
//
// Fields:
//
//	ID              - primary key identifier.
//	TableID         - table held by the reservation.
//	ReservedAt      - start of the booking, stored in UTC.
//	DurationMinutes - length of the booking in minutes, always positive.
//	Status          - ACTIVE or CANCELLED.
//	CreatedAt       - creation timestamp.
//	CancelledAt     - set once the reservation is cancelled.
type Reservation struct {
	ID              uint64            // reservations.id
	TableID         uint64            // reservations.table_id
	ReservedAt      time.Time         // reservations.reserved_at
	DurationMinutes int               // reservations.duration_minutes
	Status          ReservationStatus // reservations.status
	CreatedAt       time.Time         // reservations.created_at
	CancelledAt     *time.Time        // reservations.cancelled_at (nullable)
}

// NewReservation validates its arguments and returns an unsaved, active
// reservation for the given table.  The start is truncated to the minute,
// the resolution every store keeps.
func NewReservation(tableID uint64, start time.Time, minutes int) (Reservation, error) {
	if tableID == 0 {
		return Reservation{}, fmt.Errorf("%w: table id is required", ErrInvalidArgument)
	}
	if start.IsZero() {
		return Reservation{}, fmt.Errorf("%w: start time is required", ErrInvalidArgument)
	}
	if err := ValidateDuration(minutes); err != nil {
		return Reservation{}, err
	}
	return Reservation{
		TableID:         tableID,
		ReservedAt:      StartMinute(start),
		DurationMinutes: minutes,
		Status:          StatusActive,
	}, nil
}

// ValidateDuration rejects lengths outside 1..MaxDurationMinutes.
func ValidateDuration(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidArgument, minutes)
	}
	if minutes > MaxDurationMinutes {
		return fmt.Errorf("%w: duration must not exceed %d minutes, got %d", ErrInvalidArgument, MaxDurationMinutes, minutes)
	}
	return nil
}

// StartMinute returns t in UTC with seconds and below dropped.
func StartMinute(t time.Time) time.Time { return t.UTC().Truncate(time.Minute) }

// Interval returns the half-open range occupied by the reservation.
func (r Reservation) Interval() Interval {
	return Interval{Start: r.ReservedAt, Duration: time.Duration(r.DurationMinutes) * time.Minute}
}

// EndsAt is the first minute after the booking.
func (r Reservation) EndsAt() time.Time { return r.Interval().End() }

// Active reports whether the reservation still holds its table.
func (r Reservation) Active() bool { return r.Status == StatusActive }
