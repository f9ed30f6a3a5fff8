package scheduler

import (
	"errors"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
)

var (
	// ErrInvalidArgument: non-positive seats or duration, a zero start time or
	// a zero id.  Nothing has been mutated when it is returned.
	ErrInvalidArgument = model.ErrInvalidArgument

	// ErrNoAvailability is the normal negative answer to a booking: no table
	// with enough seats is free for the requested interval.
	ErrNoAvailability = errors.New("no availability")

	// ErrNotFound: unknown table, or a reservation that is unknown or no
	// longer active.
	ErrNotFound = repository.ErrNotFound

	// ErrConflict surfaces when the store refuses an insert because of an
	// overlapping reservation.  It can only happen if bookings for the same
	// table were not serialised, so it is logged at error level.
	ErrConflict = repository.ErrConflict

	// ErrTimeout: the caller's deadline expired, or its context was
	// cancelled, while waiting for a table lock.
	ErrTimeout = errors.New("timed out waiting for table lock")
)
