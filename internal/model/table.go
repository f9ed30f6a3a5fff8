package model

import (
	"fmt"
	"time"
)

// Table is a bookable restaurant table with a fixed seating capacity.
// Tables are created once and never change afterwards.  IDs are
// assigned by the store in creation order, which is also the order
// the scheduler walks when looking for a free table.
//
// Fields:
//
//	ID        - primary key identifier.
//	Seats     - seating capacity, always positive.
//	CreatedAt - timestamp when the table was registered.
type Table struct {
	ID        uint64    // tables.id
	Seats     int       // tables.seats
	CreatedAt time.Time // tables.created_at
}

// NewTable validates the capacity and returns an unsaved Table.
func NewTable(seats int) (Table, error) {
	if seats <= 0 {
		return Table{}, fmt.Errorf("%w: seats must be positive, got %d", ErrInvalidArgument, seats)
	}
	return Table{Seats: seats}, nil
}

// Fits reports whether a party of the given size can sit at the table.
func (t Table) Fits(seats int) bool { return t.Seats >= seats }
