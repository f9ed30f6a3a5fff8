// Package repository holds the storage backends for tables and
// reservations.  Every backend satisfies scheduler.Store and reports
// failures with the sentinel values below so that the scheduler and the
// HTTP layer can tell them apart with errors.Is.
package repository

import "errors"

// ErrNotFound is returned when a table or reservation does not exist, or
// when a reservation is asked to leave the active set but is no longer in
// it.  Handlers translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert would place two active
// reservations on the same table over intersecting intervals.  The
// scheduler serialises bookings per table, so seeing this error means the
// locking discipline was bypassed.
var ErrConflict = errors.New("conflict")
