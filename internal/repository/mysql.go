package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// MySQLStore persists tables and reservations in MySQL.  All timestamp
// columns are DATETIME in UTC (the DSN sets parseTime=true&loc=UTC).
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore returns a store bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying pool for callers that need a transaction of
// their own (migrations, health checks).
func (s *MySQLStore) DB() *sql.DB { return s.db }

const reservationColumns = `id, table_id, reserved_at, duration_minutes, status, created_at, cancelled_at`

// InsertTable writes a new row and fills in the generated id.
func (s *MySQLStore) InsertTable(ctx context.Context, t model.Table) (model.Table, error) {
	t.CreatedAt = s.now().Truncate(time.Second)
	const q = `INSERT INTO dining_tables (seats, created_at) VALUES (?, ?)`
	res, err := s.db.ExecContext(ctx, q, t.Seats, t.CreatedAt)
	if err != nil {
		return model.Table{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Table{}, err
	}
	t.ID = uint64(id)
	return t, nil
}

// ListTables returns every table ordered by id.
func (s *MySQLStore) ListTables(ctx context.Context) ([]model.Table, error) {
	const q = `SELECT id, seats, created_at FROM dining_tables ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Table
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.Seats, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListReservations returns the active reservations of one table ordered by
// start time.  ErrNotFound is returned when the table does not exist.
func (s *MySQLStore) ListReservations(ctx context.Context, tableID uint64) ([]model.Reservation, error) {
	var id uint64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM dining_tables WHERE id = ?`, tableID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %d: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + reservationColumns + ` FROM reservations
	      WHERE table_id = ? AND status = ? ORDER BY reserved_at, id`
	rows, err := s.db.QueryContext(ctx, q, tableID, string(model.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReservation loads a reservation by id in any status.
func (s *MySQLStore) GetReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return r, err
}

// InsertReservation commits r inside a transaction that first locks the
// table row and re-checks for an intersecting active reservation.  The
// row lock makes concurrent inserts for the same table queue up in the
// database even when they come from different processes.
func (s *MySQLStore) InsertReservation(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reservation{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked uint64
	err = tx.QueryRowContext(ctx, `SELECT id FROM dining_tables WHERE id = ? FOR UPDATE`, r.TableID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, fmt.Errorf("table %d: %w", r.TableID, ErrNotFound)
	}
	if err != nil {
		return model.Reservation{}, err
	}

	// existing.start < new.end AND existing.end > new.start
	const overlapQ = `SELECT COUNT(*) FROM reservations
	                  WHERE table_id = ? AND status = ?
	                    AND reserved_at < ?
	                    AND DATE_ADD(reserved_at, INTERVAL duration_minutes MINUTE) > ?`
	var n int
	if err := tx.QueryRowContext(ctx, overlapQ, r.TableID, string(model.StatusActive), r.EndsAt(), r.ReservedAt).Scan(&n); err != nil {
		return model.Reservation{}, err
	}
	if n > 0 {
		return model.Reservation{}, fmt.Errorf("table %d has %d overlapping reservations: %w", r.TableID, n, ErrConflict)
	}

	r.Status = model.StatusActive
	r.CreatedAt = s.now().Truncate(time.Second)
	r.CancelledAt = nil
	const ins = `INSERT INTO reservations (table_id, reserved_at, duration_minutes, status, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins, r.TableID, r.ReservedAt, r.DurationMinutes, string(r.Status), r.CreatedAt)
	if err != nil {
		return model.Reservation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Reservation{}, err
	}
	r.ID = uint64(id)

	if err := tx.Commit(); err != nil {
		return model.Reservation{}, err
	}
	committed = true
	return r, nil
}

// DeleteReservation marks an active reservation as cancelled.  Rows that
// are missing or already cancelled yield ErrNotFound.
func (s *MySQLStore) DeleteReservation(ctx context.Context, id uint64) error {
	const q = `UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, q, string(model.StatusCancelled), s.now().Truncate(time.Second), id, string(model.StatusActive))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		r         model.Reservation
		status    string
		cancelled sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.TableID, &r.ReservedAt, &r.DurationMinutes, &status, &r.CreatedAt, &cancelled); err != nil {
		return model.Reservation{}, err
	}
	r.Status = model.ReservationStatus(status)
	r.ReservedAt = r.ReservedAt.UTC()
	if cancelled.Valid {
		ts := cancelled.Time.UTC()
		r.CancelledAt = &ts
	}
	return r, nil
}
