package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/table-reservation/internal/model"
)

// pgxQuerier is the slice of *pgxpool.Pool the store uses.
type pgxQuerier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ pgxQuerier = (*pgxpool.Pool)(nil)

// PostgresStore is the pgx-backed counterpart of MySQLStore.  Timestamps
// are TIMESTAMPTZ and always handed back in UTC.
type PostgresStore struct {
	pool pgxQuerier
	now  func() time.Time
}

// NewPostgresStore returns a store bound to the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return newPostgresStore(pool)
}

func newPostgresStore(pool pgxQuerier) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) InsertTable(ctx context.Context, t model.Table) (model.Table, error) {
	t.CreatedAt = s.now()
	const q = `INSERT INTO dining_tables (seats, created_at) VALUES ($1, $2) RETURNING id`
	if err := s.pool.QueryRow(ctx, q, t.Seats, t.CreatedAt).Scan(&t.ID); err != nil {
		return model.Table{}, err
	}
	return t, nil
}

func (s *PostgresStore) ListTables(ctx context.Context) ([]model.Table, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, seats, created_at FROM dining_tables ORDER BY id`)
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
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListReservations(ctx context.Context, tableID uint64) ([]model.Reservation, error) {
	var id uint64
	err := s.pool.QueryRow(ctx, `SELECT id FROM dining_tables WHERE id = $1`, tableID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table %d: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + reservationColumns + ` FROM reservations
	      WHERE table_id = $1 AND status = $2 ORDER BY reserved_at, id`
	rows, err := s.pool.Query(ctx, q, tableID, string(model.StatusActive))
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

func (s *PostgresStore) GetReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	r, err := scanReservation(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return r, err
}

// InsertReservation follows the same lock, re-check, insert sequence as
// the MySQL store, inside a single pgx transaction.
func (s *PostgresStore) InsertReservation(ctx context.Context, r model.Reservation) (model.Reservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Reservation{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var locked uint64
	err = tx.QueryRow(ctx, `SELECT id FROM dining_tables WHERE id = $1 FOR UPDATE`, r.TableID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reservation{}, fmt.Errorf("table %d: %w", r.TableID, ErrNotFound)
	}
	if err != nil {
		return model.Reservation{}, err
	}

	const overlapQ = `SELECT COUNT(*) FROM reservations
	                  WHERE table_id = $1 AND status = $2
	                    AND reserved_at < $3
	                    AND reserved_at + make_interval(mins => duration_minutes) > $4`
	var n int
	if err := tx.QueryRow(ctx, overlapQ, r.TableID, string(model.StatusActive), r.EndsAt(), r.ReservedAt).Scan(&n); err != nil {
		return model.Reservation{}, err
	}
	if n > 0 {
		return model.Reservation{}, fmt.Errorf("table %d has %d overlapping reservations: %w", r.TableID, n, ErrConflict)
	}

	r.Status = model.StatusActive
	r.CreatedAt = s.now()
	r.CancelledAt = nil
	const ins = `INSERT INTO reservations (table_id, reserved_at, duration_minutes, status, created_at)
	             VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := tx.QueryRow(ctx, ins, r.TableID, r.ReservedAt, r.DurationMinutes, string(r.Status), r.CreatedAt).Scan(&r.ID); err != nil {
		return model.Reservation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Reservation{}, err
	}
	committed = true
	return r, nil
}

func (s *PostgresStore) DeleteReservation(ctx context.Context, id uint64) error {
	const q = `UPDATE reservations SET status = $1, cancelled_at = $2 WHERE id = $3 AND status = $4`
	tag, err := s.pool.Exec(ctx, q, string(model.StatusCancelled), s.now(), id, string(model.StatusActive))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return nil
}
