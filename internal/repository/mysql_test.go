package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/model"
)

var fixedNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewMySQLStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var resCols = []string{"id", "table_id", "reserved_at", "duration_minutes", "status", "created_at", "cancelled_at"}

func TestMySQLInsertTable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("INSERT INTO dining_tables (seats, created_at) VALUES (?, ?)")).
		WithArgs(4, fixedNow).
		WillReturnResult(sqlmock.NewResult(7, 1))

	tbl, err := s.InsertTable(context.Background(), model.Table{Seats: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tbl.ID)
	assert.Equal(t, fixedNow, tbl.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLListTables(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("SELECT id, seats, created_at FROM dining_tables ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seats", "created_at"}).
			AddRow(1, 4, fixedNow).
			AddRow(2, 6, fixedNow))

	tables, err := s.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, uint64(2), tables[1].ID)
	assert.Equal(t, 6, tables[1].Seats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLInsertReservation(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2025, 4, 17, 18, 0, 0, 0, time.UTC)
	r, err := model.NewReservation(1, start, 60)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM dining_tables WHERE id = ? FOR UPDATE")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM reservations")).
		WithArgs(1, "ACTIVE", start.Add(time.Hour), start).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(q("INSERT INTO reservations")).
		WithArgs(1, start, 60, "ACTIVE", fixedNow).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	saved, err := s.InsertReservation(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), saved.ID)
	assert.Equal(t, model.StatusActive, saved.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLInsertReservationConflict(t *testing.T) {
	s, mock := newMockStore(t)
	r, _ := model.NewReservation(1, time.Date(2025, 4, 17, 18, 0, 0, 0, time.UTC), 60)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM reservations")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.InsertReservation(context.Background(), r)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLInsertReservationUnknownTable(t *testing.T) {
	s, mock := newMockStore(t)
	r, _ := model.NewReservation(9, time.Date(2025, 4, 17, 18, 0, 0, 0, time.UTC), 60)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.InsertReservation(context.Background(), r)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLListReservations(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2025, 4, 17, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("SELECT id FROM dining_tables WHERE id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(q("FROM reservations")).
		WithArgs(1, "ACTIVE").
		WillReturnRows(sqlmock.NewRows(resCols).
			AddRow(3, 1, start, 90, "ACTIVE", fixedNow, nil))

	got, err := s.ListReservations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].ID)
	assert.Equal(t, 90, got[0].DurationMinutes)
	assert.Nil(t, got[0].CancelledAt)
	assert.Equal(t, start.Add(90*time.Minute), got[0].EndsAt())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLGetReservation(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2025, 4, 17, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("FROM reservations WHERE id = ?")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(resCols).
			AddRow(3, 1, start, 60, "CANCELLED", fixedNow, fixedNow))
	mock.ExpectQuery(q("FROM reservations WHERE id = ?")).
		WithArgs(4).
		WillReturnError(sql.ErrNoRows)

	got, err := s.GetReservation(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	_, err = s.GetReservation(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDeleteReservation(t *testing.T) {
	s, mock := newMockStore(t)
	update := q("UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?")
	mock.ExpectExec(update).
		WithArgs("CANCELLED", fixedNow, 3, "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).
		WithArgs("CANCELLED", fixedNow, 4, "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteReservation(context.Background(), 3))
	assert.ErrorIs(t, s.DeleteReservation(context.Background(), 4), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
