package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/model"
)

func slot(hh int) time.Time { return time.Date(2025, 4, 17, hh, 0, 0, 0, time.UTC) }

func TestMemoryStoreTables(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.InsertTable(ctx, model.Table{Seats: 4})
	require.NoError(t, err)
	b, err := s.InsertTable(ctx, model.Table{Seats: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.ID)
	assert.Equal(t, uint64(2), b.ID)
	assert.False(t, a.CreatedAt.IsZero())

	tables, err := s.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, []uint64{1, 2}, []uint64{tables[0].ID, tables[1].ID})

	// the returned slice is a copy
	tables[0].Seats = 99
	again, _ := s.ListTables(ctx)
	assert.Equal(t, 4, again[0].Seats)
}

func TestMemoryStoreReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.InsertTable(ctx, model.Table{Seats: 4})
	require.NoError(t, err)

	r, err := model.NewReservation(1, slot(18), 60)
	require.NoError(t, err)
	saved, err := s.InsertReservation(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), saved.ID)
	assert.Equal(t, model.StatusActive, saved.Status)

	active, err := s.ListReservations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.DeleteReservation(ctx, saved.ID))
	got, err := s.GetReservation(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	active, err = s.ListReservations(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, s.DeleteReservation(ctx, saved.ID), ErrNotFound, "already cancelled")
	assert.ErrorIs(t, s.DeleteReservation(ctx, 42), ErrNotFound)
	_, err = s.GetReservation(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.InsertTable(ctx, model.Table{Seats: 4})

	first, _ := model.NewReservation(1, slot(18), 60)
	_, err := s.InsertReservation(ctx, first)
	require.NoError(t, err)

	clash, _ := model.NewReservation(1, slot(18).Add(30*time.Minute), 60)
	_, err = s.InsertReservation(ctx, clash)
	assert.ErrorIs(t, err, ErrConflict)

	touching, _ := model.NewReservation(1, slot(19), 60)
	_, err = s.InsertReservation(ctx, touching)
	assert.NoError(t, err)
}

func TestMemoryStoreUnknownTable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.ListReservations(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	r, _ := model.NewReservation(3, slot(18), 60)
	_, err = s.InsertReservation(ctx, r)
	assert.ErrorIs(t, err, ErrNotFound)
}
