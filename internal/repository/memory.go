package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// MemoryStore keeps tables and reservations in process memory.  It is the
// default backend for tests and the demo command.  All methods are safe
// for concurrent use.
type MemoryStore struct {
	mu           sync.RWMutex
	tables       []model.Table
	reservations map[uint64]model.Reservation
	byTable      map[uint64][]uint64 // table id -> reservation ids in insert order
	nextTable    uint64
	nextRes      uint64
	now          func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reservations: make(map[uint64]model.Reservation),
		byTable:      make(map[uint64][]uint64),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// InsertTable assigns the next id and stores the table.
func (m *MemoryStore) InsertTable(_ context.Context, t model.Table) (model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTable++
	t.ID = m.nextTable
	t.CreatedAt = m.now()
	m.tables = append(m.tables, t)
	return t, nil
}

// ListTables returns a copy of all tables in ascending id order.
func (m *MemoryStore) ListTables(_ context.Context) ([]model.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Table, len(m.tables))
	copy(out, m.tables)
	return out, nil
}

// ListReservations returns the active reservations held by a table.
func (m *MemoryStore) ListReservations(_ context.Context, tableID uint64) ([]model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasTable(tableID) {
		return nil, fmt.Errorf("table %d: %w", tableID, ErrNotFound)
	}
	return m.activeFor(tableID), nil
}

// GetReservation returns a reservation regardless of its status.
func (m *MemoryStore) GetReservation(_ context.Context, id uint64) (model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return r, nil
}

// InsertReservation stores r as active.  The overlap check is repeated
// here and fails with ErrConflict if another active reservation on the
// same table intersects r.
func (m *MemoryStore) InsertReservation(_ context.Context, r model.Reservation) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasTable(r.TableID) {
		return model.Reservation{}, fmt.Errorf("table %d: %w", r.TableID, ErrNotFound)
	}
	for _, existing := range m.activeFor(r.TableID) {
		if existing.Interval().Overlaps(r.Interval()) {
			return model.Reservation{}, fmt.Errorf("table %d overlaps reservation %d: %w", r.TableID, existing.ID, ErrConflict)
		}
	}
	m.nextRes++
	r.ID = m.nextRes
	r.Status = model.StatusActive
	r.CreatedAt = m.now()
	r.CancelledAt = nil
	m.reservations[r.ID] = r
	m.byTable[r.TableID] = append(m.byTable[r.TableID], r.ID)
	return r, nil
}

// DeleteReservation moves an active reservation to CANCELLED.
func (m *MemoryStore) DeleteReservation(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || !r.Active() {
		return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	ts := m.now()
	r.Status = model.StatusCancelled
	r.CancelledAt = &ts
	m.reservations[id] = r
	return nil
}

// hasTable relies on ids being dense and starting at one.
func (m *MemoryStore) hasTable(id uint64) bool {
	return id > 0 && id <= uint64(len(m.tables))
}

func (m *MemoryStore) activeFor(tableID uint64) []model.Reservation {
	ids := m.byTable[tableID]
	out := make([]model.Reservation, 0, len(ids))
	for _, id := range ids {
		if r := m.reservations[id]; r.Active() {
			out = append(out, r)
		}
	}
	return out
}
