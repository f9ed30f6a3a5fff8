package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locker serialises work on one table across processes.  Acquire blocks
// until the lock is held or ctx is done; the returned release function must
// be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, tableID uint64) (release func(context.Context) error, err error)
}

// tableLocks hands out one binary semaphore per table id.  Semaphores are
// created on first use and never removed; tables are never deleted either.
type tableLocks struct {
	mu    sync.Mutex
	byTab map[uint64]*semaphore.Weighted
}

func newTableLocks() *tableLocks {
	return &tableLocks{byTab: make(map[uint64]*semaphore.Weighted)}
}

func (l *tableLocks) get(id uint64) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.byTab[id]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.byTab[id] = s
	}
	return s
}

// lock waits for the table's semaphore.  The error is ctx.Err() when the
// wait was abandoned.
func (l *tableLocks) lock(ctx context.Context, id uint64) (func(), error) {
	s := l.get(id)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.Release(1) }, nil
}
