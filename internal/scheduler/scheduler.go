// Package scheduler owns the booking rules for restaurant tables: a party
// gets the first table, in ascending id order, that has enough seats and no
// active reservation overlapping the requested interval.  The check and
// the commit for one table run under that table's lock, so the
// non-overlap invariant holds under concurrent bookings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
)

// Store is the persistence contract the scheduler depends on.  Reservation
// lists only contain ACTIVE reservations; DeleteReservation moves a
// reservation out of the active set and reports ErrNotFound when it is not
// in it.
type Store interface {
	InsertTable(ctx context.Context, t model.Table) (model.Table, error)
	ListTables(ctx context.Context) ([]model.Table, error)
	ListReservations(ctx context.Context, tableID uint64) ([]model.Reservation, error)
	GetReservation(ctx context.Context, id uint64) (model.Reservation, error)
	InsertReservation(ctx context.Context, r model.Reservation) (model.Reservation, error)
	DeleteReservation(ctx context.Context, id uint64) error
}

// Publisher receives an event after every committed booking or
// cancellation.  Errors are logged and otherwise ignored.
type Publisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// BookingRequest describes a party looking for a table.  A zero
// DurationMinutes means the scheduler's default (60 minutes unless
// WithDefaultDuration says otherwise); the resolved value is
// used for both the conflict check and the stored reservation.
type BookingRequest struct {
	Seats           int
	Start           time.Time
	DurationMinutes int
}

// Scheduler is safe for concurrent use.  Build one with New and share it.
type Scheduler struct {
	store  Store
	locks  *tableLocks
	dist   Locker
	events Publisher
	log    zerolog.Logger
	now    func() time.Time

	defaultMinutes int
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLocker adds a cross-process lock taken after the in-process one.
func WithLocker(l Locker) Option { return func(s *Scheduler) { s.dist = l } }

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option { return func(s *Scheduler) { s.events = p } }

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithDefaultDuration changes the length used when a request leaves
// DurationMinutes at zero.  Values outside 1..model.MaxDurationMinutes are
// ignored.
func WithDefaultDuration(minutes int) Option {
	return func(s *Scheduler) {
		if model.ValidateDuration(minutes) == nil {
			s.defaultMinutes = minutes
		}
	}
}

// New returns a Scheduler over store.
func New(store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store: store,
		locks: newTableLocks(),
		log:   zerolog.Nop(),
		now:   time.Now,

		defaultMinutes: model.DefaultDurationMinutes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddTable registers a table with the given capacity and returns its id.
func (s *Scheduler) AddTable(ctx context.Context, seats int) (uint64, error) {
	t, err := s.CreateTable(ctx, seats)
	if err != nil {
		return 0, err
	}
	return t.ID, nil
}

// CreateTable is AddTable returning the stored table, creation time
// included.
func (s *Scheduler) CreateTable(ctx context.Context, seats int) (model.Table, error) {
	t, err := model.NewTable(seats)
	if err != nil {
		return model.Table{}, err
	}
	t, err = s.store.InsertTable(ctx, t)
	if err != nil {
		return model.Table{}, fmt.Errorf("insert table: %w", err)
	}
	s.log.Info().Uint64("table_id", t.ID).Int("seats", t.Seats).Msg("table added")
	return t, nil
}

// BookTable finds the first table that fits req and commits a reservation
// on it.  ErrNoAvailability is returned when every candidate is busy.
func (s *Scheduler) BookTable(ctx context.Context, req BookingRequest) (model.Reservation, error) {
	req, err := s.normalise(req)
	if err != nil {
		return model.Reservation{}, err
	}
	want := model.Interval{Start: req.Start, Duration: time.Duration(req.DurationMinutes) * time.Minute}

	candidates, err := s.candidates(ctx, req.Seats)
	if err != nil {
		return model.Reservation{}, err
	}
	for _, t := range candidates {
		r, ok, err := s.tryTable(ctx, t, want, req.DurationMinutes)
		if err != nil {
			return model.Reservation{}, err
		}
		if !ok {
			continue
		}
		s.log.Info().
			Uint64("reservation_id", r.ID).
			Uint64("table_id", r.TableID).
			Int("seats", req.Seats).
			Time("start", r.ReservedAt).
			Int("duration_min", r.DurationMinutes).
			Msg("table booked")
		s.publish(ctx, queue.NewReservationEvent(queue.EventBooked, r, req.Seats, s.now()))
		return r, nil
	}
	s.log.Debug().Int("seats", req.Seats).Time("start", req.Start).Msg("no availability")
	return model.Reservation{}, ErrNoAvailability
}

// tryTable runs the check-then-commit sequence for one table under its
// lock.  ok is false when the table is busy for the interval.
func (s *Scheduler) tryTable(ctx context.Context, t model.Table, want model.Interval, minutes int) (r model.Reservation, ok bool, err error) {
	unlock, err := s.lockTable(ctx, t.ID)
	if err != nil {
		return model.Reservation{}, false, err
	}
	defer unlock()

	existing, err := s.store.ListReservations(ctx, t.ID)
	if err != nil {
		return model.Reservation{}, false, fmt.Errorf("list reservations for table %d: %w", t.ID, err)
	}
	if anyOverlap(existing, want) {
		return model.Reservation{}, false, nil
	}

	r, err = model.NewReservation(t.ID, want.Start, minutes)
	if err != nil {
		return model.Reservation{}, false, err
	}
	r, err = s.store.InsertReservation(ctx, r)
	if errors.Is(err, ErrConflict) {
		s.log.Error().Err(err).Uint64("table_id", t.ID).Time("start", want.Start).
			Msg("store rejected an overlapping reservation while the table lock was held")
		return model.Reservation{}, false, err
	}
	if err != nil {
		return model.Reservation{}, false, fmt.Errorf("insert reservation on table %d: %w", t.ID, err)
	}
	return r, true, nil
}

// CancelReservation removes an active reservation from its table.
func (s *Scheduler) CancelReservation(ctx context.Context, id uint64) error {
	if id == 0 {
		return fmt.Errorf("%w: reservation id is required", ErrInvalidArgument)
	}
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if !r.Active() {
		return fmt.Errorf("reservation %d is %s: %w", id, r.Status, ErrNotFound)
	}

	unlock, err := s.lockTable(ctx, r.TableID)
	if err != nil {
		return err
	}
	err = s.store.DeleteReservation(ctx, id)
	unlock()
	if err != nil {
		return err
	}

	s.log.Info().Uint64("reservation_id", id).Uint64("table_id", r.TableID).Msg("reservation cancelled")
	r.Status = model.StatusCancelled
	s.publish(ctx, queue.NewReservationEvent(queue.EventCancelled, r, 0, s.now()))
	return nil
}

// Availability lists, in first-fit order, the tables that could take req
// right now.  It takes no locks; the answer can be stale by the time the
// caller books.
func (s *Scheduler) Availability(ctx context.Context, req BookingRequest) ([]model.Table, error) {
	req, err := s.normalise(req)
	if err != nil {
		return nil, err
	}
	want := model.Interval{Start: req.Start, Duration: time.Duration(req.DurationMinutes) * time.Minute}

	candidates, err := s.candidates(ctx, req.Seats)
	if err != nil {
		return nil, err
	}
	free := make([]model.Table, 0, len(candidates))
	for _, t := range candidates {
		existing, err := s.store.ListReservations(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("list reservations for table %d: %w", t.ID, err)
		}
		if !anyOverlap(existing, want) {
			free = append(free, t)
		}
	}
	return free, nil
}

// Tables returns every table in ascending id order.
func (s *Scheduler) Tables(ctx context.Context) ([]model.Table, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })
	return tables, nil
}

// Reservations returns the active reservations of one table.
func (s *Scheduler) Reservations(ctx context.Context, tableID uint64) ([]model.Reservation, error) {
	if tableID == 0 {
		return nil, fmt.Errorf("%w: table id is required", ErrInvalidArgument)
	}
	return s.store.ListReservations(ctx, tableID)
}

// Reservation returns one reservation in any status.
func (s *Scheduler) Reservation(ctx context.Context, id uint64) (model.Reservation, error) {
	if id == 0 {
		return model.Reservation{}, fmt.Errorf("%w: reservation id is required", ErrInvalidArgument)
	}
	return s.store.GetReservation(ctx, id)
}

func (s *Scheduler) candidates(ctx context.Context, seats int) ([]model.Table, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	out := tables[:0]
	for _, t := range tables {
		if t.Fits(seats) {
			out = append(out, t)
		}
	}
	return out, nil
}

// lockTable takes the in-process lock and then, if configured, the
// distributed one.  The returned function releases both in reverse order.
func (s *Scheduler) lockTable(ctx context.Context, tableID uint64) (func(), error) {
	unlock, err := s.locks.lock(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("%w: table %d: %w", ErrTimeout, tableID, err)
	}
	if s.dist == nil {
		return unlock, nil
	}
	release, err := s.dist.Acquire(ctx, tableID)
	if err != nil {
		unlock()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: table %d: %w", ErrTimeout, tableID, err)
		}
		return nil, fmt.Errorf("distributed lock for table %d: %w", tableID, err)
	}
	return func() {
		// release must run even when the request context is already done
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Uint64("table_id", tableID).Msg("release distributed lock")
		}
		unlock()
	}, nil
}

func (s *Scheduler) publish(ctx context.Context, ev queue.ReservationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Uint64("reservation_id", ev.ReservationID).Msg("publish event failed")
	}
}

func (s *Scheduler) normalise(req BookingRequest) (BookingRequest, error) {
	if req.Seats <= 0 {
		return req, fmt.Errorf("%w: seats must be positive, got %d", ErrInvalidArgument, req.Seats)
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.defaultMinutes
	}
	if err := model.ValidateDuration(req.DurationMinutes); err != nil {
		return req, err
	}
	if req.Start.IsZero() {
		return req, fmt.Errorf("%w: start time is required", ErrInvalidArgument)
	}
	req.Start = model.StartMinute(req.Start)
	return req, nil
}

func anyOverlap(existing []model.Reservation, want model.Interval) bool {
	for _, e := range existing {
		if e.Interval().Overlaps(want) {
			return true
		}
	}
	return false
}
