// Package fake provides in-memory doubles for the booking store and the
// external seat-allocation authority. The store fake enforces the same
// partial uniqueness the real schema does (at most one occupied row per
// event and seat), so concurrency tests exercise real admission races.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"seatbridge/internal/domain/booking"
	"seatbridge/internal/infra"
	"seatbridge/internal/infra/db"
	"seatbridge/internal/infra/extern"
	"seatbridge/internal/usecase/shared"

	"github.com/google/uuid"
)

type seatKey struct {
	eventKey string
	seatID   string
}

type Store struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]shared.BookingSnapshot
	tasks    []shared.ReconciliationTask
}

func NewStore() *Store {
	return &Store{bookings: make(map[uuid.UUID]shared.BookingSnapshot)}
}

func (s *Store) Seed(eventKey, seatID string, memberID, orderRef uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.bookings[id] = shared.BookingSnapshot{
		ID:       id,
		EventKey: eventKey,
		SeatID:   seatID,
		MemberID: memberID,
		OrderRef: orderRef,
		Occupied: true,
	}
	return id
}

func (s *Store) SeedTask(task shared.ReconciliationTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *Store) OccupiedRows() []shared.BookingSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []shared.BookingSnapshot
	for _, b := range s.bookings {
		if b.Occupied {
			rows = append(rows, b)
		}
	}
	return rows
}

func (s *Store) Row(id uuid.UUID) (shared.BookingSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

func (s *Store) Tasks() []shared.ReconciliationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.ReconciliationTask(nil), s.tasks...)
}

func (s *Store) TaskKinds() []shared.ReconciliationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]shared.ReconciliationKind, 0, len(s.tasks))
	for _, t := range s.tasks {
		kinds = append(kinds, t.Kind)
	}
	return kinds
}

// CommandReads implementation; runs outside transactions.

func (s *Store) OccupiedSeats(_ context.Context, eventKey string, seatIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return occupiedAmong(s.bookings, eventKey, seatIDs), nil
}

func (s *Store) OccupiedBookings(_ context.Context, eventKey string, seatIDs []string) ([]shared.BookingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var occupied []shared.BookingSnapshot
	for _, seatID := range seatIDs {
		for _, b := range s.bookings {
			if b.Occupied && b.EventKey == eventKey && b.SeatID == seatID {
				occupied = append(occupied, b)
				break
			}
		}
	}
	return occupied, nil
}

func (s *Store) BookingByID(_ context.Context, id uuid.UUID) (*shared.BookingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, infra.NewRepoErr(infra.KindNotFound, "booking not found")
	}
	snap := b
	return &snap, nil
}

func occupiedAmong(bookings map[uuid.UUID]shared.BookingSnapshot, eventKey string, seatIDs []string) []string {
	var occupied []string
	for _, seatID := range seatIDs {
		for _, b := range bookings {
			if b.Occupied && b.EventKey == eventKey && b.SeatID == seatID {
				occupied = append(occupied, seatID)
				break
			}
		}
	}
	return occupied
}

// UoW serializes transactions under the store lock and restores the
// pre-transaction state when the callback fails, mirroring a rollback.
type UoW struct {
	Store *Store
}

func NewUoW(store *Store) *UoW {
	return &UoW{Store: store}
}

func (u *UoW) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	u.Store.mu.Lock()
	defer u.Store.mu.Unlock()

	saved := make(map[uuid.UUID]shared.BookingSnapshot, len(u.Store.bookings))
	for id, b := range u.Store.bookings {
		saved[id] = b
	}
	savedTasks := append([]shared.ReconciliationTask(nil), u.Store.tasks...)

	if err := fn(ctx, tx{store: u.Store}); err != nil {
		u.Store.bookings = saved
		u.Store.tasks = savedTasks
		return err
	}
	return nil
}

func (u *UoW) CommandReads() shared.CommandReads {
	return u.Store
}

type tx struct {
	store *Store
}

func (t tx) Bookings() shared.BookingRepository               { return bookingRepo{store: t.store} }
func (t tx) Reconciliations() shared.ReconciliationRepository { return reconRepo{store: t.store} }
func (t tx) DB() db.DBTX                                      { return nil }

// bookingRepo runs under the lock UoW already holds.
type bookingRepo struct {
	store *Store
}

func (r bookingRepo) InsertOccupied(_ context.Context, _ db.DBTX, b *booking.Booking) (uuid.UUID, error) {
	for _, existing := range r.store.bookings {
		if existing.Occupied && existing.EventKey == b.EventKey() && existing.SeatID == b.SeatID() {
			return uuid.Nil, infra.NewRepoErr(infra.KindDuplicateKey, "bookings_event_seat_occupied_uq")
		}
	}
	r.store.bookings[b.ID()] = shared.BookingSnapshot{
		ID:       b.ID(),
		EventKey: b.EventKey(),
		SeatID:   b.SeatID(),
		MemberID: b.MemberID(),
		OrderRef: b.OrderRef(),
		Occupied: true,
	}
	return b.ID(), nil
}

func (r bookingRepo) ReleaseByID(_ context.Context, _ db.DBTX, id uuid.UUID, _ time.Time) error {
	b, ok := r.store.bookings[id]
	if !ok || !b.Occupied {
		return infra.NewRepoErr(infra.KindNotFound, "no occupied booking")
	}
	b.Occupied = false
	r.store.bookings[id] = b
	return nil
}

func (r bookingRepo) ReleaseByOrderRef(_ context.Context, _ db.DBTX, eventKey string, seatIDs []string, orderRef uuid.UUID, _ time.Time) (int64, error) {
	var released int64
	for id, b := range r.store.bookings {
		if b.Occupied && b.EventKey == eventKey && b.OrderRef == orderRef && contains(seatIDs, b.SeatID) {
			b.Occupied = false
			r.store.bookings[id] = b
			released++
		}
	}
	return released, nil
}

func contains(seatIDs []string, seatID string) bool {
	for _, s := range seatIDs {
		if s == seatID {
			return true
		}
	}
	return false
}

func (r bookingRepo) FindOccupied(_ context.Context, _ db.DBTX, eventKey string, seatIDs []string) ([]shared.BookingSnapshot, error) {
	var occupied []shared.BookingSnapshot
	for _, b := range r.store.bookings {
		if b.Occupied && b.EventKey == eventKey && contains(seatIDs, b.SeatID) {
			occupied = append(occupied, b)
		}
	}
	return occupied, nil
}

type reconRepo struct {
	store *Store
}

func (r reconRepo) Enqueue(_ context.Context, _ db.DBTX, task *shared.ReconciliationTask) error {
	r.store.tasks = append(r.store.tasks, *task)
	return nil
}

func (r reconRepo) ListDue(_ context.Context, _ db.DBTX, limit int) ([]shared.ReconciliationTask, error) {
	if limit > len(r.store.tasks) {
		limit = len(r.store.tasks)
	}
	return append([]shared.ReconciliationTask(nil), r.store.tasks[:limit]...), nil
}

func (r reconRepo) MarkAttempt(_ context.Context, _ db.DBTX, id uuid.UUID, now time.Time) error {
	for i := range r.store.tasks {
		if r.store.tasks[i].ID == id {
			r.store.tasks[i].Attempts++
			r.store.tasks[i].UpdatedAt = now
		}
	}
	return nil
}

func (r reconRepo) Delete(_ context.Context, _ db.DBTX, id uuid.UUID) error {
	for i := range r.store.tasks {
		if r.store.tasks[i].ID == id {
			r.store.tasks = append(r.store.tasks[:i], r.store.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

// Authority behaves like the real seat-allocation service: it grants a
// claim only when every requested seat is free, and it records the order
// of calls so tests can assert on sequencing.
type Authority struct {
	mu           sync.Mutex
	held         map[seatKey]uuid.UUID
	calls        []string
	BookErr      error
	ReleaseErr   error
	OccupancyErr error
	// OnBooked runs after a successful grant, outside the lock. Tests
	// use it to interleave a rival between the external commit and the
	// local insert.
	OnBooked func()
}

func NewAuthority() *Authority {
	return &Authority{held: make(map[seatKey]uuid.UUID)}
}

func (a *Authority) Book(_ context.Context, eventKey string, seatIDs []string, orderRef uuid.UUID) error {
	a.mu.Lock()
	a.calls = append(a.calls, "book "+eventKey+" "+strings.Join(seatIDs, ","))
	if a.BookErr != nil {
		a.mu.Unlock()
		return a.BookErr
	}
	for _, seatID := range seatIDs {
		if _, taken := a.held[seatKey{eventKey, seatID}]; taken {
			a.mu.Unlock()
			return extern.ErrSeatsUnavailable
		}
	}
	for _, seatID := range seatIDs {
		a.held[seatKey{eventKey, seatID}] = orderRef
	}
	hook := a.OnBooked
	a.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (a *Authority) Release(_ context.Context, eventKey string, seatIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "release "+eventKey+" "+strings.Join(seatIDs, ","))
	if a.ReleaseErr != nil {
		return a.ReleaseErr
	}
	for _, seatID := range seatIDs {
		delete(a.held, seatKey{eventKey, seatID})
	}
	return nil
}

func (a *Authority) Occupancy(_ context.Context, eventKey string, seatIDs []string) (map[string]uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "occupancy "+eventKey+" "+strings.Join(seatIDs, ","))
	if a.OccupancyErr != nil {
		return nil, a.OccupancyErr
	}
	occupied := make(map[string]uuid.UUID)
	for _, seatID := range seatIDs {
		if ref, ok := a.held[seatKey{eventKey, seatID}]; ok {
			occupied[seatID] = ref
		}
	}
	return occupied, nil
}

// Hold makes the authority hold a seat directly, bypassing call logging.
func (a *Authority) Hold(eventKey, seatID string, orderRef uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held[seatKey{eventKey, seatID}] = orderRef
}

func (a *Authority) Holds(eventKey, seatID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.held[seatKey{eventKey, seatID}]
	return ok
}

func (a *Authority) HolderOf(eventKey, seatID string) (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ref, ok := a.held[seatKey{eventKey, seatID}]
	return ref, ok
}

func (a *Authority) CallLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

type Members struct {
	Known map[uuid.UUID]bool
}

func (m *Members) Exists(_ context.Context, memberID uuid.UUID) (bool, error) {
	return m.Known[memberID], nil
}

type Waker struct {
	mu    sync.Mutex
	wakes int
}

func (w *Waker) Wake(_ context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wakes++
}

func (w *Waker) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wakes
}
