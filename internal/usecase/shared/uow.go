package shared

import (
	"context"
	"time"

	"seatbridge/internal/domain/booking"
	"seatbridge/internal/infra/db"

	"github.com/google/uuid"
)

type UnitOfWork interface {
	// Within: Full transaction for write operations with retry logic
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// CommandReads: Direct access to command reads for validation outside transactions
	CommandReads() CommandReads
}

type Tx interface {
	Bookings() BookingRepository
	Reconciliations() ReconciliationRepository
	DB() db.DBTX
}

// CommandReads are advisory pre-checks on the write side. They never
// substitute for the storage-level uniqueness constraint.
type CommandReads interface {
	OccupiedSeats(ctx context.Context, eventKey string, seatIDs []string) ([]string, error)
	// OccupiedBookings reports the occupied rows among the given seats
	// including who holds them, so callers can tell their own holdings
	// apart from rival claims.
	OccupiedBookings(ctx context.Context, eventKey string, seatIDs []string) ([]BookingSnapshot, error)
	BookingByID(ctx context.Context, id uuid.UUID) (*BookingSnapshot, error)
}

// Minimal snapshot for command read operations
type BookingSnapshot struct {
	ID       uuid.UUID
	EventKey string
	SeatID   string
	MemberID uuid.UUID
	OrderRef uuid.UUID
	Occupied bool
}

type BookingRepository interface {
	InsertOccupied(ctx context.Context, dbtx db.DBTX, b *booking.Booking) (uuid.UUID, error)
	ReleaseByID(ctx context.Context, dbtx db.DBTX, id uuid.UUID, now time.Time) error
	ReleaseByOrderRef(ctx context.Context, dbtx db.DBTX, eventKey string, seatIDs []string, orderRef uuid.UUID, now time.Time) (int64, error)
	FindOccupied(ctx context.Context, dbtx db.DBTX, eventKey string, seatIDs []string) ([]BookingSnapshot, error)
}

type ReconciliationKind string

const (
	// ReconcileAmbiguousBook records a booking attempt whose external
	// commit timed out: the authority may or may not hold the seats.
	ReconcileAmbiguousBook ReconciliationKind = "ambiguous_book"
	// ReconcileStaleRelease records seats the authority still holds
	// after the local record moved on (failed compensations, failed
	// old-seat releases during update).
	ReconcileStaleRelease ReconciliationKind = "stale_release"
)

type ReconciliationTask struct {
	ID        uuid.UUID
	Kind      ReconciliationKind
	EventKey  string
	SeatIDs   []string
	MemberID  uuid.UUID
	OrderRef  uuid.UUID
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ReconciliationRepository interface {
	Enqueue(ctx context.Context, dbtx db.DBTX, task *ReconciliationTask) error
	ListDue(ctx context.Context, dbtx db.DBTX, limit int) ([]ReconciliationTask, error)
	MarkAttempt(ctx context.Context, dbtx db.DBTX, id uuid.UUID, now time.Time) error
	Delete(ctx context.Context, dbtx db.DBTX, id uuid.UUID) error
}

// ReservationAuthority is the external seat-allocation service: the sole
// source of truth for seat occupancy. Every call is bounded by a fixed
// timeout; a timed-out Book has an unknown effect and must be treated as
// ambiguous, never as definite failure.
type ReservationAuthority interface {
	// Book claims the seats under orderRef. Must not be called with an
	// empty seat list.
	Book(ctx context.Context, eventKey string, seatIDs []string, orderRef uuid.UUID) error
	// Release frees the seats. Safe to call when the authority holds no
	// matching occupancy.
	Release(ctx context.Context, eventKey string, seatIDs []string) error
	// Occupancy reports which of the given seats the authority currently
	// holds, keyed by seat id with the holding order ref.
	Occupancy(ctx context.Context, eventKey string, seatIDs []string) (map[string]uuid.UUID, error)
}

// ReconcileWaker nudges the reconciliation sweeper to run ahead of its
// periodic tick. Best-effort: a lost wake only delays repair until the
// next tick.
type ReconcileWaker interface {
	Wake(ctx context.Context)
}
