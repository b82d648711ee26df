package queries

import (
	"context"
	"time"

	"seatbridge/internal/infra"
	"seatbridge/internal/pkg/errs"

	"github.com/google/uuid"
)

var ErrBookingNotFound = errs.New("booking not found")

// Read models (DTO for read side)
type BookingView struct {
	ID        uuid.UUID  `json:"id"`
	EventKey  string     `json:"event_key"`
	SeatID    string     `json:"seat_id"`
	MemberID  uuid.UUID  `json:"member_id"`
	OrderRef  uuid.UUID  `json:"order_ref"`
	Occupied  bool       `json:"occupied"`
	BookedAt  *time.Time `json:"booked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type BookingReadStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*BookingView, error)
	ListOccupied(ctx context.Context, eventKey string) ([]*BookingView, error)
}

// BookingQueries are pure local reads. The local store never claims
// occupancy the external authority has not confirmed, so no external
// call is needed here.
type BookingQueries interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*BookingView, error)
	ListBookings(ctx context.Context, eventKey string) ([]*BookingView, error)
}

type bookingQueriesImpl struct {
	store BookingReadStore
}

func NewBookingQueries(store BookingReadStore) BookingQueries {
	return &bookingQueriesImpl{store: store}
}

func (q *bookingQueriesImpl) GetBooking(ctx context.Context, id uuid.UUID) (*BookingView, error) {
	view, err := q.store.FindByID(ctx, id)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return view, nil
}

func (q *bookingQueriesImpl) ListBookings(ctx context.Context, eventKey string) ([]*BookingView, error) {
	return q.store.ListOccupied(ctx, eventKey)
}
