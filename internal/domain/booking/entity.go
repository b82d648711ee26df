package booking

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyEventKey = errors.New("event key must not be empty")
	ErrEmptySeatID   = errors.New("seat id must not be empty")
	ErrNilMember     = errors.New("member id must not be nil")
	ErrNilOrderRef   = errors.New("order ref must not be nil")
)

// Booking is one (event, seat) occupancy held on behalf of a member.
// Rows created by a single multi-seat request share an order ref; the
// external authority ties its occupancy to that ref.
type Booking struct {
	id        uuid.UUID
	eventKey  string
	seatID    string
	memberID  uuid.UUID
	orderRef  uuid.UUID
	occupied  bool
	bookedAt  *time.Time
	createdAt time.Time
	updatedAt time.Time
}

// NewBooking creates an occupied booking. Callers must only do this after
// the external authority has confirmed occupancy for the seat.
func NewBooking(eventKey, seatID string, memberID, orderRef uuid.UUID, now time.Time) (*Booking, error) {
	eventKey = strings.TrimSpace(eventKey)
	seatID = strings.TrimSpace(seatID)

	if eventKey == "" {
		return nil, ErrEmptyEventKey
	}
	if seatID == "" {
		return nil, ErrEmptySeatID
	}
	if memberID == uuid.Nil {
		return nil, ErrNilMember
	}
	if orderRef == uuid.Nil {
		return nil, ErrNilOrderRef
	}

	bookedAt := now
	return &Booking{
		id:        uuid.New(),
		eventKey:  eventKey,
		seatID:    seatID,
		memberID:  memberID,
		orderRef:  orderRef,
		occupied:  true,
		bookedAt:  &bookedAt,
		createdAt: now,
		updatedAt: now,
	}, nil
}

func ReconstructBooking(
	id uuid.UUID,
	eventKey, seatID string,
	memberID, orderRef uuid.UUID,
	occupied bool,
	bookedAt *time.Time,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:        id,
		eventKey:  eventKey,
		seatID:    seatID,
		memberID:  memberID,
		orderRef:  orderRef,
		occupied:  occupied,
		bookedAt:  bookedAt,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (b *Booking) ID() uuid.UUID        { return b.id }
func (b *Booking) EventKey() string     { return b.eventKey }
func (b *Booking) SeatID() string       { return b.seatID }
func (b *Booking) MemberID() uuid.UUID  { return b.memberID }
func (b *Booking) OrderRef() uuid.UUID  { return b.orderRef }
func (b *Booking) Occupied() bool       { return b.occupied }
func (b *Booking) BookedAt() *time.Time { return b.bookedAt }
func (b *Booking) CreatedAt() time.Time { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }
