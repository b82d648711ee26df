//go:build unit || e2e

package builder

import (
	"time"

	reqdto "seatbridge/internal/handler/dto/request"
	"seatbridge/internal/usecase/queries"

	"github.com/google/uuid"
)

type BookingBuilder struct {
	id       uuid.UUID
	eventKey string
	seatID   string
	memberID uuid.UUID
	orderRef uuid.UUID
	bookedAt time.Time
}

func NewBookingBuilder() *BookingBuilder {
	return &BookingBuilder{
		id:       uuid.New(),
		eventKey: "concert-42",
		seatID:   "A1",
		memberID: uuid.New(),
		orderRef: uuid.New(),
		bookedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (b *BookingBuilder) WithID(id uuid.UUID) *BookingBuilder {
	b.id = id
	return b
}

func (b *BookingBuilder) WithEventKey(eventKey string) *BookingBuilder {
	b.eventKey = eventKey
	return b
}

func (b *BookingBuilder) WithSeatID(seatID string) *BookingBuilder {
	b.seatID = seatID
	return b
}

func (b *BookingBuilder) WithMemberID(memberID uuid.UUID) *BookingBuilder {
	b.memberID = memberID
	return b
}

func (b *BookingBuilder) BuildView() *queries.BookingView {
	bookedAt := b.bookedAt
	return &queries.BookingView{
		ID:        b.id,
		EventKey:  b.eventKey,
		SeatID:    b.seatID,
		MemberID:  b.memberID,
		OrderRef:  b.orderRef,
		Occupied:  true,
		BookedAt:  &bookedAt,
		CreatedAt: b.bookedAt,
		UpdatedAt: b.bookedAt,
	}
}

func (b *BookingBuilder) BuildCreateRequestDTO() reqdto.CreateBookingRequest {
	return reqdto.CreateBookingRequest{
		EventKey: b.eventKey,
		SeatIDs:  []string{b.seatID},
		MemberID: b.memberID,
	}
}
