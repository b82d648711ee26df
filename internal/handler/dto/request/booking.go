package request

import (
	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	EventKey string    `json:"eventKey" binding:"required"`
	SeatIDs  []string  `json:"seatIds" binding:"required,min=1,dive,required"`
	MemberID uuid.UUID `json:"memberId" binding:"required"`
}

// UpdateBookingRequest carries only the fields the caller wants to
// change. A nil field means "keep as is".
type UpdateBookingRequest struct {
	EventKey *string    `json:"eventKey,omitempty"`
	SeatIDs  []string   `json:"seatIds,omitempty" binding:"omitempty,min=1,dive,required"`
	MemberID *uuid.UUID `json:"memberId,omitempty"`
}
