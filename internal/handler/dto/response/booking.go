package response

import (
	"time"

	"seatbridge/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type BookingResponse struct {
	ID        uuid.UUID  `json:"id"`
	EventKey  string     `json:"eventKey"`
	SeatID    string     `json:"seatId"`
	MemberID  uuid.UUID  `json:"memberId"`
	OrderRef  uuid.UUID  `json:"orderRef"`
	Occupied  bool       `json:"occupied"`
	BookedAt  *time.Time `json:"bookedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func FromBookingView(view *queries.BookingView) *BookingResponse {
	resp := &BookingResponse{}
	_ = copier.Copy(resp, view)
	return resp
}

func FromBookingViews(views []*queries.BookingView) []*BookingResponse {
	out := make([]*BookingResponse, len(views))
	for i, view := range views {
		out[i] = FromBookingView(view)
	}
	return out
}
