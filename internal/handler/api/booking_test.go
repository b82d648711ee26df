//go:build unit

package api_test

import (
	"errors"
	"net/http"
	"testing"

	"seatbridge/internal/handler/api"
	resdto "seatbridge/internal/handler/dto/response"
	"seatbridge/internal/usecase/commands"
	"seatbridge/internal/usecase/queries"
	"seatbridge/tests/common/builder"
	"seatbridge/tests/common/httptest"
	"seatbridge/tests/common/testutil"
	commandsmock "seatbridge/tests/mock/commands"
	queriesmock "seatbridge/tests/mock/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type BookingHandlerTestSuite struct {
	suite.Suite
	router       *gin.Engine
	mockCtrl     *gomock.Controller
	mockCommands *commandsmock.MockBookingCommands
	mockQueries  *queriesmock.MockBookingQueries
	handler      *api.BookingHandler
}

func (s *BookingHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.router = gin.New()

	s.mockCtrl = gomock.NewController(s.T())
	s.mockCommands = commandsmock.NewMockBookingCommands(s.mockCtrl)
	s.mockQueries = queriesmock.NewMockBookingQueries(s.mockCtrl)
	s.handler = api.NewBookingHandler(s.mockCommands, s.mockQueries)

	// Mock authentication middleware for testing
	authMiddleware := func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Unauthorized"}})
			return
		}
		c.Set("client_id", "test-client")
		c.Next()
	}

	s.router.POST("/booking", authMiddleware, s.handler.Create)
	s.router.GET("/booking", authMiddleware, s.handler.List)
	s.router.GET("/booking/:id", authMiddleware, s.handler.Get)
	s.router.PUT("/booking/:id", authMiddleware, s.handler.Update)
	s.router.DELETE("/booking/:id", authMiddleware, s.handler.Delete)
}

func (s *BookingHandlerTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func TestBookingHandlerSuite(t *testing.T) {
	suite.Run(t, new(BookingHandlerTestSuite))
}

// ================================================================================
// TestCreate
// ================================================================================

func (s *BookingHandlerTestSuite) TestCreate() {
	url := "/booking"

	reqBody := builder.NewBookingBuilder().BuildCreateRequestDTO()
	returnView := builder.NewBookingBuilder().
		WithEventKey(reqBody.EventKey).
		WithSeatID(reqBody.SeatIDs[0]).
		WithMemberID(reqBody.MemberID).
		BuildView()

	s.Run("success: returns 201 Created with Location header", func() {
		s.mockCommands.EXPECT().
			Book(gomock.Any(), reqBody.EventKey, reqBody.SeatIDs, reqBody.MemberID).
			Return([]*queries.BookingView{returnView}, nil).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPost, url, reqBody, "bearer-token")

		var body []*resdto.BookingResponse
		httptest.AssertSuccessResponse(s.T(), rec, http.StatusCreated, &body)
		s.Require().Len(body, 1)
		s.Equal(returnView.ID, body[0].ID)
		s.Equal(returnView.SeatID, body[0].SeatID)
		httptest.AssertHeaders(s.T(), rec, map[string]string{"Location": "/booking/" + returnView.ID.String()})
	})

	s.Run("success: multi-seat booking returns one row per seat", func() {
		second := builder.NewBookingBuilder().
			WithEventKey(reqBody.EventKey).
			WithSeatID("A2").
			WithMemberID(reqBody.MemberID).
			BuildView()
		s.mockCommands.EXPECT().
			Book(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]*queries.BookingView{returnView, second}, nil).Times(1)

		body := testutil.DtoMap(s.T(), reqBody, testutil.Field("seatIds", []string{"A1", "A2"}))
		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPost, url, body, "bearer-token")

		var resp []*resdto.BookingResponse
		httptest.AssertSuccessResponse(s.T(), rec, http.StatusCreated, &resp)
		s.Len(resp, 2)
		s.Empty(rec.Header().Get("Location"))
	})

	s.Run("error: 400 Bad Request on validation errors", func() {
		cases := []struct {
			name   string
			mutate func(m map[string]any)
		}{
			{name: "missing field: eventKey", mutate: testutil.Field("eventKey", nil)},
			{name: "missing field: seatIds", mutate: testutil.Field("seatIds", nil)},
			{name: "empty seatIds", mutate: testutil.Field("seatIds", []string{})},
			{name: "blank seat id", mutate: testutil.Field("seatIds", []string{""})},
			{name: "missing field: memberId", mutate: testutil.Field("memberId", nil)},
		}

		for _, tc := range cases {
			s.Run(tc.name, func() {
				requestMap := testutil.DtoMap(s.T(), reqBody, tc.mutate)
				rec := httptest.PerformRequest(s.T(), s.router, http.MethodPost, url, requestMap, "bearer-token")
				httptest.AssertErrorResponse(s.T(), rec, http.StatusBadRequest, "")
			})
		}
	})

	s.Run("error: 401 Unauthorized when unauthenticated", func() {
		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPost, url, reqBody, "")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusUnauthorized, "Unauthorized")
	})

	s.Run("error: maps coordinator errors to proper statuses", func() {
		testCases := []struct {
			name           string
			commandsError  error
			expectedStatus int
			expectedMsg    string
		}{
			{
				name:           "member not found",
				commandsError:  commands.ErrMemberNotFound,
				expectedStatus: http.StatusNotFound,
				expectedMsg:    "Member not found",
			},
			{
				name:           "seats already booked",
				commandsError:  &commands.SeatConflictError{SeatIDs: []string{"A1"}},
				expectedStatus: http.StatusConflict,
				expectedMsg:    "Seats already booked",
			},
			{
				name:           "reconciliation required",
				commandsError:  &commands.ReconciliationRequiredError{EventKey: "concert-42", SeatIDs: []string{"A1"}},
				expectedStatus: http.StatusInternalServerError,
				expectedMsg:    "reconciled",
			},
			{
				name:           "authority unavailable",
				commandsError:  commands.ErrExternalService,
				expectedStatus: http.StatusBadGateway,
				expectedMsg:    "authority unavailable",
			},
			{
				name:           "internal server error",
				commandsError:  errors.New("database error"),
				expectedStatus: http.StatusInternalServerError,
				expectedMsg:    "Internal server error",
			},
		}

		for _, tc := range testCases {
			s.Run(tc.name, func() {
				s.mockCommands.EXPECT().
					Book(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil, tc.commandsError).Times(1)

				rec := httptest.PerformRequest(s.T(), s.router, http.MethodPost, url, reqBody, "bearer-token")
				httptest.AssertErrorResponse(s.T(), rec, tc.expectedStatus, tc.expectedMsg)
			})
		}
	})

	s.Run("error: conflict response carries the contested seats", func() {
		s.mockCommands.EXPECT().
			Book(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, &commands.SeatConflictError{SeatIDs: []string{"A1", "A2"}}).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPost, url, reqBody, "bearer-token")

		var body struct {
			Detail struct {
				Seats []string `json:"seats"`
			} `json:"detail"`
		}
		httptest.DecodeResponseBody(s.T(), rec.Body, &body)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal([]string{"A1", "A2"}, body.Detail.Seats)
	})
}

// ================================================================================
// TestGet
// ================================================================================

func (s *BookingHandlerTestSuite) TestGet() {
	returnView := builder.NewBookingBuilder().BuildView()
	url := "/booking/" + returnView.ID.String()

	s.Run("success: returns 200 OK with booking", func() {
		s.mockQueries.EXPECT().
			GetBooking(gomock.Any(), returnView.ID).
			Return(returnView, nil).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodGet, url, nil, "bearer-token")

		var body resdto.BookingResponse
		httptest.AssertSuccessResponse(s.T(), rec, http.StatusOK, &body)
		s.Equal(returnView.ID, body.ID)
		s.Equal(returnView.EventKey, body.EventKey)
		s.True(body.Occupied)
	})

	s.Run("error: 400 on malformed id", func() {
		rec := httptest.PerformRequest(s.T(), s.router, http.MethodGet, "/booking/not-a-uuid", nil, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusBadRequest, "Invalid booking ID")
	})

	s.Run("error: 404 when booking does not exist", func() {
		s.mockQueries.EXPECT().
			GetBooking(gomock.Any(), returnView.ID).
			Return(nil, queries.ErrBookingNotFound).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodGet, url, nil, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusNotFound, "Booking not found")
	})
}

// ================================================================================
// TestList
// ================================================================================

func (s *BookingHandlerTestSuite) TestList() {
	s.Run("success: passes the event filter through", func() {
		views := []*queries.BookingView{
			builder.NewBookingBuilder().WithSeatID("A1").BuildView(),
			builder.NewBookingBuilder().WithSeatID("A2").BuildView(),
		}
		s.mockQueries.EXPECT().
			ListBookings(gomock.Any(), "concert-42").
			Return(views, nil).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodGet, "/booking?event_key=concert-42", nil, "bearer-token")

		var body []*resdto.BookingResponse
		httptest.AssertSuccessResponse(s.T(), rec, http.StatusOK, &body)
		s.Len(body, 2)
	})

	s.Run("error: 500 on query failure", func() {
		s.mockQueries.EXPECT().
			ListBookings(gomock.Any(), gomock.Any()).
			Return(nil, errors.New("database error")).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodGet, "/booking", nil, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusInternalServerError, "Internal server error")
	})
}

// ================================================================================
// TestUpdate
// ================================================================================

func (s *BookingHandlerTestSuite) TestUpdate() {
	id := uuid.New()
	url := "/booking/" + id.String()

	s.Run("success: returns 200 OK with updated rows", func() {
		updated := builder.NewBookingBuilder().WithID(id).WithSeatID("B7").BuildView()
		s.mockCommands.EXPECT().
			Update(gomock.Any(), id, gomock.Any()).
			Return([]*queries.BookingView{updated}, nil).Times(1)

		body := map[string]any{"seatIds": []string{"B7"}}
		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPut, url, body, "bearer-token")

		var resp []*resdto.BookingResponse
		httptest.AssertSuccessResponse(s.T(), rec, http.StatusOK, &resp)
		s.Require().Len(resp, 1)
		s.Equal("B7", resp[0].SeatID)
	})

	s.Run("error: 400 on malformed id", func() {
		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPut, "/booking/not-a-uuid", map[string]any{}, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusBadRequest, "Invalid booking ID")
	})

	s.Run("error: 404 when booking does not exist", func() {
		s.mockCommands.EXPECT().
			Update(gomock.Any(), id, gomock.Any()).
			Return(nil, commands.ErrBookingNotFound).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPut, url, map[string]any{"seatIds": []string{"B7"}}, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusNotFound, "Booking not found")
	})

	s.Run("error: 409 when target seats are taken", func() {
		s.mockCommands.EXPECT().
			Update(gomock.Any(), id, gomock.Any()).
			Return(nil, &commands.SeatConflictError{SeatIDs: []string{"B7"}}).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodPut, url, map[string]any{"seatIds": []string{"B7"}}, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusConflict, "Seats already booked")
	})
}

// ================================================================================
// TestDelete
// ================================================================================

func (s *BookingHandlerTestSuite) TestDelete() {
	id := uuid.New()
	url := "/booking/" + id.String()

	s.Run("success: returns 204 No Content", func() {
		s.mockCommands.EXPECT().
			Release(gomock.Any(), id).
			Return(nil).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodDelete, url, nil, "bearer-token")
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("error: 404 when booking does not exist", func() {
		s.mockCommands.EXPECT().
			Release(gomock.Any(), id).
			Return(commands.ErrBookingNotFound).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodDelete, url, nil, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusNotFound, "Booking not found")
	})

	s.Run("error: 500 with detail when reconciliation is pending", func() {
		s.mockCommands.EXPECT().
			Release(gomock.Any(), id).
			Return(&commands.ReconciliationRequiredError{EventKey: "concert-42", SeatIDs: []string{"A1"}}).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodDelete, url, nil, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusInternalServerError, "reconciled")
	})

	s.Run("error: 502 when the authority is unavailable", func() {
		s.mockCommands.EXPECT().
			Release(gomock.Any(), id).
			Return(commands.ErrExternalService).Times(1)

		rec := httptest.PerformRequest(s.T(), s.router, http.MethodDelete, url, nil, "bearer-token")
		httptest.AssertErrorResponse(s.T(), rec, http.StatusBadGateway, "authority unavailable")
	})
}
