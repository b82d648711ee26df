package api

import (
	"errors"
	"net/http"

	reqdto "seatbridge/internal/handler/dto/request"
	resdto "seatbridge/internal/handler/dto/response"
	"seatbridge/internal/handler/httperr"
	"seatbridge/internal/usecase/commands"
	"seatbridge/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BookingHandler struct {
	cmds commands.BookingCommands
	q    queries.BookingQueries
}

func NewBookingHandler(cmds commands.BookingCommands, q queries.BookingQueries) *BookingHandler {
	return &BookingHandler{cmds: cmds, q: q}
}

// @Summary Create booking
// @Description Claim one or more seats for a member
// @Tags bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.CreateBookingRequest true "Create booking request"
// @Success 201 {array} resdto.BookingResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Failure 502 {object} httperr.Response
// @Router /booking [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req reqdto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}

	views, err := h.cmds.Book(c.Request.Context(), req.EventKey, req.SeatIDs, req.MemberID)
	if err != nil {
		abortWithBookingError(c, err)
		return
	}

	if len(views) == 1 {
		c.Header("Location", "/booking/"+views[0].ID.String())
	}
	c.JSON(http.StatusCreated, resdto.FromBookingViews(views))
}

// @Summary Get booking
// @Description Get a booking by ID
// @Tags bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Booking ID"
// @Success 200 {object} resdto.BookingResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Router /booking/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid booking ID format", nil)
		return
	}

	view, err := h.q.GetBooking(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, queries.ErrBookingNotFound) {
			httperr.AbortWithError(c, http.StatusNotFound, err, "Booking not found", nil)
			return
		}
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, resdto.FromBookingView(view))
}

// @Summary List bookings
// @Description List occupied bookings, optionally filtered by event
// @Tags bookings
// @Produce json
// @Security BearerAuth
// @Param event_key query string false "Event key filter"
// @Success 200 {array} resdto.BookingResponse
// @Router /booking [get]
func (h *BookingHandler) List(c *gin.Context) {
	views, err := h.q.ListBookings(c.Request.Context(), c.Query("event_key"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, resdto.FromBookingViews(views))
}

// @Summary Update booking
// @Description Move a booking to different seats or reassign the member
// @Tags bookings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Booking ID"
// @Param request body reqdto.UpdateBookingRequest true "Update booking request"
// @Success 200 {array} resdto.BookingResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Failure 502 {object} httperr.Response
// @Router /booking/{id} [put]
func (h *BookingHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid booking ID format", nil)
		return
	}

	var req reqdto.UpdateBookingRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, bindErr, "Invalid request", nil)
		return
	}

	views, err := h.cmds.Update(c.Request.Context(), id, commands.UpdateBookingRequest{
		EventKey: req.EventKey,
		SeatIDs:  req.SeatIDs,
		MemberID: req.MemberID,
	})
	if err != nil {
		abortWithBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, resdto.FromBookingViews(views))
}

// @Summary Release booking
// @Description Release a booked seat
// @Tags bookings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Booking ID"
// @Success 204
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 502 {object} httperr.Response
// @Router /booking/{id} [delete]
func (h *BookingHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid booking ID format", nil)
		return
	}

	if err := h.cmds.Release(c.Request.Context(), id); err != nil {
		abortWithBookingError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// abortWithBookingError translates the coordinator's error taxonomy to
// HTTP statuses. Reconciliation-required outcomes stay a 500: the caller
// did nothing wrong and retrying with different input will not help.
func abortWithBookingError(c *gin.Context, err error) {
	var conflict *commands.SeatConflictError
	var recRequired *commands.ReconciliationRequiredError

	switch {
	case errors.Is(err, commands.ErrMemberNotFound):
		httperr.AbortWithError(c, http.StatusNotFound, err, "Member not found", nil)
	case errors.Is(err, commands.ErrBookingNotFound):
		httperr.AbortWithError(c, http.StatusNotFound, err, "Booking not found", nil)
	case errors.Is(err, commands.ErrNoSeatsRequested):
		httperr.AbortWithError(c, http.StatusBadRequest, err, "At least one seat is required", nil)
	case errors.As(err, &conflict):
		httperr.AbortWithError(c, http.StatusConflict, err, "Seats already booked",
			gin.H{"seats": conflict.SeatIDs})
	case errors.Is(err, commands.ErrSeatsAlreadyBooked):
		httperr.AbortWithError(c, http.StatusConflict, err, "Seats already booked", nil)
	case errors.As(err, &recRequired):
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Booking state is being reconciled",
			gin.H{"eventKey": recRequired.EventKey, "seats": recRequired.SeatIDs})
	case errors.Is(err, commands.ErrExternalService):
		httperr.AbortWithError(c, http.StatusBadGateway, err, "Reservation authority unavailable", nil)
	default:
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
	}
}
