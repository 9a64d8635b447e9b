package booking

import (
	"errors"
	"net/http"
	"strconv"

	"skibook/internal/api"
	"skibook/internal/auth"
	"skibook/internal/logger"
	"skibook/internal/schedule"
	"skibook/internal/wallet"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// BookSlot godoc
// @Summary      Book a slot
// @Description  Books an available slot paid from the wallet. Admins may book on behalf of a client without payment.
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        slotID  path      int              true  "Slot ID"
// @Param        request body      BookSlotRequest  false "Booking options"
// @Success      201     {object}  BookSlotResponse
// @Failure      400     {object}  api.ErrorResponse
// @Failure      402     {object}  api.ErrorResponse
// @Failure      409     {object}  api.ErrorResponse
// @Router       /slots/{slotID}/book [post]
func (h *Handler) BookSlot(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}
	slotID, ok := idParam(c, "slotID")
	if !ok {
		return
	}

	var req BookSlotRequest
	if c.Request.ContentLength > 0 && !api.BindJSON(c, &req) {
		return
	}

	method := MethodWallet
	if req.PaymentMethod == string(MethodAdmin) || req.ClientID != 0 {
		if !auth.IsAdmin(c) {
			c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "admin access required"})
			return
		}
		method = MethodAdmin
		if req.ClientID != 0 {
			clientID = req.ClientID
		}
	}

	booking, err := h.service.BookSlot(c.Request.Context(), clientID, slotID, req.Participants, method)
	if err != nil {
		writeError(c, err, "Failed to create booking")
		return
	}

	c.JSON(http.StatusCreated, BookSlotResponse{
		Booking:     booking,
		PaidWith:    string(booking.PaymentMethod),
		AmountCents: booking.PriceCents,
	})
}

func (h *Handler) JoinGroup(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}
	groupID, ok := idParam(c, "groupID")
	if !ok {
		return
	}

	var req JoinGroupRequest
	if c.Request.ContentLength > 0 && !api.BindJSON(c, &req) {
		return
	}

	booking, err := h.service.JoinGroup(c.Request.Context(), clientID, groupID, req.Participants)
	if err != nil {
		writeError(c, err, "Failed to join group training")
		return
	}

	c.JSON(http.StatusCreated, BookSlotResponse{
		Booking:     booking,
		PaidWith:    string(booking.PaymentMethod),
		AmountCents: booking.PriceCents,
	})
}

// CancelBooking godoc
// @Summary      Cancel booking
// @Description  Cancels a confirmed booking of the current client and refunds it to the wallet.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        bookingID  path      int  true  "Booking ID"
// @Success      200        {object}  CancelBookingResponse
// @Failure      403        {object}  api.ErrorResponse
// @Failure      404        {object}  api.ErrorResponse
// @Router       /bookings/{bookingID}/cancel [post]
func (h *Handler) CancelBooking(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}
	bookingID, ok := idParam(c, "bookingID")
	if !ok {
		return
	}

	_, refund, err := h.service.CancelBooking(c.Request.Context(), clientID, bookingID, auth.IsAdmin(c))
	if err != nil {
		writeError(c, err, "Failed to cancel booking")
		return
	}

	c.JSON(http.StatusOK, CancelBookingResponse{
		Message:     "Booking cancelled successfully",
		RefundCents: refund,
	})
}

func (h *Handler) CompleteBooking(c *gin.Context) {
	bookingID, ok := idParam(c, "bookingID")
	if !ok {
		return
	}

	booking, err := h.service.CompleteBooking(c.Request.Context(), bookingID)
	if err != nil {
		writeError(c, err, "Failed to complete booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) ListMine(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}

	bookings, err := h.service.ListClientBookings(c.Request.Context(), clientID)
	if err != nil {
		writeError(c, err, "Failed to fetch bookings")
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) ListBySlot(c *gin.Context) {
	slotID, ok := idParam(c, "slotID")
	if !ok {
		return
	}

	bookings, err := h.service.ListBookingsBySlot(c.Request.Context(), slotID)
	if err != nil {
		writeError(c, err, "Failed to fetch bookings")
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrBookingNotFound),
		errors.Is(err, schedule.ErrSlotNotFound),
		errors.Is(err, schedule.ErrGroupNotFound),
		errors.Is(err, schedule.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "You can only manage your own bookings"})
	case errors.Is(err, schedule.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Slot unavailable"})
	case errors.Is(err, schedule.ErrGroupFull),
		errors.Is(err, schedule.ErrGroupClosed),
		errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "Insufficient wallet balance"})
	case errors.Is(err, schedule.ErrSlotInPast),
		errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	default:
		logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
