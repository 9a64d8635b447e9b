package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"skibook/internal/api"
	"skibook/internal/auth"
	"skibook/internal/logger"
	"skibook/internal/schedule"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, provider string, body []byte) (Result, error)
}

type Handler struct {
	service  Service
	webhooks WebhookProcessor
}

func NewHandler(service Service, webhooks WebhookProcessor) *Handler {
	return &Handler{service: service, webhooks: webhooks}
}

// Checkout godoc
// @Summary      Start card checkout
// @Description  Holds the slot and returns the provider payment page. The hold expires if the payment is not completed in time.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        slotID  path      int              true   "Slot ID"
// @Param        request body      CheckoutRequest  false  "Checkout options"
// @Success      201     {object}  Checkout
// @Failure      409     {object}  api.ErrorResponse
// @Failure      502     {object}  api.ErrorResponse
// @Router       /slots/{slotID}/checkout [post]
func (h *Handler) Checkout(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}
	slotID, err := strconv.ParseInt(c.Param("slotID"), 10, 64)
	if err != nil || slotID <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid slotID"})
		return
	}

	var req CheckoutRequest
	if c.Request.ContentLength > 0 && !api.BindJSON(c, &req) {
		return
	}

	checkout, err := h.service.StartCheckout(c.Request.Context(), clientID, slotID, req.Participants)
	if err != nil {
		writeError(c, err, "Failed to start checkout")
		return
	}
	c.JSON(http.StatusCreated, checkout)
}

func (h *Handler) CancelCheckout(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}

	if err := h.service.CancelCheckout(c.Request.Context(), clientID, c.Param("orderID")); err != nil {
		writeError(c, err, "Failed to cancel checkout")
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "Checkout cancelled"})
}

func (h *Handler) GetTransaction(c *gin.Context) {
	clientID, ok := auth.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "client not authenticated"})
		return
	}

	t, err := h.service.GetTransaction(c.Request.Context(), clientID, c.Param("orderID"), auth.IsAdmin(c))
	if err != nil {
		writeError(c, err, "Failed to fetch transaction")
		return
	}
	c.JSON(http.StatusOK, t)
}

// Webhook godoc
// @Summary      Payment provider webhook
// @Description  Accepts provider notifications. The payment is re-fetched from the provider before anything changes.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        provider  path      string  true  "Provider name"
// @Success      200       {object}  WebhookResponse
// @Failure      400       {object}  api.ErrorResponse
// @Router       /payments/webhook/{provider} [post]
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unreadable body"})
		return
	}

	res, err := h.webhooks.HandleWebhook(c.Request.Context(), c.Param("provider"), body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, WebhookResponse{Status: string(res)})
	case errors.Is(err, ErrUnknownProvider):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidWebhook):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid webhook"})
	default:
		logger.Error("webhook processing failed", "provider", c.Param("provider"), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "webhook processing failed"})
	}
}

// Return is where the provider sends the client after the payment page.
func (h *Handler) Return(c *gin.Context) {
	orderID := c.Query("order_id")
	status, err := h.service.GetStatus(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err, "Failed to fetch payment status")
		return
	}
	c.JSON(http.StatusOK, ReturnResponse{OrderID: orderID, Status: status})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, schedule.ErrSlotNotFound),
		errors.Is(err, schedule.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "You can only access your own payments"})
	case errors.Is(err, schedule.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Slot unavailable"})
	case errors.Is(err, ErrNotPending):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, schedule.ErrSlotInPast),
		errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrPaymentsDisabled):
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Payment provider unavailable, the slot was released"})
	default:
		logger.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: fallback})
	}
}
